package daemon

import (
	"encoding/json"
	"testing"
)

func TestCommandMarshalStart(t *testing.T) {
	cmd := Command{
		Cmd:        CmdStart,
		Device:     "USB Microphone",
		Format:     "wav",
		SampleRate: 16000,
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Command
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Cmd != "start" {
		t.Errorf("cmd = %q, want %q", got.Cmd, "start")
	}
	if got.Device != "USB Microphone" {
		t.Errorf("device = %q, want %q", got.Device, "USB Microphone")
	}
	if got.SampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", got.SampleRate)
	}
}

func TestCommandOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Command{Cmd: CmdStop})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}

	for _, key := range []string{"device", "format", "sampleRate", "events"} {
		if _, ok := raw[key]; ok {
			t.Errorf("stop command should omit %s", key)
		}
	}
}

func TestResponseStop(t *testing.T) {
	j := `{"ok":true,"sessionId":"abc-123","recording":false,"audioPath":"/tmp/abc.wav","durationMs":61500}`

	var resp Response
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !resp.OK {
		t.Error("ok = false, want true")
	}
	if resp.AudioPath != "/tmp/abc.wav" {
		t.Errorf("audioPath = %q", resp.AudioPath)
	}
	if resp.DurationMs == nil || *resp.DurationMs != 61500 {
		t.Errorf("durationMs = %v, want 61500", resp.DurationMs)
	}
	if resp.Recording == nil || *resp.Recording {
		t.Errorf("recording = %v, want false", resp.Recording)
	}
}

func TestResponseError(t *testing.T) {
	j := `{"ok":false,"error":"Microphone permission denied","code":"permission_denied"}`

	var resp Response
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.OK {
		t.Error("ok = true, want false")
	}
	if resp.Code != CodePermissionDenied {
		t.Errorf("code = %q, want %q", resp.Code, CodePermissionDenied)
	}
}

func TestResponseDevices(t *testing.T) {
	j := `{"ok":true,"devices":["Built-in Microphone","External USB"]}`

	var resp Response
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(resp.Devices) != 2 {
		t.Fatalf("devices len = %d, want 2", len(resp.Devices))
	}
	if resp.Devices[0] != "Built-in Microphone" {
		t.Errorf("devices[0] = %q", resp.Devices[0])
	}
}

func TestEventLevel(t *testing.T) {
	j := `{"event":"level","level":0.75}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if ev.Level == nil || *ev.Level != 0.75 {
		t.Errorf("level = %v, want 0.75", ev.Level)
	}
}

func TestEventError(t *testing.T) {
	j := `{"event":"error","message":"input device disconnected"}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if ev.Message != "input device disconnected" {
		t.Errorf("message = %q", ev.Message)
	}
}

func ptr[T any](v T) *T { return &v }
