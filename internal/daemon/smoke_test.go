package daemon

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestLiveDaemonQueries asks a running capture daemon for its status and
// input devices without recording. Skipped if the socket doesn't exist.
func TestLiveDaemonQueries(t *testing.T) {
	sockPath := SocketPath()
	if _, err := os.Stat(sockPath); os.IsNotExist(err) {
		t.Skip("capture daemon not running (no socket at", sockPath, ")")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := ConnectContext(ctx, sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	for _, cmd := range []string{CmdStatus, CmdDevices} {
		resp, err := client.SendCommandContext(ctx, Command{Cmd: cmd})
		if err != nil {
			t.Fatalf("%s: %v", cmd, err)
		}
		if !resp.OK {
			t.Fatalf("%s not ok: %s (%s)", cmd, resp.Error, resp.Code)
		}
		t.Logf("%s: recording=%v device=%q status=%q devices=%v",
			cmd, resp.Recording, resp.Device, resp.Status, resp.Devices)
	}
}
