// Package daemon provides the client and protocol types for talking to a local
// audio capture daemon over a Unix socket using NDJSON.
package daemon

// Commands understood by the capture daemon.
const (
	CmdStatus    = "status"
	CmdDevices   = "devices"
	CmdStart     = "start"
	CmdStop      = "stop"
	CmdAbort     = "abort"
	CmdSubscribe = "subscribe"
)

// Error codes reported in Response.Code.
const (
	CodePermissionDenied  = "permission_denied"
	CodeDeviceUnavailable = "device_unavailable"
	CodeBusy              = "busy"
)

// Command is sent from a client to the daemon.
type Command struct {
	Cmd        string   `json:"cmd"`
	Device     string   `json:"device,omitempty"`
	Format     string   `json:"format,omitempty"`
	SampleRate int      `json:"sampleRate,omitempty"`
	Events     []string `json:"events,omitempty"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	OK         bool     `json:"ok"`
	SessionID  string   `json:"sessionId,omitempty"`
	Recording  *bool    `json:"recording,omitempty"`
	Devices    []string `json:"devices,omitempty"`
	Error      string   `json:"error,omitempty"`
	Code       string   `json:"code,omitempty"`
	Status     string   `json:"status,omitempty"`
	Device     string   `json:"device,omitempty"`
	AudioPath  string   `json:"audioPath,omitempty"`
	DurationMs *int64   `json:"durationMs,omitempty"`
}

// Event is streamed from the daemon to subscribed clients.
type Event struct {
	Event     string   `json:"event"`
	Level     *float32 `json:"level,omitempty"`
	Recording *bool    `json:"recording,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`
	Message   string   `json:"message,omitempty"`
}
