package audio

import (
	"context"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/daemon"
)

// DaemonDevice records through a local capture daemon listening on a Unix
// socket. The daemon writes the recording to a file and reports its path.
type DaemonDevice struct {
	SocketPath string
	Device     string        // input device name; daemon default when empty
	Timeout    time.Duration // per-command timeout
}

func (d DaemonDevice) socketPath() string {
	if d.SocketPath == "" {
		return daemon.SocketPath()
	}
	return d.SocketPath
}

func (d DaemonDevice) timeout() time.Duration {
	if d.Timeout <= 0 {
		return 5 * time.Second
	}
	return d.Timeout
}

// Devices lists the daemon's input devices.
func (d DaemonDevice) Devices(ctx context.Context) ([]string, error) {
	client, err := daemon.ConnectContext(ctx, d.socketPath())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDeviceUnavailable, "capture daemon not running", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()
	resp, err := client.SendCommandContext(ctx, daemon.Command{Cmd: daemon.CmdDevices})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDeviceUnavailable, "list devices", err)
	}
	if !resp.OK {
		return nil, daemonError(resp)
	}
	return resp.Devices, nil
}

// Open asks the daemon to start recording and subscribes to level events.
func (d DaemonDevice) Open(ctx context.Context) (Stream, error) {
	client, err := daemon.ConnectContext(ctx, d.socketPath())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDeviceUnavailable, "capture daemon not running", err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()
	resp, err := client.SendCommandContext(cmdCtx, daemon.Command{
		Cmd:        daemon.CmdStart,
		Device:     d.Device,
		Format:     "wav",
		SampleRate: 16000,
	})
	if err != nil {
		client.Close()
		return nil, apperr.Wrap(apperr.KindDeviceUnavailable, "start recording", err)
	}
	if !resp.OK {
		client.Close()
		return nil, daemonError(resp)
	}

	s := &daemonStream{client: client, timeout: d.timeout()}
	s.subscribe(ctx, d.socketPath())
	return s, nil
}

type daemonStream struct {
	client  *daemon.Client
	events  *daemon.Client
	timeout time.Duration
	level   atomic.Uint32 // math.Float32bits
}

// subscribe streams level events on a second connection. Levels are cosmetic,
// so a failed or unanswered subscription is ignored.
func (s *daemonStream) subscribe(ctx context.Context, socketPath string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	events, err := daemon.ConnectContext(ctx, socketPath)
	if err != nil {
		return
	}
	resp, err := events.SendCommandContext(ctx, daemon.Command{Cmd: daemon.CmdSubscribe, Events: []string{"level"}})
	if err != nil || !resp.OK {
		events.Close()
		return
	}
	s.events = events
	go func() {
		for {
			ev, err := events.ReadEvent()
			if err != nil {
				return
			}
			if ev.Event == "level" && ev.Level != nil {
				s.level.Store(math.Float32bits(*ev.Level))
			}
		}
	}()
}

func (s *daemonStream) Level() float32 {
	return math.Float32frombits(s.level.Load())
}

func (s *daemonStream) Finish() (Payload, error) {
	defer s.close()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := s.client.SendCommandContext(ctx, daemon.Command{Cmd: daemon.CmdStop})
	if err != nil {
		return Payload{}, apperr.Wrap(apperr.KindDeviceUnavailable, "stop recording", err)
	}
	if !resp.OK {
		return Payload{}, daemonError(resp)
	}
	if resp.AudioPath == "" {
		return Payload{}, apperr.New(apperr.KindDeviceUnavailable, "daemon returned no recording")
	}
	defer os.Remove(resp.AudioPath)

	data, err := os.ReadFile(resp.AudioPath)
	if err != nil {
		return Payload{}, apperr.Wrap(apperr.KindDeviceUnavailable, "read recording", err)
	}
	p := Payload{Data: data, Format: FormatWAV}
	if resp.DurationMs != nil {
		p.Duration = time.Duration(*resp.DurationMs) * time.Millisecond
	} else if dur, ok := WAVDuration(data); ok {
		p.Duration = dur
	}
	return p, nil
}

func (s *daemonStream) Abort() error {
	defer s.close()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := s.client.SendCommandContext(ctx, daemon.Command{Cmd: daemon.CmdAbort})
	if err != nil {
		return apperr.Wrap(apperr.KindDeviceUnavailable, "abort recording", err)
	}
	if !resp.OK {
		return daemonError(resp)
	}
	return nil
}

func (s *daemonStream) close() {
	s.client.Close()
	if s.events != nil {
		s.events.Close()
	}
}

// daemonError maps a failed daemon response to a capture error kind.
func daemonError(resp daemon.Response) error {
	msg := resp.Error
	if msg == "" {
		msg = "capture daemon error"
	}
	switch {
	case resp.Code == daemon.CodePermissionDenied,
		strings.Contains(strings.ToLower(msg), "permission"):
		return apperr.New(apperr.KindPermissionDenied, msg)
	default:
		return apperr.New(apperr.KindDeviceUnavailable, msg)
	}
}
