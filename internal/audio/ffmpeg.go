package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/google/uuid"
)

// FFmpegDevice records the default input through an ffmpeg subprocess into a
// temporary 16kHz mono WAV file.
type FFmpegDevice struct {
	Binary      string        // defaults to "ffmpeg"
	InputFormat string        // ffmpeg -f value; platform default when empty
	Input       string        // ffmpeg -i value; platform default when empty
	SampleRate  int           // defaults to 16000
	TempDir     string        // defaults to os.TempDir()
	Grace       time.Duration // how long ffmpeg must survive to count as started

	// quitKey stops ffmpeg by typing "q" on its stdin instead of SIGINT.
	// Always on for Windows, which has no SIGINT for child processes.
	quitKey bool
}

// DefaultInput returns the ffmpeg input format and device for this platform.
func DefaultInput() (format, input string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// CheckFFmpeg reports whether the ffmpeg binary can be found.
func (d FFmpegDevice) CheckFFmpeg() error {
	if _, err := exec.LookPath(d.binary()); err != nil {
		return apperr.Wrap(apperr.KindDeviceUnavailable, "ffmpeg not found. Install with: brew install ffmpeg (or your package manager)", err)
	}
	return nil
}

func (d FFmpegDevice) binary() string {
	if d.Binary == "" {
		return "ffmpeg"
	}
	return d.Binary
}

// Open starts ffmpeg and waits out the grace period so that permission and
// device errors surface here rather than at Finish.
func (d FFmpegDevice) Open(ctx context.Context) (Stream, error) {
	if err := d.CheckFFmpeg(); err != nil {
		return nil, err
	}

	format, input := DefaultInput()
	if d.InputFormat != "" {
		format = d.InputFormat
	}
	if d.Input != "" {
		input = d.Input
	}
	rate := d.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	dir := d.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	grace := d.Grace
	if grace <= 0 {
		grace = 300 * time.Millisecond
	}

	path := filepath.Join(dir, "casebook-"+uuid.NewString()+".wav")
	cmd := exec.Command(d.binary(),
		"-hide_banner",
		"-loglevel", "error",
		"-f", format,
		"-i", input,
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-y",
		path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDeviceUnavailable, "start ffmpeg", err)
	}
	s := &ffmpegStream{
		cmd:     cmd,
		path:    path,
		stdin:   stdin,
		quitKey: d.quitKey || runtime.GOOS == "windows",
		done:    make(chan struct{}),
	}
	cmd.Stderr = &s.stderr

	if err := cmd.Start(); err != nil {
		return nil, apperr.Wrap(apperr.KindDeviceUnavailable, "start ffmpeg", err)
	}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.done)
	}()

	select {
	case <-s.done:
		os.Remove(path)
		return nil, classifyFFmpegExit(s.stderr.String(), s.waitErr)
	case <-ctx.Done():
		s.Abort()
		return nil, apperr.Wrap(apperr.KindDeviceUnavailable, "capture start cancelled", ctx.Err())
	case <-time.After(grace):
	}
	return s, nil
}

type ffmpegStream struct {
	cmd     *exec.Cmd
	path    string
	stdin   io.WriteCloser
	quitKey bool
	stderr  bytes.Buffer
	done    chan struct{}
	waitErr error
}

func (s *ffmpegStream) Finish() (Payload, error) {
	defer os.Remove(s.path)

	// ffmpeg finalizes the WAV header when asked to quit.
	if err := s.interrupt(); err != nil {
		s.kill()
		return Payload{}, apperr.Wrap(apperr.KindDeviceUnavailable, "stop ffmpeg", err)
	}
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		s.kill()
		return Payload{}, apperr.New(apperr.KindDeviceUnavailable, "ffmpeg did not stop")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return Payload{}, apperr.Wrap(apperr.KindDeviceUnavailable, "read recording", err)
	}
	if len(data) == 0 {
		return Payload{}, classifyFFmpegExit(s.stderr.String(), s.waitErr)
	}
	p := Payload{Data: data, Format: FormatWAV}
	if dur, ok := WAVDuration(data); ok {
		p.Duration = dur
	}
	return p, nil
}

func (s *ffmpegStream) Abort() error {
	defer os.Remove(s.path)
	s.kill()
	return nil
}

func (s *ffmpegStream) interrupt() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	if s.quitKey {
		_, err := io.WriteString(s.stdin, "q")
		return err
	}
	err := s.cmd.Process.Signal(os.Interrupt)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (s *ffmpegStream) kill() {
	select {
	case <-s.done:
		return
	default:
	}
	s.cmd.Process.Kill()
	<-s.done
}

// classifyFFmpegExit maps ffmpeg's stderr to a capture error kind.
func classifyFFmpegExit(stderr string, waitErr error) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	if msg == "" {
		msg = "ffmpeg exited"
		if waitErr != nil {
			msg = fmt.Sprintf("ffmpeg exited: %v", waitErr)
		}
	}
	if strings.Contains(lower, "permission") || strings.Contains(lower, "not authorized") {
		return apperr.New(apperr.KindPermissionDenied, "microphone access denied: "+msg)
	}
	return apperr.New(apperr.KindDeviceUnavailable, msg)
}
