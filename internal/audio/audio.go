// Package audio records spoken cases from an input device and stores the
// resulting payloads on disk.
package audio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"go.uber.org/zap"
)

// FormatWAV is the MIME type of recorded payloads.
const FormatWAV = "audio/wav"

// Payload is a finished recording. Treat Data as read-only.
type Payload struct {
	Data     []byte
	Format   string
	Duration time.Duration
}

// Seconds returns the duration in whole seconds.
func (p Payload) Seconds() int {
	return int(math.Round(p.Duration.Seconds()))
}

// Empty reports whether the payload carries no audio bytes.
func (p Payload) Empty() bool { return len(p.Data) == 0 }

// Device opens exclusive recording streams on an audio input.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an in-progress recording.
type Stream interface {
	// Finish ends the recording and returns what was captured. The device is
	// released whether or not it succeeds.
	Finish() (Payload, error)
	// Abort ends the recording and throws it away.
	Abort() error
}

// Leveler is implemented by streams that report the current input level in
// the range [0, 1].
type Leveler interface {
	Level() float32
}

// Capture owns at most one active stream on a device.
type Capture struct {
	device Device
	log    *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	stream    Stream
	startedAt time.Time
}

// NewCapture returns a Capture recording from device.
func NewCapture(device Device, log *zap.Logger) *Capture {
	if log == nil {
		log = zap.NewNop()
	}
	return &Capture{device: device, log: log, now: time.Now}
}

// Start opens a stream on the device. Starting an active capture is a no-op.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return nil
	}
	stream, err := c.device.Open(ctx)
	if err != nil {
		c.log.Warn("capture start failed", zap.Error(err))
		return err
	}
	c.stream = stream
	c.startedAt = c.now()
	c.log.Debug("capture started")
	return nil
}

// Active reports whether a stream is open.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Level returns the current input level, or 0 when unknown.
func (c *Capture) Level() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.stream.(Leveler); ok {
		return l.Level()
	}
	return 0
}

// Elapsed returns how long the active stream has been recording.
func (c *Capture) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return 0
	}
	return c.now().Sub(c.startedAt)
}

// Stop finalizes the active stream and returns its payload. The device is
// released on every path.
func (c *Capture) Stop() (Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return Payload{}, apperr.New(apperr.KindInvalidState, "capture is not recording")
	}
	stream, started := c.stream, c.startedAt
	defer func() { c.stream = nil }()

	p, err := stream.Finish()
	if err != nil {
		c.log.Warn("capture stop failed", zap.Error(err))
		return Payload{}, err
	}
	if p.Format == "" {
		p.Format = FormatWAV
	}
	if p.Duration <= 0 {
		p.Duration = c.now().Sub(started)
	}
	c.log.Debug("capture stopped", zap.Int("bytes", len(p.Data)), zap.Duration("duration", p.Duration))
	return p, nil
}

// Discard aborts any active stream. It is safe to call when idle.
func (c *Capture) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return nil
	}
	stream := c.stream
	c.stream = nil
	c.log.Debug("capture discarded")
	return stream.Abort()
}
