package workflow

import (
	"context"
	"strings"
	"sync"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/elparko/CaseTracker/internal/tags"
	"go.uber.org/zap"
)

// ErrAbandoned is returned for a gateway result that arrives after the
// session was discarded. The result is dropped.
var ErrAbandoned = apperr.New(apperr.KindInvalidState, "session was discarded")

// Recorder is the capture device a session records from.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (audio.Payload, error)
	Discard() error
}

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, p audio.Payload) (string, error)
}

// Analyzer extracts structured case fields from text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (cases.Fields, error)
}

// CaseCreator persists finalized cases.
type CaseCreator interface {
	Create(ctx context.Context, d cases.Draft) (cases.Record, error)
}

// AudioStore keeps the recording referenced by a finalized case.
type AudioStore interface {
	Save(p audio.Payload) (string, error)
	Remove(ref string) error
}

// Observer is told about every state change.
type Observer interface {
	ObserveTransition(from, to State, e Event)
}

// Deps are a session's collaborators. Recorder is only needed for live
// capture and Audio only to keep recordings; both may be nil.
type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	Analyzer    Analyzer
	Cases       CaseCreator
	Audio       AudioStore
	Observer    Observer
	Log         *zap.Logger
}

// Session is one pass through the capture workflow. It is safe for
// concurrent use; at most one gateway call is in flight at a time.
type Session struct {
	deps Deps
	log  *zap.Logger

	mu      sync.Mutex
	state   State
	gen     uint64
	capture captureOp
	cancel  context.CancelFunc
	payload audio.Payload
	text    string
	tags    []string
	notes   string
	lastErr error
	record  *cases.Record
}

// NewSession returns an Idle session.
func NewSession(deps Deps) *Session {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{deps: deps, log: log, tags: []string{}}
}

// Snapshot is a consistent copy of a session's observable state.
type Snapshot struct {
	State     State
	Text      string
	Tags      []string
	Notes     string
	HasAudio  bool
	AudioSecs int
	LastErr   error
	Record    *cases.Record
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:     s.state,
		Text:      s.text,
		Tags:      append([]string{}, s.tags...),
		Notes:     s.notes,
		HasAudio:  !s.payload.Empty(),
		AudioSecs: s.payload.Seconds(),
		LastErr:   s.lastErr,
	}
	if s.record != nil {
		rec := *s.record
		snap.Record = &rec
	}
	return snap
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// captureOp is the recorder call running without s.mu held.
type captureOp int

const (
	captureIdle captureOp = iota
	captureStarting
	captureStopping
)

// fire applies e. Only discard may interrupt a recorder call in flight.
// Callers hold s.mu.
func (s *Session) fire(e Event) error {
	if s.capture != captureIdle && e != EventDiscard {
		return apperr.New(apperr.KindInvalidState, "capture device is busy")
	}
	to, err := Next(s.state, e)
	if err != nil {
		return err
	}
	from := s.state
	s.state = to
	if from != to {
		s.log.Debug("transition",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Stringer("event", e))
	}
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveTransition(from, to, e)
	}
	return nil
}

// fail records err and applies e. Callers hold s.mu.
func (s *Session) fail(e Event, err error) error {
	s.lastErr = err
	s.log.Warn("workflow step failed", zap.Stringer("event", e), zap.Error(err))
	if ferr := s.fire(e); ferr != nil {
		return ferr
	}
	return err
}

// Start begins recording. Starting while recording is a no-op. A capture
// failure discards the session. s.mu is not held while the device opens, so
// Discard can abandon a start that hangs; ctx is cancelled when it does.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Recording {
		s.mu.Unlock()
		return nil
	}
	if err := s.checkCapture(EventStart); err != nil {
		s.mu.Unlock()
		return err
	}
	ctx, gen := s.arm(ctx, captureStarting)
	s.mu.Unlock()

	err := s.deps.Recorder.Start(ctx)

	ok := s.settle(gen)
	s.capture = captureIdle
	if !ok {
		s.mu.Unlock()
		if err == nil {
			if derr := s.deps.Recorder.Discard(); derr != nil {
				s.log.Warn("release capture device", zap.Error(derr))
			}
		}
		return ErrAbandoned
	}
	defer s.mu.Unlock()
	if err != nil {
		return s.fail(EventCaptureFailed, err)
	}
	s.lastErr = nil
	return s.fire(EventStart)
}

// Stop ends recording and keeps the payload for transcription. The device is
// released by the recorder whether or not a concurrent Discard wins.
func (s *Session) Stop() (audio.Payload, error) {
	s.mu.Lock()
	if err := s.checkCapture(EventStop); err != nil {
		s.mu.Unlock()
		return audio.Payload{}, err
	}
	_, gen := s.arm(context.Background(), captureStopping)
	s.mu.Unlock()

	p, err := s.deps.Recorder.Stop()

	ok := s.settle(gen)
	s.capture = captureIdle
	defer s.mu.Unlock()
	if !ok {
		return audio.Payload{}, ErrAbandoned
	}
	if err != nil {
		return audio.Payload{}, s.fail(EventCaptureFailed, err)
	}
	s.payload = p
	return p, s.fire(EventStop)
}

// checkCapture reports whether e may drive the recorder now. Callers hold s.mu.
func (s *Session) checkCapture(e Event) error {
	if s.capture != captureIdle {
		return apperr.New(apperr.KindInvalidState, "capture device is busy")
	}
	if _, err := Next(s.state, e); err != nil {
		return err
	}
	if s.deps.Recorder == nil {
		return apperr.New(apperr.KindDeviceUnavailable, "no capture device configured")
	}
	return nil
}

// arm marks a recorder call in flight. Callers hold s.mu.
func (s *Session) arm(ctx context.Context, op captureOp) (context.Context, uint64) {
	s.capture = op
	s.gen++
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return ctx, s.gen
}

// Import uses an existing recording instead of live capture.
func (s *Session) Import(p audio.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := Next(s.state, EventImport); err != nil {
		return err
	}
	if p.Empty() {
		return apperr.Validation("audio file is empty")
	}
	s.payload = p
	return s.fire(EventImport)
}

// ManualEntry skips capture and opens an empty transcription for typing.
func (s *Session) ManualEntry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(EventManualEntry); err != nil {
		return err
	}
	s.text = ""
	return nil
}

// begin moves into a busy state and arms cancellation for the call about to
// be made. Callers hold s.mu.
func (s *Session) begin(ctx context.Context, e Event) (context.Context, uint64, error) {
	if err := s.fire(e); err != nil {
		return nil, 0, err
	}
	s.gen++
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.lastErr = nil
	return ctx, s.gen, nil
}

// settle reacquires s.mu after a gateway call. It reports false when the
// session moved on while the call was in flight.
func (s *Session) settle(gen uint64) bool {
	s.mu.Lock()
	if s.gen != gen {
		return false
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return true
}

// Transcribe sends the recording to the transcription service. On success
// the text is preloaded for review; on failure the session returns to
// Recorded with the recording intact.
func (s *Session) Transcribe(ctx context.Context) (string, error) {
	s.mu.Lock()
	ctx, gen, err := s.begin(ctx, EventTranscribe)
	payload := s.payload
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	text, err := s.deps.Transcriber.Transcribe(ctx, payload)

	ok := s.settle(gen)
	defer s.mu.Unlock()
	if !ok {
		return "", ErrAbandoned
	}
	if err != nil {
		return "", s.fail(EventTranscribeFailed, err)
	}
	s.text = text
	return text, s.fire(EventTranscribeOK)
}

// Edit replaces the transcription text under review.
func (s *Session) Edit(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(EventEdit); err != nil {
		return err
	}
	s.text = text
	return nil
}

// AddTags attaches tags to the case under review.
func (s *Session) AddTags(raw ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(EventEdit); err != nil {
		return err
	}
	s.tags = tags.Merge(s.tags, raw)
	return nil
}

// RemoveTags detaches tags from the case under review.
func (s *Session) RemoveTags(raw ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(EventEdit); err != nil {
		return err
	}
	s.tags = tags.Remove(s.tags, raw)
	return nil
}

// SetNotes sets the free-text notes of the case under review.
func (s *Session) SetNotes(notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(EventEdit); err != nil {
		return err
	}
	s.notes = notes
	return nil
}

// Analyze submits the reviewed text for analysis and persists the resulting
// case. Whitespace-only text is rejected before any call is made. On failure
// the session returns to Reviewing with the text intact.
func (s *Session) Analyze(ctx context.Context) (cases.Record, error) {
	s.mu.Lock()
	if s.state == Reviewing && strings.TrimSpace(s.text) == "" {
		s.mu.Unlock()
		return cases.Record{}, apperr.Validation("transcription text is empty")
	}
	parent := ctx
	ctx, gen, err := s.begin(ctx, EventAnalyze)
	text := s.text
	s.mu.Unlock()
	if err != nil {
		return cases.Record{}, err
	}

	fields, err := s.deps.Analyzer.Analyze(ctx, text)

	ok := s.settle(gen)
	defer s.mu.Unlock()
	if !ok {
		return cases.Record{}, ErrAbandoned
	}
	if err != nil {
		return cases.Record{}, s.fail(EventAnalyzeFailed, err)
	}

	var ref string
	if s.deps.Audio != nil && !s.payload.Empty() {
		if ref, err = s.deps.Audio.Save(s.payload); err != nil {
			return cases.Record{}, s.fail(EventAnalyzeFailed, err)
		}
	}
	rec, err := s.deps.Cases.Create(parent, fields.Draft(text, ref, s.tags, s.notes))
	if err != nil {
		if ref != "" {
			if rerr := s.deps.Audio.Remove(ref); rerr != nil {
				s.log.Warn("remove unsaved case audio", zap.String("ref", ref), zap.Error(rerr))
			}
		}
		return cases.Record{}, s.fail(EventAnalyzeFailed, err)
	}
	s.record = &rec
	s.log.Info("case finalized", zap.String("id", rec.ID), zap.String("specialty", rec.Specialty))
	return rec, s.fire(EventAnalyzeOK)
}

// Discard abandons the session from any non-terminal state. An in-flight
// call is cancelled and its result ignored; live capture is released.
// Discarding a discarded session is a no-op.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Discarded {
		return nil
	}
	from := s.state
	if err := s.fire(EventDiscard); err != nil {
		return err
	}
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.payload = audio.Payload{}
	// A start or stop in flight releases the device itself.
	if from == Recording && s.capture == captureIdle && s.deps.Recorder != nil {
		if err := s.deps.Recorder.Discard(); err != nil {
			s.log.Warn("release capture device", zap.Error(err))
		}
	}
	return nil
}
