package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeRecorder struct {
	startErr  error
	stopErr   error
	payload   audio.Payload
	discarded int
	// opening, when set, makes Start hang until its context is cancelled.
	opening chan struct{}
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	if r.opening != nil {
		close(r.opening)
		<-ctx.Done()
		return nil
	}
	return r.startErr
}

func (r *fakeRecorder) Stop() (audio.Payload, error) {
	if r.stopErr != nil {
		return audio.Payload{}, r.stopErr
	}
	return r.payload, nil
}

func (r *fakeRecorder) Discard() error {
	r.discarded++
	return nil
}

// fakeTranscriber pops results in order. When block is set it waits for the
// context to be cancelled.
type fakeTranscriber struct {
	mu      sync.Mutex
	results []error
	text    string
	calls   int
	block   chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ audio.Payload) (string, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.results) > 0 {
		err, f.results = f.results[0], f.results[1:]
	}
	f.mu.Unlock()

	if f.block != nil {
		close(f.block)
		<-ctx.Done()
		return "late text", nil
	}
	return f.text, err
}

type fakeAnalyzer struct {
	fields cases.Fields
	err    error
	calls  int
	texts  []string
	block  chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) (cases.Fields, error) {
	f.calls++
	f.texts = append(f.texts, text)
	if f.block != nil {
		close(f.block)
		<-ctx.Done()
		return f.fields, nil
	}
	return f.fields, f.err
}

type fakeCases struct {
	created []cases.Draft
	err     error
}

func (f *fakeCases) Create(_ context.Context, d cases.Draft) (cases.Record, error) {
	if f.err != nil {
		return cases.Record{}, f.err
	}
	f.created = append(f.created, d)
	return cases.Record{ID: "case-1", CreatedAt: time.Now(), UpdatedAt: time.Now(), Draft: d.Normalized()}, nil
}

type fakeAudio struct {
	saved     []audio.Payload
	removed   []string
	removeErr error
}

func (f *fakeAudio) Save(p audio.Payload) (string, error) {
	f.saved = append(f.saved, p)
	return "/audio/case.wav", nil
}

func (f *fakeAudio) Remove(ref string) error {
	f.removed = append(f.removed, ref)
	return f.removeErr
}

type transitionLog struct {
	mu  sync.Mutex
	log []string
}

func (l *transitionLog) ObserveTransition(from, to State, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = append(l.log, from.String()+"->"+to.String())
}

type fixture struct {
	rec     *fakeRecorder
	tr      *fakeTranscriber
	an      *fakeAnalyzer
	store   *fakeCases
	audio   *fakeAudio
	obs     *transitionLog
	session *Session
}

func newFixture() *fixture {
	f := &fixture{
		rec:   &fakeRecorder{payload: audio.Payload{Data: []byte("RIFF"), Format: audio.FormatWAV, Duration: 42 * time.Second}},
		tr:    &fakeTranscriber{text: "58M crushing chest pain"},
		an:    &fakeAnalyzer{fields: cases.Fields{Specialty: "Cardiology", Summary: "STEMI", SuggestedTags: []string{"stemi", "urgent"}}},
		store: &fakeCases{},
		audio: &fakeAudio{},
		obs:   &transitionLog{},
	}
	f.session = NewSession(Deps{
		Recorder:    f.rec,
		Transcriber: f.tr,
		Analyzer:    f.an,
		Cases:       f.store,
		Audio:       f.audio,
		Observer:    f.obs,
	})
	return f
}

func (f *fixture) recordAndTranscribe(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))
	_, err := f.session.Stop()
	require.NoError(t, err)
	_, err = f.session.Transcribe(ctx)
	require.NoError(t, err)
}

func TestStartStopRecorded(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.session.Start(context.Background()))
	require.NoError(t, f.session.Start(context.Background()), "start while recording is a no-op")
	p, err := f.session.Stop()
	require.NoError(t, err)

	assert.Equal(t, Recorded, f.session.State())
	assert.Equal(t, 42, p.Seconds())
	snap := f.session.Snapshot()
	assert.True(t, snap.HasAudio)
	assert.Equal(t, 42, snap.AudioSecs)
}

func TestHappyPath(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.recordAndTranscribe(t)

	snap := f.session.Snapshot()
	assert.Equal(t, Reviewing, snap.State)
	assert.Equal(t, "58M crushing chest pain", snap.Text)

	require.NoError(t, f.session.Edit("58M crushing chest pain, troponin 2.1"))
	require.NoError(t, f.session.AddTags("Teaching", "URGENT"))
	require.NoError(t, f.session.SetNotes("present at rounds"))

	rec, err := f.session.Analyze(ctx)
	require.NoError(t, err)

	assert.Equal(t, Finalized, f.session.State())
	assert.Equal(t, []string{"58M crushing chest pain, troponin 2.1"}, f.an.texts)
	require.Len(t, f.store.created, 1)
	d := f.store.created[0]
	assert.Equal(t, "58M crushing chest pain, troponin 2.1", d.Transcription)
	assert.Equal(t, "/audio/case.wav", d.AudioReference)
	assert.Equal(t, "Cardiology", d.Specialty)
	assert.Equal(t, []string{"teaching", "urgent", "stemi"}, d.Tags)
	assert.Equal(t, "present at rounds", d.Notes)
	assert.Equal(t, "case-1", rec.ID)
	assert.Equal(t, "case-1", f.session.Snapshot().Record.ID)

	assert.Equal(t, []string{
		"idle->recording", "recording->recorded", "recorded->transcribing",
		"transcribing->reviewing", "reviewing->reviewing", "reviewing->reviewing",
		"reviewing->reviewing", "reviewing->analyzing", "analyzing->finalized",
	}, f.obs.log)
}

func TestTranscriptionFailureKeepsPayload(t *testing.T) {
	f := newFixture()
	f.tr.results = []error{apperr.New(apperr.KindServiceUnavailable, "whisper down")}
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx))
	_, err := f.session.Stop()
	require.NoError(t, err)

	_, err = f.session.Transcribe(ctx)
	assert.True(t, apperr.Is(err, apperr.KindServiceUnavailable))

	snap := f.session.Snapshot()
	assert.Equal(t, Recorded, snap.State)
	assert.True(t, snap.HasAudio)
	assert.Equal(t, err, snap.LastErr)

	text, err := f.session.Transcribe(ctx)
	require.NoError(t, err, "retry after failure")
	assert.Equal(t, "58M crushing chest pain", text)
	assert.Equal(t, Reviewing, f.session.State())
	assert.Nil(t, f.session.Snapshot().LastErr)
}

func TestAnalyzeEmptyTextRejected(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.session.ManualEntry())
	require.NoError(t, f.session.Edit("   \n\t"))

	_, err := f.session.Analyze(context.Background())

	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, Reviewing, f.session.State())
	assert.Zero(t, f.an.calls)
}

func TestAnalysisFailureKeepsText(t *testing.T) {
	f := newFixture()
	f.an.err = apperr.New(apperr.KindTimeout, "ollama slow")
	f.recordAndTranscribe(t)
	require.NoError(t, f.session.Edit("edited text"))

	_, err := f.session.Analyze(context.Background())

	assert.True(t, apperr.Is(err, apperr.KindTimeout))
	snap := f.session.Snapshot()
	assert.Equal(t, Reviewing, snap.State)
	assert.Equal(t, "edited text", snap.Text)
	assert.Empty(t, f.store.created)
	assert.Empty(t, f.audio.saved)
}

func TestCreateFailureRemovesSavedAudio(t *testing.T) {
	f := newFixture()
	f.store.err = errors.New("disk full")
	f.recordAndTranscribe(t)

	_, err := f.session.Analyze(context.Background())

	assert.Error(t, err)
	assert.Equal(t, Reviewing, f.session.State())
	assert.Equal(t, []string{"/audio/case.wav"}, f.audio.removed)
}

func TestCreateFailureLogsAudioCleanup(t *testing.T) {
	f := newFixture()
	core, logs := observer.New(zap.WarnLevel)
	f.session.log = zap.New(core)
	f.store.err = errors.New("disk full")
	f.audio.removeErr = errors.New("read-only file system")
	f.recordAndTranscribe(t)

	_, err := f.session.Analyze(context.Background())

	assert.EqualError(t, err, "disk full")
	entries := logs.FilterMessage("remove unsaved case audio").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/audio/case.wav", entries[0].ContextMap()["ref"])
}

func TestManualEntryHasNoAudio(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.session.ManualEntry())
	require.NoError(t, f.session.Edit("typed case"))

	_, err := f.session.Analyze(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.store.created[0].AudioReference)
	assert.Empty(t, f.audio.saved)
}

func TestImport(t *testing.T) {
	f := newFixture()

	assert.True(t, apperr.IsValidation(f.session.Import(audio.Payload{})))
	require.NoError(t, f.session.Import(audio.Payload{Data: []byte("ID3"), Format: "audio/mpeg"}))
	assert.Equal(t, Recorded, f.session.State())
}

func TestCaptureFailureDiscards(t *testing.T) {
	f := newFixture()
	f.rec.startErr = apperr.New(apperr.KindPermissionDenied, "microphone denied")

	err := f.session.Start(context.Background())

	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))
	assert.Equal(t, Discarded, f.session.State())
}

func TestStopFailureDiscards(t *testing.T) {
	f := newFixture()
	f.rec.stopErr = apperr.New(apperr.KindDeviceUnavailable, "unplugged")
	require.NoError(t, f.session.Start(context.Background()))

	_, err := f.session.Stop()

	assert.True(t, apperr.Is(err, apperr.KindDeviceUnavailable))
	assert.Equal(t, Discarded, f.session.State())
}

func TestDiscardWhileRecordingReleasesDevice(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.session.Start(context.Background()))

	require.NoError(t, f.session.Discard())
	require.NoError(t, f.session.Discard(), "discarding twice is a no-op")

	assert.Equal(t, Discarded, f.session.State())
	assert.Equal(t, 1, f.rec.discarded)
}

func TestDiscardWhileDeviceOpens(t *testing.T) {
	f := newFixture()
	f.rec.opening = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- f.session.Start(context.Background()) }()

	<-f.rec.opening
	err := f.session.ManualEntry()
	assert.True(t, apperr.Is(err, apperr.KindInvalidState), "no other step while the device opens: %v", err)

	discarded := make(chan error, 1)
	go func() { discarded <- f.session.Discard() }()
	select {
	case err := <-discarded:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Discard blocked behind a hanging Start")
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAbandoned)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Discard")
	}
	assert.Equal(t, Discarded, f.session.State())
	assert.Equal(t, 1, f.rec.discarded, "a device opened after discard is released")
}

func TestDiscardDuringTranscription(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.session.Start(context.Background()))
	_, err := f.session.Stop()
	require.NoError(t, err)

	f.tr.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.session.Transcribe(context.Background())
		done <- err
	}()

	<-f.tr.block
	assert.Equal(t, Transcribing, f.session.State())
	require.NoError(t, f.session.Discard())

	assert.ErrorIs(t, <-done, ErrAbandoned)
	snap := f.session.Snapshot()
	assert.Equal(t, Discarded, snap.State)
	assert.Empty(t, snap.Text, "late result must be ignored")
	assert.False(t, snap.HasAudio)
}

func TestDiscardDuringAnalysisCreatesNothing(t *testing.T) {
	f := newFixture()
	f.recordAndTranscribe(t)

	f.an.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.session.Analyze(context.Background())
		done <- err
	}()

	<-f.an.block
	require.NoError(t, f.session.Discard())

	assert.ErrorIs(t, <-done, ErrAbandoned)
	assert.Empty(t, f.store.created)
	assert.Empty(t, f.audio.saved)
}

func TestOneCallInFlight(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.session.Start(context.Background()))
	_, err := f.session.Stop()
	require.NoError(t, err)

	f.tr.block = make(chan struct{})
	go f.session.Transcribe(context.Background())
	<-f.tr.block

	_, err = f.session.Transcribe(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	assert.Error(t, f.session.Edit("nope"))

	f.session.Discard()
}

func TestFinalizedIsTerminal(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.session.ManualEntry())
	require.NoError(t, f.session.Edit("text"))
	_, err := f.session.Analyze(context.Background())
	require.NoError(t, err)

	assert.True(t, apperr.Is(f.session.Discard(), apperr.KindInvalidState))
	assert.True(t, apperr.Is(f.session.Start(context.Background()), apperr.KindInvalidState))
	assert.Equal(t, Finalized, f.session.State())
}

func TestTagsOnlyWhileReviewing(t *testing.T) {
	f := newFixture()
	assert.Error(t, f.session.AddTags("mi"))

	require.NoError(t, f.session.ManualEntry())
	require.NoError(t, f.session.AddTags("MI", "Chest Pain", "mi"))
	require.NoError(t, f.session.RemoveTags("chest pain"))

	assert.Equal(t, []string{"mi"}, f.session.Snapshot().Tags)
}
