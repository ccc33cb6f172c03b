package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elparko/CaseTracker/internal/analytics"
	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/elparko/CaseTracker/internal/config"
)

const analysisJSON = `{
	"specialty": "Cardiology",
	"case_type": "Diagnostic",
	"complexity": "High",
	"patient_demographics": {"age_range": "50-60", "gender": "male"},
	"summary": "Inferior STEMI",
	"key_findings": ["ST elevation in II, III, aVF"],
	"differential_diagnosis": ["Aortic dissection"],
	"learning_points": ["Check right-sided leads"],
	"tags": ["stemi"]
}`

type harness struct {
	t       *testing.T
	deps    *Dependencies
	whisper int // status the fake Whisper server answers with
	heard   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, whisper: http.StatusOK, heard: "58 yo male with chest pain"}

	whisper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.whisper != http.StatusOK {
			w.WriteHeader(h.whisper)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": h.heard})
	}))
	t.Cleanup(whisper.Close)

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.Write([]byte(`{"models":[]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": analysisJSON})
	}))
	t.Cleanup(ollama.Close)

	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "casebook.sqlite")
	cfg.AudioDir = t.TempDir()
	cfg.Whisper.URL = whisper.URL
	cfg.Ollama.URL = ollama.URL
	cfg.Capture.FFmpegPath = "casebook-test-no-ffmpeg"

	h.deps = &Dependencies{Config: cfg, Stdin: strings.NewReader("")}
	t.Cleanup(func() { h.deps.Close() })
	return h
}

// run executes one command line and returns its stdout.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	h.deps.Stdin = strings.NewReader(stdin)
	var out bytes.Buffer
	cmd := NewRootCmd(h.deps)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run("", args...)
	require.NoError(h.t, err, "casebook %s: %s", strings.Join(args, " "), out)
	return out
}

func (h *harness) addCase(text string, extra ...string) cases.Record {
	h.t.Helper()
	out := h.mustRun(append([]string{"add", "--json", "--text", text}, extra...)...)
	var rec cases.Record
	require.NoError(h.t, json.Unmarshal([]byte(out), &rec), out)
	return rec
}

func wavFile(t *testing.T, seconds int) string {
	t.Helper()
	const rate = 16000
	pcm := make([]byte, rate*2*seconds)
	out := make([]byte, 44+len(pcm))
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], 1)
	binary.LittleEndian.PutUint32(out[24:], rate)
	binary.LittleEndian.PutUint32(out[28:], rate*2)
	binary.LittleEndian.PutUint16(out[32:], 2)
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))

	path := filepath.Join(t.TempDir(), "rounds.wav")
	require.NoError(t, os.WriteFile(path, out, 0o644))
	return path
}

func TestAddFromText(t *testing.T) {
	h := newHarness(t)

	rec := h.addCase("  58 yo male, crushing chest pain  ", "--tags", "ICU", "--notes", "ask about troponin")

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "58 yo male, crushing chest pain", rec.Transcription)
	assert.Equal(t, "Cardiology", rec.Specialty)
	assert.Equal(t, "50-60", rec.Demographics.AgeRange)
	assert.Equal(t, []string{"Aortic dissection"}, rec.DifferentialDiagnosis)
	assert.Equal(t, "ask about troponin", rec.Notes)
	assert.Empty(t, rec.AudioReference)
	require.NotEmpty(t, rec.Tags)
	assert.Equal(t, "icu", rec.Tags[0])
	assert.Contains(t, rec.Tags, "stemi")

	out := h.mustRun("add", "--text", "second case")
	assert.Contains(t, out, "Analyzing")
	assert.Contains(t, out, "Case saved")
}

func TestAddFromStdin(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("piped case text\n", "add", "--json")
	require.NoError(t, err)
	var rec cases.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "piped case text", rec.Transcription)
}

func TestAddRejectsEmptyText(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("   \n", "add")
	assert.True(t, apperr.IsValidation(err), "got %v", err)

	out := h.mustRun("list", "--json")
	assert.JSONEq(t, "[]", out)
}

func TestAddTextAndFileExclusive(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "add", "--text", "x", "--file", "y.wav")
	assert.Error(t, err)
}

func TestAddFromAudioFile(t *testing.T) {
	h := newHarness(t)
	path := wavFile(t, 2)

	out, err := h.run("", "add", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded "+path+" (2s)")
	assert.Contains(t, out, "Transcribing")

	var recs []cases.Record
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("list", "--json")), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "58 yo male with chest pain", recs[0].Transcription)
	require.NotEmpty(t, recs[0].AudioReference)
	_, err = os.Stat(recs[0].AudioReference)
	assert.NoError(t, err, "recording should be kept")
}

func TestAddAudioNotKept(t *testing.T) {
	h := newHarness(t)
	h.deps.Config.KeepAudio = false

	h.mustRun("add", "--file", wavFile(t, 1))

	var recs []cases.Record
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("list", "--json")), &recs))
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].AudioReference)
}

func TestAddTranscriptionFailure(t *testing.T) {
	h := newHarness(t)
	h.whisper = http.StatusServiceUnavailable

	_, err := h.run("", "add", "--file", wavFile(t, 1))
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))

	assert.JSONEq(t, "[]", h.mustRun("list", "--json"))
}

func TestAddSilentRecording(t *testing.T) {
	h := newHarness(t)
	h.heard = ""

	_, err := h.run("", "add", "--file", wavFile(t, 1))
	assert.True(t, apperr.IsValidation(err), "got %v", err)
}

func TestListAndShow(t *testing.T) {
	h := newHarness(t)
	first := h.addCase("first")
	second := h.addCase("second")

	out := h.mustRun("list")
	assert.Contains(t, out, first.ID)
	assert.Contains(t, out, second.ID)
	assert.Less(t, strings.Index(out, second.ID), strings.Index(out, first.ID), "newest first")

	var page []cases.Record
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("list", "--json", "--skip", "1", "--limit", "1")), &page))
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	out = h.mustRun("show", first.ID)
	assert.Contains(t, out, "Inferior STEMI")
	assert.Contains(t, out, "Check right-sided leads")

	_, err := h.run("", "show", "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestUpdateAndSearch(t *testing.T) {
	h := newHarness(t)
	a := h.addCase("chest pain at rest")
	b := h.addCase("new onset aphasia")

	out := h.mustRun("update", b.ID, "--specialty", "Neurology", "--finding", "aphasia", "--finding", "right arm weakness", "--gender", "female", "--json")
	var updated cases.Record
	require.NoError(t, json.Unmarshal([]byte(out), &updated))
	assert.Equal(t, "Neurology", updated.Specialty)
	assert.Equal(t, []string{"aphasia", "right arm weakness"}, updated.KeyFindings)
	assert.Equal(t, "female", updated.Demographics.Gender)
	assert.Equal(t, "50-60", updated.Demographics.AgeRange, "unset fields are kept")
	assert.Equal(t, b.Summary, updated.Summary)

	search := func(args ...string) []string {
		var recs []cases.Record
		require.NoError(t, json.Unmarshal([]byte(h.mustRun(append([]string{"search", "--json"}, args...)...)), &recs))
		ids := make([]string, len(recs))
		for i, r := range recs {
			ids[i] = r.ID
		}
		return ids
	}

	assert.Equal(t, []string{b.ID}, search("--specialty", "Neurology"))
	assert.Equal(t, []string{a.ID}, search("CHEST"))
	assert.Equal(t, []string{b.ID, a.ID}, search("--tag", "stemi"))
	assert.Empty(t, search("--favorites"))

	_, err := h.run("", "update", a.ID)
	assert.True(t, apperr.IsValidation(err))
}

func TestFavoriteAndStats(t *testing.T) {
	h := newHarness(t)
	rec := h.addCase("case one")
	h.addCase("case two")

	out := h.mustRun("favorite", rec.ID)
	assert.Contains(t, out, "is a favorite")

	var got []cases.Record
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("search", "--favorites", "--json")), &got))
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)

	var stats struct {
		analytics.Summary
		GoalProgress float64 `json:"goal_progress"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("stats", "--json")), &stats))
	assert.Equal(t, 2, stats.TotalCases)
	assert.Equal(t, 1, stats.FavoriteCases)
	assert.Equal(t, 2, stats.CasesThisMonth)
	assert.Equal(t, map[string]int{"Cardiology": 2}, stats.SpecialtyDistribution)
	assert.InDelta(t, 0.1, stats.GoalProgress, 1e-9)

	out = h.mustRun("stats")
	assert.Contains(t, out, "2 / 20")

	h.mustRun("favorite", rec.ID, "--off")
	assert.JSONEq(t, "[]", h.mustRun("search", "--favorites", "--json"))
}

func TestDeleteAsksFirst(t *testing.T) {
	h := newHarness(t)
	rec := h.addCase("to delete")

	out, err := h.run("n\n", "delete", rec.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Kept")
	h.mustRun("show", rec.ID)

	out, err = h.run("y\n", "delete", rec.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted")

	_, err = h.run("", "show", rec.ID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = h.run("", "delete", "--force", rec.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestTags(t *testing.T) {
	h := newHarness(t)
	rec := h.addCase("tagged", "--tags", "icu,sepsis")
	h.addCase("other", "--tags", "icu")

	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("tags", "--json")), &counts))
	assert.Equal(t, 2, counts["icu"])
	assert.Equal(t, 1, counts["sepsis"])
	assert.Equal(t, 2, counts["stemi"])

	out := h.mustRun("tags")
	assert.Contains(t, out, "#icu")

	var suggested []string
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("tags", "--suggest", "s", "--json", "stemi")), &suggested))
	assert.Equal(t, []string{"diagnostic", "sepsis"}, suggested)

	out = h.mustRun("tags", "--remove", rec.ID, "SEPSIS")
	assert.Contains(t, out, "Removed")
	var after cases.Record
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("show", rec.ID, "--json")), &after))
	assert.NotContains(t, after.Tags, "sepsis")
	assert.Contains(t, after.Tags, "icu")

	_, err := h.run("", "tags", "--remove", rec.ID)
	assert.True(t, apperr.IsValidation(err))
}

func TestDoctor(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("doctor")
	assert.Contains(t, out, "✅ Database")
	assert.Contains(t, out, "✅ Whisper")
	assert.Contains(t, out, "✅ Ollama")
	assert.Contains(t, out, "❌ ffmpeg")
	assert.Contains(t, out, "Some prerequisites are missing")
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("version")
	assert.True(t, strings.HasPrefix(out, "casebook "))
}

func TestCommandsOpenLazily(t *testing.T) {
	h := newHarness(t)
	opened := 0
	h.deps.Open = func() (*App, error) {
		opened++
		return NewApp(h.deps.Config, nil)
	}

	h.mustRun("version")
	assert.Equal(t, 0, opened)

	h.mustRun("list")
	assert.Equal(t, 1, opened)
	assert.Nil(t, h.deps.app, "app is closed after the command")
}

type heldStream struct{ aborted *int }

func (s heldStream) Finish() (audio.Payload, error) { return audio.Payload{}, nil }

func (s heldStream) Abort() error {
	*s.aborted++
	return nil
}

type heldDevice struct{ aborted *int }

func (d heldDevice) Open(context.Context) (audio.Stream, error) {
	return heldStream{aborted: d.aborted}, nil
}

func TestReleaseCaptureAfterExit(t *testing.T) {
	aborted := 0
	a := &App{Capture: audio.NewCapture(heldDevice{aborted: &aborted}, nil)}

	releaseCapture(a, zap.NewNop())
	assert.Zero(t, aborted, "nothing to release when idle")

	require.NoError(t, a.Capture.Start(context.Background()))
	releaseCapture(a, zap.NewNop())

	assert.Equal(t, 1, aborted)
	assert.False(t, a.Capture.Active())
}
