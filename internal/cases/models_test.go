package cases

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftNormalized(t *testing.T) {
	d := Draft{Tags: []string{"MI", " mi", "Chest Pain"}}.Normalized()

	assert.Equal(t, []string{"mi", "chest-pain"}, d.Tags)
	assert.NotNil(t, d.KeyFindings)
	assert.NotNil(t, d.DifferentialDiagnosis)
	assert.NotNil(t, d.LearningPoints)
}

func TestFieldsDraftMergesTags(t *testing.T) {
	f := Fields{
		Specialty:     "Cardiology",
		Summary:       "Inferior STEMI",
		KeyFindings:   []string{"ST elevation II, III, aVF"},
		SuggestedTags: []string{"stemi", "cardiology", "Urgent"},
	}

	d := f.Draft("58M with chest pain", "", []string{"urgent", "teaching"}, "follow up troponin")

	assert.Equal(t, "58M with chest pain", d.Transcription)
	assert.Equal(t, "Cardiology", d.Specialty)
	assert.Equal(t, []string{"urgent", "teaching", "stemi", "cardiology"}, d.Tags)
	assert.Equal(t, "follow up troponin", d.Notes)
	assert.Empty(t, d.AudioReference)
	assert.Equal(t, []string{}, d.LearningPoints)
}

func TestPatchApply(t *testing.T) {
	base := Draft{
		Specialty:    "Cardiology",
		Summary:      "old",
		Demographics: Demographics{AgeRange: "50-60", Gender: "male"},
		Tags:         []string{"mi"},
	}

	got := Patch{
		Summary:      StringPtr("new"),
		Demographics: &DemographicsPatch{Gender: StringPtr("not specified")},
		Tags:         ListPtr([]string{"MI", "ECG", "ecg"}),
		IsFavorite:   BoolPtr(true),
	}.Apply(base)

	assert.Equal(t, "Cardiology", got.Specialty)
	assert.Equal(t, "new", got.Summary)
	assert.Equal(t, Demographics{AgeRange: "50-60", Gender: "not specified"}, got.Demographics)
	assert.Equal(t, []string{"mi", "ecg"}, got.Tags)
	assert.True(t, got.IsFavorite)
}

func TestEmptyPatchLeavesDraft(t *testing.T) {
	base := Draft{Specialty: "Neurology", Tags: []string{"stroke"}}.Normalized()
	assert.Equal(t, base, Patch{}.Apply(base))
}

func TestPatchFromJSONOnlySetsSuppliedFields(t *testing.T) {
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(`{"notes":"seen in clinic","key_findings":[]}`), &p))

	assert.Nil(t, p.Summary)
	require.NotNil(t, p.Notes)
	assert.Equal(t, "seen in clinic", *p.Notes)
	require.NotNil(t, p.KeyFindings)
	assert.Empty(t, *p.KeyFindings)
}

func TestQueryMatches(t *testing.T) {
	cardio := Record{ID: "1", Draft: Draft{
		Specialty:     "Cardiology",
		Transcription: "Patient with crushing CHEST PAIN radiating to the jaw",
		Tags:          []string{"mi", "stemi"},
	}}
	cardioNoMatch := Record{ID: "2", Draft: Draft{
		Specialty: "Cardiology",
		Summary:   "Atrial fibrillation follow-up",
		Tags:      []string{"af"},
	}}
	emergency := Record{ID: "3", Draft: Draft{
		Specialty: "Emergency Medicine",
		Summary:   "chest pain, ruled out ACS",
		Tags:      []string{"stroke"},
	}}

	q := Query{Text: "chest pain", Specialty: StringPtr("Cardiology")}
	assert.True(t, q.Matches(cardio))
	assert.False(t, q.Matches(cardioNoMatch))
	assert.False(t, q.Matches(emergency))

	tagQ := Query{Tags: []string{"ecg", "mi"}}
	assert.True(t, tagQ.Matches(Record{Draft: Draft{Tags: []string{"MI", "stemi"}}}))
	assert.False(t, tagQ.Matches(Record{Draft: Draft{Tags: []string{"stroke"}}}))

	assert.True(t, Query{}.Matches(emergency))
	assert.True(t, Query{Text: "emergency"}.Matches(emergency))
	assert.False(t, Query{FavoritesOnly: true}.Matches(emergency))
}

func TestQueryTextIsPlainSubstring(t *testing.T) {
	admin := Record{Draft: Draft{Summary: "Admin note", Transcription: "mid-shift handover"}}
	infarct := Record{Draft: Draft{Summary: "Inferior MI at rest"}}

	padded := Query{Text: " mi "}
	assert.False(t, padded.Matches(admin), "padding is part of the needle")
	assert.True(t, padded.Matches(infarct))

	assert.True(t, Query{Text: "MID"}.Matches(admin))
	assert.True(t, Query{Text: ""}.Matches(admin))
}

func TestQueryEmptySpecialtyFilter(t *testing.T) {
	blank := Record{Draft: Draft{Specialty: ""}}
	assert.True(t, Query{Specialty: StringPtr("")}.Matches(blank))
	assert.False(t, Query{Specialty: StringPtr("")}.Matches(Record{Draft: Draft{Specialty: "Surgery"}}))
}
