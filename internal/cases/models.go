// Package cases defines the case record model shared by the workflow, the
// repository and the surfaces that present cases.
package cases

import (
	"strings"
	"time"

	"github.com/elparko/CaseTracker/internal/tags"
)

// Demographics are anonymized patient details. Free text by convention.
type Demographics struct {
	AgeRange string `json:"age_range" validate:"max=50"`
	Gender   string `json:"gender" validate:"max=50"`
}

// Draft holds every user- or analysis-supplied field of a case record.
type Draft struct {
	AudioReference        string       `json:"audio_reference,omitempty"`
	Transcription         string       `json:"transcription" validate:"max=200000"`
	Specialty             string       `json:"specialty" validate:"max=100"`
	CaseType              string       `json:"case_type" validate:"max=100"`
	Complexity            string       `json:"complexity" validate:"max=50"`
	Demographics          Demographics `json:"patient_demographics"`
	Summary               string       `json:"summary" validate:"max=5000"`
	KeyFindings           []string     `json:"key_findings" validate:"dive,max=2000"`
	DifferentialDiagnosis []string     `json:"differential_diagnosis" validate:"dive,max=2000"`
	LearningPoints        []string     `json:"learning_points" validate:"dive,max=2000"`
	Tags                  []string     `json:"tags" validate:"dive,max=64"`
	Notes                 string       `json:"notes,omitempty" validate:"max=20000"`
	IsFavorite            bool         `json:"is_favorite"`
}

// Record is a persisted case.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Draft
}

// Normalized returns a copy of d with tags normalized and deduplicated and
// every list non-nil.
func (d Draft) Normalized() Draft {
	d.KeyFindings = cloneList(d.KeyFindings)
	d.DifferentialDiagnosis = cloneList(d.DifferentialDiagnosis)
	d.LearningPoints = cloneList(d.LearningPoints)
	d.Tags = tags.Dedupe(d.Tags)
	return d
}

// Fields is the structured output of case analysis. Undetermined values are
// empty, never missing.
type Fields struct {
	Specialty             string       `json:"specialty"`
	CaseType              string       `json:"case_type"`
	Complexity            string       `json:"complexity"`
	Demographics          Demographics `json:"patient_demographics"`
	Summary               string       `json:"summary"`
	KeyFindings           []string     `json:"key_findings"`
	DifferentialDiagnosis []string     `json:"differential_diagnosis"`
	LearningPoints        []string     `json:"learning_points"`
	SuggestedTags         []string     `json:"tags"`
}

// Draft merges the analysis output with the reviewed transcription into a new
// draft. Tags the user applied come before suggested ones.
func (f Fields) Draft(transcription, audioRef string, userTags []string, notes string) Draft {
	return Draft{
		AudioReference:        audioRef,
		Transcription:         transcription,
		Specialty:             f.Specialty,
		CaseType:              f.CaseType,
		Complexity:            f.Complexity,
		Demographics:          f.Demographics,
		Summary:               f.Summary,
		KeyFindings:           cloneList(f.KeyFindings),
		DifferentialDiagnosis: cloneList(f.DifferentialDiagnosis),
		LearningPoints:        cloneList(f.LearningPoints),
		Tags:                  tags.Merge(userTags, f.SuggestedTags),
		Notes:                 notes,
	}.Normalized()
}

// DemographicsPatch is a partial update of Demographics.
type DemographicsPatch struct {
	AgeRange *string `json:"age_range,omitempty" validate:"omitempty,max=50"`
	Gender   *string `json:"gender,omitempty" validate:"omitempty,max=50"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Transcription         *string            `json:"transcription,omitempty" validate:"omitempty,max=200000"`
	Specialty             *string            `json:"specialty,omitempty" validate:"omitempty,max=100"`
	CaseType              *string            `json:"case_type,omitempty" validate:"omitempty,max=100"`
	Complexity            *string            `json:"complexity,omitempty" validate:"omitempty,max=50"`
	Demographics          *DemographicsPatch `json:"patient_demographics,omitempty"`
	Summary               *string            `json:"summary,omitempty" validate:"omitempty,max=5000"`
	KeyFindings           *[]string          `json:"key_findings,omitempty" validate:"omitempty,dive,max=2000"`
	DifferentialDiagnosis *[]string          `json:"differential_diagnosis,omitempty" validate:"omitempty,dive,max=2000"`
	LearningPoints        *[]string          `json:"learning_points,omitempty" validate:"omitempty,dive,max=2000"`
	Tags                  *[]string          `json:"tags,omitempty" validate:"omitempty,dive,max=64"`
	Notes                 *string            `json:"notes,omitempty" validate:"omitempty,max=20000"`
	IsFavorite            *bool              `json:"is_favorite,omitempty"`
}

// Apply merges the supplied fields into d and re-normalizes tags.
func (p Patch) Apply(d Draft) Draft {
	if p.Transcription != nil {
		d.Transcription = *p.Transcription
	}
	if p.Specialty != nil {
		d.Specialty = *p.Specialty
	}
	if p.CaseType != nil {
		d.CaseType = *p.CaseType
	}
	if p.Complexity != nil {
		d.Complexity = *p.Complexity
	}
	if p.Demographics != nil {
		if p.Demographics.AgeRange != nil {
			d.Demographics.AgeRange = *p.Demographics.AgeRange
		}
		if p.Demographics.Gender != nil {
			d.Demographics.Gender = *p.Demographics.Gender
		}
	}
	if p.Summary != nil {
		d.Summary = *p.Summary
	}
	if p.KeyFindings != nil {
		d.KeyFindings = *p.KeyFindings
	}
	if p.DifferentialDiagnosis != nil {
		d.DifferentialDiagnosis = *p.DifferentialDiagnosis
	}
	if p.LearningPoints != nil {
		d.LearningPoints = *p.LearningPoints
	}
	if p.Tags != nil {
		d.Tags = *p.Tags
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	if p.IsFavorite != nil {
		d.IsFavorite = *p.IsFavorite
	}
	return d.Normalized()
}

// Query selects records for search. Every present predicate must hold.
type Query struct {
	// Text is matched case-insensitively against transcription, summary and
	// specialty. Empty matches everything.
	Text string
	// Specialty, when set, must equal the record's specialty exactly.
	Specialty *string
	// Tags, when non-empty, must share at least one tag with the record.
	Tags []string
	// FavoritesOnly restricts results to favorite records.
	FavoritesOnly bool
}

// Matches reports whether r satisfies q.
func (q Query) Matches(r Record) bool {
	if q.Specialty != nil && r.Specialty != *q.Specialty {
		return false
	}
	if q.FavoritesOnly && !r.IsFavorite {
		return false
	}
	if len(tags.Dedupe(q.Tags)) > 0 && !tags.Intersects(q.Tags, r.Tags) {
		return false
	}
	needle := strings.ToLower(q.Text)
	if needle == "" {
		return true
	}
	for _, hay := range []string{r.Transcription, r.Summary, r.Specialty} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

// StringPtr returns a pointer to a string value. Convenience for building
// patches and queries.
func StringPtr(s string) *string { return &s }

// BoolPtr returns a pointer to a bool value.
func BoolPtr(b bool) *bool { return &b }

// ListPtr returns a pointer to a string slice.
func ListPtr(l []string) *[]string { return &l }

func cloneList(l []string) []string {
	out := make([]string, len(l))
	copy(out, l)
	return out
}
