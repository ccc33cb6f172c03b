package app

import (
	"github.com/elparko/CaseTracker/internal/analytics"
	"github.com/elparko/CaseTracker/internal/cases"
)

// CasesLoadedMsg carries the case list and summary read from the repository.
type CasesLoadedMsg struct {
	Cases   []cases.Record
	Summary analytics.Summary
	Err     error
}

// SessionStepMsg reports the outcome of a workflow step run in the
// background.
type SessionStepMsg struct {
	Step string
	Err  error
}

// FavoriteToggledMsg carries the record after a favorite toggle.
type FavoriteToggledMsg struct {
	Record cases.Record
	Err    error
}

// SuggestionsMsg carries tag completions for the tag input.
type SuggestionsMsg struct {
	Query string
	Tags  []string
}

// LevelTickMsg polls the capture level while recording.
type LevelTickMsg struct{}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
