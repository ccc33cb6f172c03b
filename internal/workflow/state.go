// Package workflow drives one clinical case from capture to a persisted
// record: Idle, Recording, Recorded, Transcribing, Reviewing, Analyzing, and
// finally Finalized or Discarded.
package workflow

import (
	"fmt"

	"github.com/elparko/CaseTracker/internal/apperr"
)

// State is a capture session state.
type State int

const (
	Idle State = iota
	Recording
	Recorded
	Transcribing
	Reviewing
	Analyzing
	Finalized
	Discarded
)

var stateNames = [...]string{
	Idle:         "idle",
	Recording:    "recording",
	Recorded:     "recorded",
	Transcribing: "transcribing",
	Reviewing:    "reviewing",
	Analyzing:    "analyzing",
	Finalized:    "finalized",
	Discarded:    "discarded",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Finalized || s == Discarded
}

// Busy reports whether an external call is in flight.
func (s State) Busy() bool {
	return s == Transcribing || s == Analyzing
}

// Event drives a transition.
type Event int

const (
	EventStart Event = iota
	EventStop
	EventImport
	EventTranscribe
	EventTranscribeOK
	EventTranscribeFailed
	EventManualEntry
	EventEdit
	EventAnalyze
	EventAnalyzeOK
	EventAnalyzeFailed
	EventDiscard
	EventCaptureFailed
)

var eventNames = [...]string{
	EventStart:            "start",
	EventStop:             "stop",
	EventImport:           "import",
	EventTranscribe:       "transcribe",
	EventTranscribeOK:     "transcription succeeded",
	EventTranscribeFailed: "transcription failed",
	EventManualEntry:      "manual entry",
	EventEdit:             "edit",
	EventAnalyze:          "analyze",
	EventAnalyzeOK:        "analysis succeeded",
	EventAnalyzeFailed:    "analysis failed",
	EventDiscard:          "discard",
	EventCaptureFailed:    "capture failed",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

var transitions = map[State]map[Event]State{
	Idle: {
		EventStart:         Recording,
		EventImport:        Recorded,
		EventManualEntry:   Reviewing,
		EventCaptureFailed: Discarded,
		EventDiscard:       Discarded,
	},
	Recording: {
		EventStart:         Recording,
		EventStop:          Recorded,
		EventCaptureFailed: Discarded,
		EventDiscard:       Discarded,
	},
	Recorded: {
		EventTranscribe: Transcribing,
		EventDiscard:    Discarded,
	},
	Transcribing: {
		EventTranscribeOK:     Reviewing,
		EventTranscribeFailed: Recorded,
		EventDiscard:          Discarded,
	},
	Reviewing: {
		EventEdit:    Reviewing,
		EventAnalyze: Analyzing,
		EventDiscard: Discarded,
	},
	Analyzing: {
		EventAnalyzeOK:     Finalized,
		EventAnalyzeFailed: Reviewing,
		EventDiscard:       Discarded,
	},
}

// Next returns the state reached from s on e, or an InvalidState error when
// e is not allowed in s.
func Next(s State, e Event) (State, error) {
	if to, ok := transitions[s][e]; ok {
		return to, nil
	}
	return s, apperr.New(apperr.KindInvalidState, fmt.Sprintf("cannot %s while %s", e, s))
}
