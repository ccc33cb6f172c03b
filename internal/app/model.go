// Package app is the interactive capture screen: a case list beside the
// current capture session.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/elparko/CaseTracker/internal/analytics"
	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/elparko/CaseTracker/internal/workflow"

	tea "github.com/charmbracelet/bubbletea"
)

// caseListLimit bounds the cases shown in the list panel.
const caseListLimit = 200

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusCases PanelFocus = iota
	FocusCapture
)

// InputMode selects what the input line is editing.
type InputMode int

const (
	ModeNormal InputMode = iota
	ModeEdit
	ModeTags
	ModeNotes
)

// CaseService is the repository surface the screen reads and writes.
type CaseService interface {
	List(ctx context.Context, skip, limit int) ([]cases.Record, error)
	SetFavorite(ctx context.Context, id string, favorite bool) (cases.Record, error)
	Analytics(ctx context.Context) (analytics.Summary, error)
	SuggestTags(ctx context.Context, query string, exclude []string) ([]string, error)
}

// Meter reports live capture progress.
type Meter interface {
	Level() float32
	Elapsed() time.Duration
}

// Deps are the screen's collaborators. Meter may be nil.
type Deps struct {
	Cases      CaseService
	NewSession func() *workflow.Session
	Meter      Meter
	// Device names the capture input for the header.
	Device string
}

// Model is the root bubbletea model for the capture screen.
type Model struct {
	deps Deps

	// Capture session. stepCtx is cancelled when the session is discarded.
	session *workflow.Session
	snap    workflow.Snapshot
	busy    string
	stepCtx context.Context
	cancel  context.CancelFunc

	// Live capture
	level   float32
	elapsed time.Duration

	// Case list
	cases    []cases.Record
	summary  analytics.Summary
	loaded   bool
	selected int
	expanded bool

	// Input line
	mode        InputMode
	input       string
	suggestions []string

	// UI state
	focusedPanel PanelFocus
	width        int
	height       int

	// Errors
	errorMessage   string
	errorTransient bool
}

// New creates a Model with a fresh session.
func New(deps Deps) Model {
	m := Model{
		deps:         deps,
		focusedPanel: FocusCapture,
	}
	m.resetSession()
	return m
}

// resetSession replaces the session with a fresh Idle one.
func (m *Model) resetSession() {
	if m.cancel != nil {
		m.cancel()
	}
	m.session = m.deps.NewSession()
	m.snap = m.session.Snapshot()
	m.stepCtx, m.cancel = context.WithCancel(context.Background())
}

// abandon discards the session and cancels any step still running for it.
func (m *Model) abandon() error {
	m.cancel()
	return m.session.Discard()
}

// Init loads the case list.
func (m Model) Init() tea.Cmd {
	return loadCasesCmd(m.deps.Cases)
}

// loadCasesCmd reads the newest cases and the analytics summary.
func loadCasesCmd(svc CaseService) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		recs, err := svc.List(ctx, 0, caseListLimit)
		if err != nil {
			return CasesLoadedMsg{Err: err}
		}
		sum, err := svc.Analytics(ctx)
		if err != nil {
			return CasesLoadedMsg{Err: err}
		}
		return CasesLoadedMsg{Cases: recs, Summary: sum}
	}
}

// stepCmd runs a blocking workflow step off the update loop.
func stepCmd(step string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return SessionStepMsg{Step: step, Err: fn()}
	}
}

func startCmd(ctx context.Context, s *workflow.Session) tea.Cmd {
	return stepCmd("start", func() error { return s.Start(ctx) })
}

func stopCmd(s *workflow.Session) tea.Cmd {
	return stepCmd("stop", func() error {
		_, err := s.Stop()
		return err
	})
}

func transcribeCmd(ctx context.Context, s *workflow.Session) tea.Cmd {
	return stepCmd("transcribe", func() error {
		_, err := s.Transcribe(ctx)
		return err
	})
}

func analyzeCmd(ctx context.Context, s *workflow.Session) tea.Cmd {
	return stepCmd("analyze", func() error {
		_, err := s.Analyze(ctx)
		return err
	})
}

func favoriteCmd(svc CaseService, rec cases.Record) tea.Cmd {
	return func() tea.Msg {
		updated, err := svc.SetFavorite(context.Background(), rec.ID, !rec.IsFavorite)
		return FavoriteToggledMsg{Record: updated, Err: err}
	}
}

func suggestCmd(svc CaseService, query string, exclude []string) tea.Cmd {
	return func() tea.Msg {
		got, err := svc.SuggestTags(context.Background(), query, exclude)
		if err != nil {
			return SuggestionsMsg{Query: query}
		}
		return SuggestionsMsg{Query: query, Tags: got}
	}
}

// levelTickCmd polls the meter while recording.
func levelTickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return LevelTickMsg{}
	})
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.mode != ModeNormal {
			return m.handleInputKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case CasesLoadedMsg:
		if msg.Err != nil {
			return m, m.showError(msg.Err, true)
		}
		m.cases = msg.Cases
		m.summary = msg.Summary
		m.loaded = true
		if m.selected >= len(m.cases) {
			m.selected = max(0, len(m.cases)-1)
		}
		return m, nil

	case SessionStepMsg:
		m.busy = ""
		m.snap = m.session.Snapshot()
		if msg.Err != nil {
			// A step queued before a discard fails on the discarded session.
			if errors.Is(msg.Err, workflow.ErrAbandoned) ||
				(m.snap.State == workflow.Discarded && apperr.KindOf(msg.Err) == apperr.KindInvalidState) {
				return m, nil
			}
			return m, m.showError(msg.Err, apperr.KindOf(msg.Err).Recoverable())
		}
		m.clearError()
		switch msg.Step {
		case "start":
			return m, levelTickCmd()
		case "analyze":
			return m, loadCasesCmd(m.deps.Cases)
		}
		return m, nil

	case LevelTickMsg:
		if m.snap.State != workflow.Recording || m.deps.Meter == nil {
			m.level = 0
			return m, nil
		}
		m.level = m.deps.Meter.Level()
		m.elapsed = m.deps.Meter.Elapsed()
		return m, levelTickCmd()

	case FavoriteToggledMsg:
		if msg.Err != nil {
			return m, m.showError(msg.Err, true)
		}
		for i := range m.cases {
			if m.cases[i].ID == msg.Record.ID {
				m.cases[i] = msg.Record
			}
		}
		return m, loadCasesCmd(m.deps.Cases)

	case SuggestionsMsg:
		if m.mode == ModeTags && msg.Query == currentFragment(m.input) {
			m.suggestions = msg.Tags
		}
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.clearError()
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) showError(err error, transient bool) tea.Cmd {
	m.errorMessage = errorText(err)
	m.errorTransient = transient
	if transient {
		return clearTransientErrorCmd()
	}
	return nil
}

func (m *Model) clearError() {
	m.errorMessage = ""
	m.errorTransient = false
}

// errorText prefers the application message over the wrapped chain.
func errorText(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// handleKey processes key presses outside the input line.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	state := m.snap.State

	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if !state.Terminal() {
			_ = m.abandon()
		}
		return m, tea.Quit

	case KeyTab:
		if m.focusedPanel == FocusCases {
			m.focusedPanel = FocusCapture
		} else {
			m.focusedPanel = FocusCases
		}
		return m, nil

	case KeyJ, KeyDown:
		if m.focusedPanel == FocusCases && m.selected < len(m.cases)-1 {
			m.selected++
		}
		return m, nil

	case KeyK, KeyUp:
		if m.focusedPanel == FocusCases && m.selected > 0 {
			m.selected--
		}
		return m, nil

	case KeyEnter:
		if m.focusedPanel == FocusCases {
			m.expanded = !m.expanded
		}
		return m, nil

	case KeyFavorite:
		if m.focusedPanel == FocusCases && m.selected < len(m.cases) {
			return m, favoriteCmd(m.deps.Cases, m.cases[m.selected])
		}
		return m, nil

	case KeyRefresh:
		return m, loadCasesCmd(m.deps.Cases)
	}

	if m.busy != "" {
		if msg.String() == KeyDiscard {
			return m.discard()
		}
		return m, nil
	}

	switch msg.String() {
	case KeySpace:
		switch state {
		case workflow.Idle:
			m.busy = "Starting"
			return m, startCmd(m.stepCtx, m.session)
		case workflow.Recording:
			m.busy = "Stopping"
			return m, stopCmd(m.session)
		}

	case KeyTranscribe:
		if state == workflow.Recorded {
			return m.runBusy("Transcribing", workflow.Transcribing, transcribeCmd(m.stepCtx, m.session))
		}

	case KeyManual:
		if state == workflow.Idle {
			if err := m.session.ManualEntry(); err != nil {
				return m, m.showError(err, true)
			}
			m.snap = m.session.Snapshot()
			m.mode = ModeEdit
			m.input = ""
		}

	case KeyEdit:
		if state == workflow.Reviewing {
			m.mode = ModeEdit
			m.input = m.snap.Text
		}

	case KeyTags:
		if state == workflow.Reviewing {
			m.mode = ModeTags
			m.input = ""
			m.suggestions = nil
			return m, suggestCmd(m.deps.Cases, "", m.snap.Tags)
		}

	case KeyNotes:
		if state == workflow.Reviewing {
			m.mode = ModeNotes
			m.input = m.snap.Notes
		}

	case KeyAnalyze:
		if state == workflow.Reviewing {
			if strings.TrimSpace(m.snap.Text) == "" {
				return m, m.showError(apperr.Validation("transcription text is empty"), true)
			}
			return m.runBusy("Analyzing", workflow.Analyzing, analyzeCmd(m.stepCtx, m.session))
		}

	case KeyDiscard:
		return m.discard()

	case KeyNew:
		if state.Terminal() {
			m.resetSession()
			m.level, m.elapsed = 0, 0
			m.clearError()
		}
	}

	return m, nil
}

// runBusy marks a gateway call in flight. The snapshot shows the busy state
// right away so the panel does not lag the key press.
func (m Model) runBusy(label string, state workflow.State, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = label
	m.snap.State = state
	return m, cmd
}

func (m Model) discard() (tea.Model, tea.Cmd) {
	if m.snap.State.Terminal() && m.busy == "" {
		return m, nil
	}
	if err := m.abandon(); err != nil {
		return m, m.showError(err, true)
	}
	m.busy = ""
	m.snap = m.session.Snapshot()
	m.level, m.elapsed = 0, 0
	return m, nil
}

// handleInputKey edits the input line.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc:
		m.mode = ModeNormal
		m.input = ""
		m.suggestions = nil
		return m, nil

	case KeyEnter:
		return m.commitInput()

	case KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}

	case KeyClearInput:
		m.input = ""

	case KeyTab:
		if m.mode == ModeTags && len(m.suggestions) > 0 {
			m.input = replaceFragment(m.input, m.suggestions[0])
		}

	case KeyCtrlC:
		m.mode = ModeNormal
		m.input = ""
		return m, nil

	default:
		if msg.Type == tea.KeySpace {
			m.input += " "
		} else if msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		} else {
			return m, nil
		}
	}

	if m.mode == ModeTags {
		return m, suggestCmd(m.deps.Cases, currentFragment(m.input), m.snap.Tags)
	}
	return m, nil
}

// commitInput applies the input line to the session.
func (m Model) commitInput() (tea.Model, tea.Cmd) {
	var err error
	switch m.mode {
	case ModeEdit:
		err = m.session.Edit(m.input)
	case ModeNotes:
		err = m.session.SetNotes(strings.TrimSpace(m.input))
	case ModeTags:
		add, remove := parseTagInput(m.input)
		if len(add) > 0 {
			err = m.session.AddTags(add...)
		}
		if err == nil && len(remove) > 0 {
			err = m.session.RemoveTags(remove...)
		}
	}

	m.mode = ModeNormal
	m.input = ""
	m.suggestions = nil
	m.snap = m.session.Snapshot()
	if err != nil {
		return m, m.showError(err, true)
	}
	return m, nil
}

// parseTagInput splits "a, b -c" into tags to add and tags to remove. A
// leading minus removes.
func parseTagInput(s string) (add, remove []string) {
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if strings.HasPrefix(field, "-") {
			if t := strings.TrimPrefix(field, "-"); t != "" {
				remove = append(remove, t)
			}
			continue
		}
		add = append(add, strings.TrimPrefix(field, "#"))
	}
	return add, remove
}

// currentFragment is the tag being typed: the text after the last separator.
func currentFragment(s string) string {
	i := strings.LastIndexAny(s, ", ")
	return strings.TrimLeft(s[i+1:], "#-")
}

// replaceFragment completes the tag being typed.
func replaceFragment(s, tag string) string {
	i := strings.LastIndexAny(s, ", ")
	prefix := s[:i+1]
	frag := s[i+1:]
	if strings.HasPrefix(frag, "-") {
		prefix += "-"
	}
	return prefix + tag + " "
}
