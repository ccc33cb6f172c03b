package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/elparko/CaseTracker/internal/ui"
	"github.com/elparko/CaseTracker/internal/workflow"
)

func (m Model) contentHeight() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + dividers(2) + error(1) + input(1) + footer(1) + padding
	reserved := 8
	return max(5, m.height-reserved)
}

func (m Model) casePanelWidth() int {
	if m.width == 0 {
		return 34
	}
	return max(24, m.width*35/100)
}

func (m Model) capturePanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.casePanelWidth()-3)
}

// View renders the full screen.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	if m.mode != ModeNormal {
		sections = append(sections, m.renderInputLine())
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("CASEBOOK")

	var device string
	if m.deps.Device != "" {
		device = ui.DimStyle.Render(" · " + m.deps.Device)
	}

	var goal string
	if m.loaded {
		style := ui.GoalPendingStyle
		if m.summary.GoalProgress() >= 1 {
			style = ui.GoalMetStyle
		}
		goal = "  " + style.Render(fmt.Sprintf("%d/%d this month", m.summary.CasesThisMonth, m.summary.MonthlyGoal))
	}

	return title + device + goal
}

func (m Model) renderStatusBar() string {
	var dot string
	switch m.snap.State {
	case workflow.Recording:
		dot = ui.RecordingDotStyle.Render("● REC")
	case workflow.Finalized:
		dot = ui.FinalizedStyle.Render("✓ " + strings.ToUpper(m.snap.State.String()))
	case workflow.Idle, workflow.Discarded:
		dot = ui.IdleDotStyle.Render("○ " + strings.ToUpper(m.snap.State.String()))
	default:
		dot = ui.StateStyle.Render("◆ " + strings.ToUpper(m.snap.State.String()))
	}

	var levels string
	if m.snap.State == workflow.Recording {
		levels = "  " + renderLevelMeter("MIC", m.level) + "  " + ui.TimestampStyle.Render(formatElapsed(m.elapsed))
	} else if m.snap.HasAudio {
		levels = "  " + ui.DimStyle.Render(fmt.Sprintf("%ds audio", m.snap.AudioSecs))
	}

	var busy string
	if m.busy != "" {
		busy = "  " + ui.SpinnerStyle.Render("⟳ "+m.busy)
	}

	return dot + levels + busy
}

func renderLevelMeter(label string, level float32) string {
	const barLen = 8
	filled := int(level * barLen)
	if filled > barLen {
		filled = barLen
	}

	var bar string
	for i := 0; i < barLen; i++ {
		if i < filled {
			pct := float32(i) / float32(barLen)
			if pct > 0.6 {
				bar += ui.LevelYellowStyle.Render("█")
			} else {
				bar += ui.LevelGreenStyle.Render("█")
			}
		} else {
			bar += ui.LevelGrayStyle.Render("░")
		}
	}

	return ui.LevelLabelStyle.Render(label) + " " + bar
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func (m Model) renderMainContent() string {
	caseW := m.casePanelWidth()
	captureW := m.capturePanelWidth()
	contentH := m.contentHeight()

	caseLines := strings.Split(m.renderCasePanel(caseW, contentH), "\n")
	captureLines := strings.Split(m.renderCapturePanel(captureW, contentH), "\n")
	divider := ui.DividerStyle.Render("│")

	rows := make([]string, 0, contentH)
	for i := 0; i < contentH; i++ {
		cl := strings.Repeat(" ", caseW)
		if i < len(caseLines) {
			cl = caseLines[i]
		}
		cr := ""
		if i < len(captureLines) {
			cr = captureLines[i]
		}
		rows = append(rows, cl+divider+cr)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderCasePanel(width, height int) string {
	title := fmt.Sprintf("CASES (%d)", m.summary.TotalCases)
	var header string
	if m.focusedPanel == FocusCases {
		header = ui.PanelTitleActiveStyle.Render(title)
	} else {
		header = ui.PanelTitleStyle.Render(title)
	}

	lines := []string{header}

	switch {
	case !m.loaded:
		lines = append(lines, ui.DimStyle.Render("  Loading..."))
	case len(m.cases) == 0:
		lines = append(lines, ui.DimStyle.Render("  No cases yet..."))
		lines = append(lines, ui.DimStyle.Render("  Record one with Space"))
	default:
		for i, rec := range m.cases {
			isSelected := i == m.selected && m.focusedPanel == FocusCases
			lines = append(lines, truncateToWidth(caseLine(rec, isSelected), width))
			if isSelected && m.expanded {
				for _, wl := range wrapText(caseBlurb(rec), max(10, width-4)) {
					lines = append(lines, ui.DimStyle.Render("    "+wl))
				}
			}
		}
		lines = scrollTo(lines, m.selectedLine(), height)
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

// selectedLine is the panel line of the selected case, counting the header.
func (m Model) selectedLine() int {
	return m.selected + 1
}

// scrollTo keeps the header and shows the window of lines around target.
func scrollTo(lines []string, target, height int) []string {
	if len(lines) <= height || target < height {
		return lines
	}
	start := target - height + 2
	return append([]string{lines[0]}, lines[start:]...)
}

func caseLine(rec cases.Record, selected bool) string {
	marker := "  "
	if selected {
		marker = "> "
	}
	star := " "
	if rec.IsFavorite {
		star = ui.FavoriteStyle.Render("★")
	}
	date := ui.TimestampStyle.Render(rec.CreatedAt.Local().Format("01-02"))
	label := rec.Specialty
	if label == "" {
		label = "Unclassified"
	}
	if selected {
		label = ui.SelectedStyle.Render(label)
	} else {
		label = ui.SpecialtyStyle.Render(label)
	}
	return marker + star + " " + date + " " + label
}

func caseBlurb(rec cases.Record) string {
	parts := []string{}
	if rec.Summary != "" {
		parts = append(parts, rec.Summary)
	}
	if len(rec.Tags) > 0 {
		parts = append(parts, hashTags(rec.Tags))
	}
	if len(parts) == 0 {
		return "(no summary)"
	}
	return strings.Join(parts, "\n")
}

func (m Model) renderCapturePanel(width, height int) string {
	var header string
	if m.focusedPanel == FocusCapture {
		header = ui.PanelTitleActiveStyle.Render("CAPTURE")
	} else {
		header = ui.PanelTitleStyle.Render("CAPTURE")
	}

	textWidth := max(10, width-4)
	lines := []string{header}
	dim := func(s string) { lines = append(lines, ui.DimStyle.Render("  "+s)) }
	field := func(label, value string) {
		if value == "" {
			return
		}
		wrapped := wrapText(value, max(10, textWidth-14))
		lines = append(lines, "  "+ui.FieldLabelStyle.Render(fmt.Sprintf("%-13s", label))+" "+wrapped[0])
		for _, wl := range wrapped[1:] {
			lines = append(lines, strings.Repeat(" ", 16)+wl)
		}
	}

	snap := m.snap
	switch snap.State {
	case workflow.Idle:
		lines = append(lines, "")
		dim("Press Space to start recording")
		dim("or m to type a case by hand")

	case workflow.Recording:
		lines = append(lines, "")
		lines = append(lines, "  "+ui.RecordingDotStyle.Render("● Recording ")+ui.TimestampStyle.Render(formatElapsed(m.elapsed)))
		dim("Space stops, x discards")

	case workflow.Recorded:
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("  Recording ready (%ds)", snap.AudioSecs))
		dim("t transcribes, x discards")

	case workflow.Transcribing, workflow.Analyzing:
		lines = append(lines, "")
		lines = append(lines, "  "+ui.SpinnerStyle.Render("⟳ "+snap.State.String()+"..."))
		dim("x cancels and discards")
		if snap.Text != "" {
			lines = append(lines, "")
			for _, wl := range wrapText(snap.Text, textWidth) {
				lines = append(lines, ui.DimStyle.Render("  "+wl))
			}
		}

	case workflow.Reviewing:
		if strings.TrimSpace(snap.Text) == "" {
			lines = append(lines, "")
			dim("No text yet. Press e to type the case.")
		} else {
			for _, wl := range wrapText(snap.Text, textWidth) {
				lines = append(lines, "  "+wl)
			}
		}
		lines = append(lines, "")
		if len(snap.Tags) > 0 {
			field("Tags", hashTags(snap.Tags))
		}
		field("Notes", snap.Notes)

	case workflow.Finalized:
		if rec := snap.Record; rec != nil {
			lines = append(lines, "  "+ui.FinalizedStyle.Render("✓ Saved ")+ui.DimStyle.Render(rec.ID))
			lines = append(lines, "")
			field("Specialty", rec.Specialty)
			field("Type", rec.CaseType)
			field("Complexity", rec.Complexity)
			field("Patient", strings.Trim(rec.Demographics.AgeRange+" "+rec.Demographics.Gender, " "))
			field("Summary", rec.Summary)
			field("Findings", strings.Join(rec.KeyFindings, "; "))
			field("Differential", strings.Join(rec.DifferentialDiagnosis, "; "))
			field("Learning", strings.Join(rec.LearningPoints, "; "))
			if len(rec.Tags) > 0 {
				field("Tags", hashTags(rec.Tags))
			}
		}
		lines = append(lines, "")
		dim("n starts a new case")

	case workflow.Discarded:
		lines = append(lines, "")
		dim("Session discarded. n starts a new case")
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderInputLine() string {
	var prompt string
	switch m.mode {
	case ModeEdit:
		prompt = "Text"
	case ModeTags:
		prompt = "Tags"
	case ModeNotes:
		prompt = "Notes"
	}
	line := ui.InputPromptStyle.Render(prompt+"> ") + ui.InputTextStyle.Render(m.input+"▌")
	if m.mode == ModeTags && len(m.suggestions) > 0 {
		shown := m.suggestions
		if len(shown) > 5 {
			shown = shown[:5]
		}
		line += "  " + ui.TagStyle.Render(hashTags(shown))
	}
	return truncateToWidth(line, m.width)
}

func (m Model) renderFooter() string {
	key := func(k, desc string) string {
		return ui.FooterKeyStyle.Render(k) + ui.FooterDescStyle.Render(" "+desc)
	}

	var parts []string
	if m.mode != ModeNormal {
		parts = append(parts, key("Enter", "Save"), key("Esc", "Cancel"))
		if m.mode == ModeTags {
			parts = append(parts, key("Tab", "Complete"), key("-tag", "Remove"))
		}
		return strings.Join(parts, "  ")
	}

	switch m.snap.State {
	case workflow.Idle:
		parts = append(parts, key("Space", "Record"), key("m", "Manual"))
	case workflow.Recording:
		parts = append(parts, key("Space", "Stop"), key("x", "Discard"))
	case workflow.Recorded:
		parts = append(parts, key("t", "Transcribe"), key("x", "Discard"))
	case workflow.Transcribing, workflow.Analyzing:
		parts = append(parts, key("x", "Cancel"))
	case workflow.Reviewing:
		parts = append(parts, key("e", "Edit"), key("#", "Tags"), key("o", "Notes"), key("a", "Analyze"), key("x", "Discard"))
	case workflow.Finalized, workflow.Discarded:
		parts = append(parts, key("n", "New"))
	}

	parts = append(parts, key("Tab", "Focus"))
	if m.focusedPanel == FocusCases {
		parts = append(parts, key("j/k", "Nav"), key("f", "Favorite"))
	}
	parts = append(parts, key("q", "Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func hashTags(tags []string) string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = "#" + t
	}
	return strings.Join(out, " ")
}

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
