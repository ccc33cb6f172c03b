package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF5F5F")
	ColorGreen   = lipgloss.Color("#5FFF87")
	ColorYellow  = lipgloss.Color("#FFD75F")
	ColorCyan    = lipgloss.Color("#5FD7FF")
	ColorGray    = lipgloss.Color("#767676")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorMagenta = lipgloss.Color("#D787FF")
	ColorBlue    = lipgloss.Color("#5F87FF")
)

// Base styles reused by UI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	RecordingDotStyle = lipgloss.NewStyle().
				Foreground(ColorRed).
				Bold(true)

	IdleDotStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	StateStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	FinalizedStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	SpecialtyStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	TagStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)

	FavoriteStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	FieldLabelStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Bold(true)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	PanelTitleActiveStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorCyan)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	InputPromptStyle = lipgloss.NewStyle().
				Foreground(ColorYellow).
				Bold(true)

	InputTextStyle = lipgloss.NewStyle().
			Foreground(ColorWhite)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	LevelLabelStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	LevelGreenStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	LevelYellowStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	LevelGrayStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	GoalMetStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	GoalPendingStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta)
)
