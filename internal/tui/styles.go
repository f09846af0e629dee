package tui

import "github.com/charmbracelet/lipgloss"

// Color palette - Dracula theme inspired.
var (
	colorPurple   = lipgloss.Color("#bd93f9")
	colorGreen    = lipgloss.Color("#50fa7b")
	colorYellow   = lipgloss.Color("#f1fa8c")
	colorCyan     = lipgloss.Color("#8be9fd")
	colorOrange   = lipgloss.Color("#ffb86c")
	colorRed      = lipgloss.Color("#ff5555")
	colorWhite    = lipgloss.Color("#f8f8f2")
	colorGray     = lipgloss.Color("#6272a4")
	colorDarkGray = lipgloss.Color("#44475a")
)

// Styles holds all the lipgloss styles for the TUI.
type Styles struct {
	// Header styles
	Header lipgloss.Style
	Meta   lipgloss.Style

	// Compose box
	Editor      lipgloss.Style
	EditorBusy  lipgloss.Style
	Preview     lipgloss.Style
	SectionHead lipgloss.Style

	// Target rows
	Target         lipgloss.Style
	TargetDisabled lipgloss.Style
	Slot           lipgloss.Style
	Ready          lipgloss.Style
	NotReady       lipgloss.Style
	Delivered      lipgloss.Style
	Skipped        lipgloss.Style
	Failed         lipgloss.Style

	// Status bar styles
	StatusBar  lipgloss.Style
	StatusKey  lipgloss.Style
	StatusText lipgloss.Style
	Notice     lipgloss.Style
	Error      lipgloss.Style

	// Help screen
	Help lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPurple),

		Meta: lipgloss.NewStyle().
			Foreground(colorGray),

		Editor: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple),

		EditorBusy: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDarkGray),

		Preview: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCyan),

		SectionHead: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			MarginTop(1),

		Target: lipgloss.NewStyle().
			Foreground(colorWhite),

		TargetDisabled: lipgloss.NewStyle().
			Foreground(colorGray),

		Slot: lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true),

		Ready: lipgloss.NewStyle().
			Foreground(colorGreen),

		NotReady: lipgloss.NewStyle().
			Foreground(colorYellow),

		Delivered: lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true),

		Skipped: lipgloss.NewStyle().
			Foreground(colorGray).
			Italic(true),

		Failed: lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true),

		StatusBar: lipgloss.NewStyle().
			Padding(0, 1).
			Background(colorDarkGray).
			Foreground(colorWhite),

		StatusKey: lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true),

		StatusText: lipgloss.NewStyle().
			Foreground(colorGray),

		Notice: lipgloss.NewStyle().
			Foreground(colorOrange),

		Error: lipgloss.NewStyle().
			Foreground(colorRed),

		Help: lipgloss.NewStyle().
			Padding(1, 2).
			Foreground(colorWhite),
	}
}
