package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SpinnerOptions configures spinner behavior.
type SpinnerOptions struct {
	// Message is shown next to the spinner
	Message string
	// Color is the spinner color (ignored if NoColor)
	Color lipgloss.TerminalColor
	// NoColor disables colors (animation still allowed).
	NoColor bool
	// ReduceMotion disables animation (shows static indicator)
	ReduceMotion bool
}

// Spinner wraps the bubbles spinner with accessibility support.
type Spinner struct {
	spinner      spinner.Model
	message      string
	style        lipgloss.Style
	reduceMotion bool
}

// SpinnerOptionsFromEnv derives spinner options from environment.
// Respects:
// - NO_COLOR (disables color output)
// - TERM=dumb (disables color output)
// - CHATCAST_REDUCED_MOTION / REDUCED_MOTION (disables animation)
func SpinnerOptionsFromEnv() SpinnerOptions {
	opts := SpinnerOptions{}

	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		opts.NoColor = true
	}

	term := strings.TrimSpace(strings.ToLower(os.Getenv("TERM")))
	if term == "dumb" {
		opts.NoColor = true
	}

	if envBool("CHATCAST_REDUCED_MOTION") || envBool("REDUCED_MOTION") {
		opts.ReduceMotion = true
	}

	return opts
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// NewSpinner creates a spinner with the given options.
func NewSpinner(opts SpinnerOptions) *Spinner {
	s := spinner.New()
	s.Spinner = spinner.Dot

	msgStyle := lipgloss.NewStyle()
	if !opts.NoColor && opts.Color != nil {
		s.Style = lipgloss.NewStyle().Foreground(opts.Color)
		msgStyle = msgStyle.Foreground(opts.Color)
	}

	return &Spinner{
		spinner:      s,
		message:      opts.Message,
		style:        msgStyle,
		reduceMotion: opts.ReduceMotion,
	}
}

// Update handles spinner tick messages.
func (s *Spinner) Update(msg tea.Msg) (*Spinner, tea.Cmd) {
	if s == nil || s.reduceMotion {
		return s, nil
	}

	if _, ok := msg.(spinner.TickMsg); ok {
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd
	}

	return s, nil
}

// View renders the spinner with its message.
func (s *Spinner) View() string {
	if s == nil {
		return ""
	}

	indicator := "[...]"
	if !s.reduceMotion {
		indicator = s.spinner.View()
	}

	if s.message != "" {
		return indicator + " " + s.style.Render(s.message)
	}
	return indicator
}

// SetMessage updates the spinner message.
func (s *Spinner) SetMessage(msg string) {
	if s == nil {
		return
	}
	s.message = msg
}

// Tick returns the command to trigger a spinner tick.
// Use this to start the spinner animation.
func (s *Spinner) Tick() tea.Cmd {
	if s == nil || s.reduceMotion {
		return nil
	}
	return s.spinner.Tick
}
