// Package tui provides the compose terminal user interface for chatcast.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Dicklesworthstone/chatcast/internal/api"
	"github.com/Dicklesworthstone/chatcast/internal/broadcast"
	"github.com/Dicklesworthstone/chatcast/internal/client"
	"github.com/Dicklesworthstone/chatcast/internal/state"
)

// viewState represents the current view/mode of the TUI.
type viewState int

const (
	stateCompose viewState = iota
	statePreview
	stateHelp
)

const (
	statusRefreshInterval = 2 * time.Second
	noticeLifetime        = 4 * time.Second
	requestTimeout        = 10 * time.Second
)

// Client is the part of the daemon API the compose UI uses. *client.Client
// satisfies it.
type Client interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	Broadcast(ctx context.Context, message string) (*broadcast.Result, error)
	SetEnabled(ctx context.Context, id string, on, force bool) (*api.StatusResponse, error)
	SetLayout(ctx context.Context, layout string) (*api.StatusResponse, error)
	RefreshReadiness(ctx context.Context) error
}

// Model is the main Bubble Tea model for the compose UI.
type Model struct {
	client Client

	// Daemon state
	status *api.StatusResponse
	last   *broadcast.Result

	// View state
	width   int
	height  int
	state   viewState
	sending bool
	err     error

	// UI components
	editor   textarea.Model
	spinner  *Spinner
	help     help.Model
	markdown *HelpRenderer
	keys     keyMap
	styles   Styles

	// Status message
	notice    string
	noticeSeq int
}

// New creates a compose model talking to c.
func New(c Client) Model {
	env := SpinnerOptionsFromEnv()

	editor := textarea.New()
	editor.Placeholder = "Type a message for every chat..."
	editor.ShowLineNumbers = false
	editor.CharLimit = 0
	editor.SetHeight(6)
	editor.Focus()

	return Model{
		client: c,
		state:  stateCompose,
		editor: editor,
		spinner: NewSpinner(SpinnerOptions{
			Color:        colorPurple,
			NoColor:      env.NoColor,
			ReduceMotion: env.ReduceMotion,
		}),
		help:     help.New(),
		markdown: NewHelpRenderer(env.NoColor),
		keys:     defaultKeyMap(),
		styles:   DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.loadStatus,
	)
}

func (m Model) loadStatus() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	st, err := m.client.Status(ctx)
	return statusLoadedMsg{status: st, err: err}
}

func scheduleStatus() tea.Cmd {
	return tea.Tick(statusRefreshInterval, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func (m Model) sendCmd(message string) tea.Cmd {
	return func() tea.Msg {
		// A cycle blocks until every target was tried; no client timeout.
		res, err := m.client.Broadcast(context.Background(), message)
		return broadcastDoneMsg{result: res, err: err}
	}
}

func (m Model) toggleCmd(id, name string, on bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		// Force mirrors the UI behaviour of leaving grid when it is full.
		st, err := m.client.SetEnabled(ctx, id, on, true)
		verb := "disabled"
		if on {
			verb = "enabled"
		}
		return settingsChangedMsg{status: st, notice: name + " " + verb, err: err}
	}
}

func (m Model) layoutCmd(next state.Layout) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := m.client.SetLayout(ctx, string(next))
		return settingsChangedMsg{status: st, notice: "layout: " + string(next), err: err}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := m.client.RefreshReadiness(ctx); err != nil {
			return settingsChangedMsg{err: err}
		}
		st, err := m.client.Status(ctx)
		return settingsChangedMsg{status: st, notice: "checking sessions", err: err}
	}
}

func (m *Model) setNotice(s string) tea.Cmd {
	m.noticeSeq++
	m.notice = s
	seq := m.noticeSeq
	return tea.Tick(noticeLifetime, func(time.Time) tea.Msg { return noticeExpiredMsg{seq: seq} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.editor.SetWidth(max(20, msg.Width-4))
		m.help.Width = msg.Width
		m.markdown.SetWidth(max(20, msg.Width-6))
		return m, nil

	case statusLoadedMsg:
		if msg.err == nil {
			m.status = msg.status
			m.err = nil
		} else {
			m.err = msg.err
		}
		return m, scheduleStatus()

	case statusTickMsg:
		return m, m.loadStatus

	case settingsChangedMsg:
		if msg.err != nil {
			return m, m.setNotice(describeError(msg.err))
		}
		if msg.status != nil {
			m.status = msg.status
		}
		return m, m.setNotice(msg.notice)

	case broadcastDoneMsg:
		m.sending = false
		m.editor.Focus()
		if msg.err != nil {
			return m, m.setNotice(describeError(msg.err))
		}
		m.last = msg.result
		m.editor.Reset()
		notice := fmt.Sprintf("sent to %d of %d targets", msg.result.Delivered(), msg.result.Attempted())
		return m, tea.Batch(m.setNotice(notice), m.loadStatus)

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil
	}

	if m.sending {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

// handleKeyPress processes keyboard input.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		if m.state != stateCompose && msg.Type == tea.KeyEsc {
			m.state = stateCompose
			return m, nil
		}
		return m, tea.Quit
	}

	if m.state == stateHelp {
		m.state = stateCompose
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.state = stateHelp
		return m, nil

	case key.Matches(msg, m.keys.Preview):
		if m.state == statePreview {
			m.state = stateCompose
		} else {
			m.state = statePreview
		}
		return m, nil

	case key.Matches(msg, m.keys.Send):
		if m.sending {
			return m, m.setNotice("a broadcast is already in progress")
		}
		text := m.editor.Value()
		if strings.TrimSpace(text) == "" {
			return m, m.setNotice("nothing to send")
		}
		m.sending = true
		m.state = stateCompose
		m.editor.Blur()
		m.spinner.SetMessage(fmt.Sprintf("sending to %d targets...", m.enabledCount()))
		return m, tea.Batch(m.spinner.Tick(), m.sendCmd(text))

	case key.Matches(msg, m.keys.Clear):
		if !m.sending {
			m.editor.Reset()
		}
		return m, nil

	case key.Matches(msg, m.keys.Layout):
		if m.status == nil {
			return m, nil
		}
		return m, m.layoutCmd(m.status.Layout.Next())

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()
	}

	if i := m.keys.toggleIndex(msg); i >= 0 {
		if m.status == nil || i >= len(m.status.Targets) {
			return m, nil
		}
		t := m.status.Targets[i]
		return m, m.toggleCmd(t.ID, t.DisplayName, !t.Enabled)
	}

	if m.sending || m.state != stateCompose {
		return m, nil
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m Model) enabledCount() int {
	if m.status == nil {
		return 0
	}
	n := 0
	for _, t := range m.status.Targets {
		if t.Enabled && t.Ready {
			n++
		}
	}
	return n
}

func describeError(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, client.ErrDaemonUnavailable) {
		return "daemon is not running (start it with: chatcast serve)"
	}
	return "error: " + err.Error()
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	if m.state == stateHelp {
		return m.styles.Help.Render(m.markdown.Render(MainHelpMarkdown()))
	}
	return m.mainView()
}

func (m Model) mainView() string {
	header := m.styles.Header.Render("chatcast") + "  " + m.styles.Meta.Render(m.metaLine())

	var body string
	switch {
	case m.state == statePreview:
		body = m.styles.Preview.Width(max(20, m.width-2)).Render(m.markdown.Render(m.editor.Value()))
	case m.sending:
		body = m.styles.EditorBusy.Render(m.editor.View())
	default:
		body = m.styles.Editor.Render(m.editor.View())
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		body,
		m.renderTargets(),
	)

	status := m.renderStatusBar()
	availableHeight := m.height - lipgloss.Height(content) - lipgloss.Height(status)
	if availableHeight > 0 {
		content = lipgloss.JoinVertical(
			lipgloss.Left,
			content,
			lipgloss.NewStyle().Height(availableHeight).Render(""),
			status,
		)
	} else {
		content = lipgloss.JoinVertical(lipgloss.Left, content, status)
	}
	return content
}

func (m Model) metaLine() string {
	if m.status == nil {
		if m.err != nil {
			return "daemon unreachable"
		}
		return "connecting..."
	}
	return fmt.Sprintf("layout %s · zoom %.1f · %d/%d enabled · %s",
		m.status.Layout, m.status.Zoom, m.status.EnabledCount, state.MaxEnabled, m.status.Backend)
}

// renderTargets renders one row per target with readiness and the outcome
// of the last cycle.
func (m Model) renderTargets() string {
	if m.status == nil {
		return ""
	}

	rows := []string{m.styles.SectionHead.Render("Targets")}
	for i, t := range m.status.Targets {
		slot := m.styles.Slot.Render(fmt.Sprintf("%d", i+1))

		check := "[ ]"
		nameStyle := m.styles.TargetDisabled
		if t.Enabled {
			check = "[x]"
			nameStyle = m.styles.Target
		}

		readiness := m.styles.NotReady.Render("waiting")
		if t.Ready {
			readiness = m.styles.Ready.Render("ready  ")
		}

		row := fmt.Sprintf("%s %s %-12s %s  %s", slot, check, nameStyle.Render(t.DisplayName), readiness, m.outcomeCell(t.ID))
		if m.width > 0 {
			row = ansi.Truncate(row, m.width-1, "…")
		}
		rows = append(rows, row)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) outcomeCell(id string) string {
	if m.last == nil {
		return ""
	}
	o, ok := m.last.Outcome(id)
	if !ok {
		return ""
	}
	switch {
	case o.Status == broadcast.StatusSubmitted:
		return m.styles.Delivered.Render("✓ " + string(o.SubmitPath))
	case o.Status == broadcast.StatusSearched:
		return m.styles.Delivered.Render("✓ searched")
	case o.Status == broadcast.StatusFailed:
		return m.styles.Failed.Render("✗ " + strings.ReplaceAll(string(o.ErrorKind), "_", " "))
	default:
		return m.styles.Skipped.Render("– " + strings.TrimPrefix(string(o.Status), "skipped_"))
	}
}

// renderStatusBar renders the bottom status bar.
func (m Model) renderStatusBar() string {
	left := m.help.ShortHelpView(m.keys.ShortHelp())
	switch {
	case m.sending:
		left = m.spinner.View()
	case m.notice != "":
		left = m.styles.Notice.Render(m.notice)
	case m.err != nil && m.status == nil:
		left = m.styles.Error.Render(describeError(m.err))
	}

	return m.styles.StatusBar.Width(m.width).Render(left)
}

// Run starts the compose UI.
func Run(c Client) error {
	p := tea.NewProgram(New(c), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
