package tui

import (
	"sync"

	"github.com/charmbracelet/glamour"
)

// HelpRenderer renders markdown with Glamour and caches results. It renders
// the help screen and the message preview.
type HelpRenderer struct {
	mu        sync.RWMutex
	width     int
	cache     map[string]string // key: markdown, value: rendered
	renderer  *glamour.TermRenderer
	noGlamour bool // fallback for NO_COLOR or render failures
}

// NewHelpRenderer creates a new HelpRenderer.
func NewHelpRenderer(noColor bool) *HelpRenderer {
	hr := &HelpRenderer{
		cache:     make(map[string]string),
		noGlamour: noColor,
	}
	hr.initRenderer()
	return hr
}

func (hr *HelpRenderer) initRenderer() {
	if hr.noGlamour {
		return
	}

	opts := []glamour.TermRendererOption{glamour.WithStandardStyle("dark")}
	if hr.width > 0 {
		opts = append(opts, glamour.WithWordWrap(hr.width))
	} else {
		opts = append(opts, glamour.WithWordWrap(0))
	}

	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		hr.noGlamour = true
		return
	}
	hr.renderer = renderer
}

// SetWidth updates the word wrap width for rendering.
func (hr *HelpRenderer) SetWidth(width int) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	if hr.width != width {
		hr.width = width
		hr.cache = make(map[string]string) // clear cache on width change
		hr.initRenderer()
	}
}

// Render renders markdown content, returning cached result if available.
func (hr *HelpRenderer) Render(markdown string) string {
	hr.mu.RLock()
	if cached, ok := hr.cache[markdown]; ok {
		hr.mu.RUnlock()
		return cached
	}
	renderer, plain := hr.renderer, hr.noGlamour
	hr.mu.RUnlock()

	rendered := markdown
	if !plain && renderer != nil {
		if out, err := renderer.Render(markdown); err == nil {
			rendered = out
		}
	}

	hr.mu.Lock()
	hr.cache[markdown] = rendered
	hr.mu.Unlock()

	return rendered
}

// MainHelpMarkdown returns the full help content as Markdown.
func MainHelpMarkdown() string {
	return `# chatcast compose

Type a message and send it to every enabled, ready chat at once.

## Keyboard Shortcuts

| Key | Action |
|-----|--------|
| ctrl+s | Send the message to all enabled targets |
| ctrl+k | Clear the message |
| ctrl+p | Toggle a markdown preview of the message |
| alt+1 … alt+9 | Enable or disable the target in that slot |
| ctrl+l | Cycle layout: column → row → grid |
| ctrl+r | Re-check which sessions are ready |
| f1 | Toggle this help |
| esc / ctrl+c | Quit |

## Limits

- At most **5** targets can be enabled, **4** in grid layout.
- Enabling a fifth target while in grid switches the layout to column.
- Targets that are disabled or whose session is not ready are skipped.

## Outcomes

| Mark | Meaning |
|------|---------|
| ✓ | Text filled in and submitted (or searched, for the browser) |
| ✗ | Input not found, script failed or session gone |
| – | Skipped |

*Press any key to return*
`
}
