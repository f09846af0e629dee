// Package session owns the browser sessions that host each target. Every
// target runs in its own browser process with its own user-data directory,
// so cookies and storage are isolated per partition and survive restarts.
package session

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

// InspectorURL is opened by OpenInspector.
const InspectorURL = "chrome://inspect/#pages"

// ErrClosed is returned by operations on a closed handle.
var ErrClosed = errors.New("session closed")

// Handle is a live session bound to one target.
type Handle interface {
	TargetID() string

	// ExecuteScript evaluates a JavaScript expression in the page and returns
	// its value, awaiting it when it is a promise.
	ExecuteScript(ctx context.Context, code string) (any, error)

	// Navigate loads url in the session.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the address of the main frame.
	CurrentURL(ctx context.Context) (string, error)

	// OpenInspector opens the browser's page inspector for this session.
	OpenInspector(ctx context.Context) error

	Close() error
}

// Backend selects the browser automation library.
type Backend string

const (
	// BackendChromedp drives Chrome through chromedp (preferred).
	BackendChromedp Backend = "chromedp"

	// BackendRod drives Chrome through go-rod. Its launcher can fetch a
	// browser when none is installed.
	BackendRod Backend = "rod"

	// BackendAuto uses chromedp when a Chrome binary is found, otherwise rod.
	BackendAuto Backend = "auto"
)

// Spec describes one session to launch.
type Spec struct {
	TargetID   string
	URL        string
	ProfileDir string

	// OnNavigate receives main-frame navigations, including in-document
	// history changes. It must not block.
	OnNavigate func(url string)
}

// LaunchOptions are shared by every session a launcher starts.
type LaunchOptions struct {
	ChromePath   string
	Headless     bool
	ExtraFlags   map[string]string
	StartTimeout time.Duration
	Logger       *slog.Logger
}

// Launcher starts sessions.
type Launcher interface {
	Backend() string
	Launch(ctx context.Context, spec Spec) (Handle, error)
}

// NewLauncher returns the launcher for backend.
func NewLauncher(backend Backend, opts LaunchOptions) Launcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 30 * time.Second
	}

	switch backend {
	case BackendChromedp:
		return &chromedpLauncher{opts: opts}
	case BackendRod:
		return &rodLauncher{opts: opts}
	case BackendAuto:
		fallthrough
	default:
		if chromeAvailable(opts.ChromePath) {
			opts.Logger.Info("using chromedp backend (preferred)")
			return &chromedpLauncher{opts: opts}
		}
		opts.Logger.Info("no local Chrome found, using rod backend",
			"note", "rod downloads a browser on first launch")
		return &rodLauncher{opts: opts}
	}
}

// chromeAvailable reports whether a Chrome binary can be found.
func chromeAvailable(explicit string) bool {
	if explicit != "" {
		_, err := exec.LookPath(explicit)
		return err == nil
	}
	if _, ok := launcher.LookPath(); ok {
		return true
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}
