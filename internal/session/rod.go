package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

type rodLauncher struct {
	opts LaunchOptions
}

func (l *rodLauncher) Backend() string { return string(BackendRod) }

func (l *rodLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	logger := l.opts.Logger.With("target", spec.TargetID, "backend", l.Backend())

	lch := launcher.New().
		UserDataDir(spec.ProfileDir).
		Headless(l.opts.Headless).
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding")
	if l.opts.ChromePath != "" {
		lch = lch.Bin(l.opts.ChromePath)
	}
	for k, v := range l.opts.ExtraFlags {
		if v == "" {
			lch = lch.Set(flagName(k))
		} else {
			lch = lch.Set(flagName(k), v)
		}
	}

	controlURL, err := lch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser for %s: %w", spec.TargetID, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		lch.Kill()
		return nil, fmt.Errorf("connect to browser for %s: %w", spec.TargetID, err)
	}

	startCtx, cancel := context.WithTimeout(ctx, l.opts.StartTimeout)
	defer cancel()

	p, err := browser.Context(startCtx).Page(proto.TargetCreateTarget{URL: spec.URL})
	if err != nil {
		_ = browser.Close()
		lch.Kill()
		return nil, fmt.Errorf("open page for %s: %w", spec.TargetID, err)
	}
	// Drop the start deadline from the page used afterwards.
	p = p.Context(context.Background())

	h := &rodHandle{
		targetID: spec.TargetID,
		browser:  browser,
		page:     p,
		launcher: lch,
	}

	if spec.OnNavigate != nil {
		mainFrame := p.FrameID
		go p.EachEvent(
			func(e *proto.PageFrameNavigated) {
				if e.Frame != nil && e.Frame.ParentID == "" {
					spec.OnNavigate(e.Frame.URL)
				}
			},
			func(e *proto.PageNavigatedWithinDocument) {
				if e.FrameID == mainFrame {
					spec.OnNavigate(e.URL)
				}
			},
		)()
	}

	logger.Info("session started", "url", spec.URL, "profile", spec.ProfileDir, "action", "session_start")
	return h, nil
}

// flagName trims leading dashes, since rod takes bare switch names.
func flagName(k string) flags.Flag {
	return flags.Flag(strings.TrimLeft(k, "-"))
}

type rodHandle struct {
	targetID string
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher

	mu        sync.Mutex
	inspector *rod.Page
	closed    bool
}

func (h *rodHandle) TargetID() string { return h.targetID }

func (h *rodHandle) live() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	return nil
}

func (h *rodHandle) ExecuteScript(ctx context.Context, code string) (any, error) {
	if err := h.live(); err != nil {
		return nil, err
	}

	// rod evaluates functions; wrap the expression.
	res, err := h.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           "() => (" + code + ")",
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.Value.Val(), nil
}

func (h *rodHandle) Navigate(ctx context.Context, url string) error {
	if err := h.live(); err != nil {
		return err
	}
	return h.page.Context(ctx).Navigate(url)
}

func (h *rodHandle) CurrentURL(ctx context.Context) (string, error) {
	if err := h.live(); err != nil {
		return "", err
	}
	info, err := h.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (h *rodHandle) OpenInspector(ctx context.Context) error {
	if err := h.live(); err != nil {
		return err
	}

	p, err := h.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: InspectorURL})
	if err != nil {
		return fmt.Errorf("open inspector: %w", err)
	}

	h.mu.Lock()
	prev := h.inspector
	h.inspector = p
	h.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

func (h *rodHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	err := h.browser.Close()
	// Kill, not Cleanup: Cleanup would delete the persistent profile directory.
	h.launcher.Kill()
	if err != nil {
		return fmt.Errorf("close browser for %s: %w", h.targetID, err)
	}
	return nil
}
