package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

type chromedpLauncher struct {
	opts LaunchOptions
}

func (l *chromedpLauncher) Backend() string { return string(BackendChromedp) }

func (l *chromedpLauncher) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-session-crashed-bubble", true),
		chromedp.Flag("hide-crash-restore-bubble", true),
	)
	if l.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ChromePath))
	}
	for k, v := range l.opts.ExtraFlags {
		if v == "" {
			opts = append(opts, chromedp.Flag(k, true))
		} else {
			opts = append(opts, chromedp.Flag(k, v))
		}
	}
	if !l.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

func (l *chromedpLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	logger := l.opts.Logger.With("target", spec.TargetID, "backend", l.Backend())

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(spec.ProfileDir)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chromedp: " + fmt.Sprintf(format, args...))
		}),
	)

	h := &chromedpHandle{
		targetID:    spec.TargetID,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		if spec.OnNavigate == nil {
			return
		}
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				spec.OnNavigate(e.Frame.URL)
			}
		case *page.EventNavigatedWithinDocument:
			if main, _ := h.mainFrame.Load().(string); main != "" && string(e.FrameID) == main {
				spec.OnNavigate(e.URL)
			}
		}
	})

	// Starting the browser runs on its own goroutine so a hung launch can be
	// abandoned at the timeout or when ctx ends.
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(tabCtx)
	}()

	timeout := time.NewTimer(l.opts.StartTimeout)
	defer timeout.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("start chrome for %s: %w", spec.TargetID, err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome for %s: %w", spec.TargetID, ctx.Err())
	case <-timeout.C:
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome for %s: timed out after %s", spec.TargetID, l.opts.StartTimeout)
	}

	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		h.mainFrame.Store(string(c.Target.TargetID))
	}

	if spec.URL != "" {
		navCtx, cancel := context.WithTimeout(tabCtx, l.opts.StartTimeout)
		err := chromedp.Run(navCtx, chromedp.Navigate(spec.URL))
		cancel()
		if err != nil {
			// Slow pages keep loading; the session is still usable.
			logger.Warn("initial navigation did not complete", "url", spec.URL, "error", err)
		}
	}

	logger.Info("session started", "url", spec.URL, "profile", spec.ProfileDir, "action", "session_start")
	return h, nil
}

type chromedpHandle struct {
	targetID    string
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	mainFrame   atomic.Value

	mu        sync.Mutex
	inspector context.CancelFunc
	closed    bool
}

func (h *chromedpHandle) TargetID() string { return h.targetID }

// run executes actions on the tab. Cancelling ctx aborts the call without
// closing the tab; only tabCancel does that.
func (h *chromedpHandle) run(ctx context.Context, actions ...chromedp.Action) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}

	runCtx, cancel := context.WithCancel(h.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (h *chromedpHandle) ExecuteScript(ctx context.Context, code string) (any, error) {
	var res any
	err := h.run(ctx, chromedp.Evaluate(code, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (h *chromedpHandle) Navigate(ctx context.Context, url string) error {
	return h.run(ctx, chromedp.Navigate(url))
}

func (h *chromedpHandle) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := h.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (h *chromedpHandle) OpenInspector(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.inspector != nil {
		h.inspector()
	}
	// A context derived from a tab context opens a new tab in the same browser.
	inspCtx, cancel := chromedp.NewContext(h.tabCtx)
	h.inspector = cancel
	h.mu.Unlock()

	runCtx, stopRun := context.WithCancel(inspCtx)
	defer stopRun()
	stop := context.AfterFunc(ctx, stopRun)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Navigate(InspectorURL)); err != nil {
		return fmt.Errorf("open inspector: %w", err)
	}
	return nil
}

func (h *chromedpHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	inspector := h.inspector
	h.mu.Unlock()

	if inspector != nil {
		inspector()
	}
	// Cancel closes the browser gracefully; allocCancel then reaps the process.
	err := chromedp.Cancel(h.tabCtx)
	h.tabCancel()
	h.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close chrome for %s: %w", h.targetID, err)
	}
	return nil
}
