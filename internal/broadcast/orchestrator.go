// Package broadcast sends one message to every enabled, ready target in turn.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Dicklesworthstone/chatcast/internal/browser"
	"github.com/Dicklesworthstone/chatcast/internal/db"
	"github.com/Dicklesworthstone/chatcast/internal/inject"
	"github.com/Dicklesworthstone/chatcast/internal/session"
	"github.com/Dicklesworthstone/chatcast/internal/target"
)

const (
	DefaultSubmitDelay   = 100 * time.Millisecond
	DefaultSettleDelay   = 300 * time.Millisecond
	DefaultTargetTimeout = 15 * time.Second
)

var (
	// ErrBlankMessage rejects a message with no non-space content.
	ErrBlankMessage = errors.New("message is blank")

	// ErrBusy rejects a broadcast while another cycle is running.
	ErrBusy = errors.New("a broadcast is already in progress")
)

// Sessions resolves target ids to live handles. session.Manager satisfies it.
type Sessions interface {
	Handle(id string) (session.Handle, bool)
}

// Readiness reports whether a target's session has been mounted.
type Readiness interface {
	IsReady(id string) bool
}

// Enablement reports whether the user enabled a target.
type Enablement interface {
	IsEnabled(id string) bool
}

// Recorder stores cycle outcomes. db.DB satisfies it.
type Recorder interface {
	RecordOutcomes(ctx context.Context, recs []db.DispatchRecord) error
}

// Config wires an Orchestrator.
type Config struct {
	Registry  *target.Registry
	Sessions  Sessions
	Readiness Readiness
	Enabled   Enablement
	Injector  *inject.Injector

	// Recorder is optional.
	Recorder Recorder

	// SubmitDelay separates a successful fill from the submit so the page can
	// enable its send control.
	SubmitDelay time.Duration

	// SettleDelay separates the last target from the completion signal.
	SettleDelay time.Duration

	// TargetTimeout bounds one target's whole attempt.
	TargetTimeout time.Duration

	Logger *slog.Logger

	// OnOutcome receives each target's outcome as soon as it is known.
	OnOutcome func(cycleID string, o Outcome)

	// OnCycleComplete is signalled once per cycle, after SettleDelay,
	// whatever the outcomes.
	OnCycleComplete func(*Result)
}

// Orchestrator runs dispatch cycles. Targets are visited strictly one after
// another in registry order.
type Orchestrator struct {
	config Config
	logger *slog.Logger

	busy atomic.Bool

	mu   sync.RWMutex
	last *Result
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Sessions == nil || cfg.Readiness == nil || cfg.Enabled == nil {
		return nil, fmt.Errorf("sessions, readiness and enablement are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Injector == nil {
		cfg.Injector = inject.New(inject.Config{Logger: cfg.Logger})
	}
	if cfg.SubmitDelay <= 0 {
		cfg.SubmitDelay = DefaultSubmitDelay
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.TargetTimeout <= 0 {
		cfg.TargetTimeout = DefaultTargetTimeout
	}
	return &Orchestrator{config: cfg, logger: cfg.Logger}, nil
}

// Busy reports whether a cycle is running.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Last returns the most recent completed cycle, or nil.
func (o *Orchestrator) Last() *Result {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// Broadcast sends message to every enabled and ready target and returns
// once the cycle is complete. message is passed through unmodified.
//
// A started cycle always runs to the end: cancelling ctx does not abort it.
// Only ErrBlankMessage and ErrBusy are returned; per-target failures are
// reported in the Result.
func (o *Orchestrator) Broadcast(ctx context.Context, message string) (*Result, error) {
	if strings.TrimSpace(message) == "" {
		metricBroadcasts.WithLabelValues("blank").Inc()
		return nil, ErrBlankMessage
	}
	if !o.busy.CompareAndSwap(false, true) {
		metricBroadcasts.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}
	defer o.busy.Store(false)
	metricInProgress.Set(1)
	defer metricInProgress.Set(0)

	ctx = context.WithoutCancel(ctx)

	res := &Result{
		CycleID:   uuid.New().String(),
		StartedAt: time.Now(),
	}
	logger := o.logger.With("cycle_id", res.CycleID)
	logger.Info("broadcast started",
		"chars", len([]rune(message)),
		"action", "broadcast_start")

	for _, t := range o.config.Registry.All() {
		out := o.dispatchTarget(ctx, logger, t, message)
		res.Outcomes = append(res.Outcomes, out)
		if o.config.OnOutcome != nil {
			o.config.OnOutcome(res.CycleID, out)
		}
	}

	sleep(ctx, o.config.SettleDelay)
	res.FinishedAt = time.Now()

	o.mu.Lock()
	o.last = res
	o.mu.Unlock()

	observe(res)
	metricBroadcasts.WithLabelValues("completed").Inc()
	o.record(ctx, logger, res)

	logger.Info("broadcast complete",
		"attempted", res.Attempted(),
		"delivered", res.Delivered(),
		"elapsed", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond),
		"action", "broadcast_complete")

	if o.config.OnCycleComplete != nil {
		o.config.OnCycleComplete(res)
	}
	return res, nil
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, res *Result) {
	if o.config.Recorder == nil {
		return
	}
	if err := o.config.Recorder.RecordOutcomes(ctx, res.Records()); err != nil {
		logger.Warn("record dispatch outcomes failed", "error", err)
	}
}

// dispatchTarget runs one target's attempt. Nothing it does, panics
// included, escapes as anything but an Outcome.
func (o *Orchestrator) dispatchTarget(ctx context.Context, logger *slog.Logger, t target.Target, message string) (out Outcome) {
	logger = logger.With("target", t.ID)

	if !o.config.Enabled.IsEnabled(t.ID) {
		logger.Debug("skipping disabled target")
		return Outcome{TargetID: t.ID, Status: StatusSkippedDisabled}
	}
	if !o.config.Readiness.IsReady(t.ID) {
		logger.Debug("skipping target that is not ready")
		return Outcome{TargetID: t.ID, Status: StatusSkippedNotReady}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = failed(t.ID, ErrorScriptFault, fmt.Errorf("panic: %v", r))
			logger.Error("dispatch panicked", "panic", r, "action", "dispatch")
		}
		out.Duration = time.Since(start)
	}()

	h, ok := o.config.Sessions.Handle(t.ID)
	if !ok || h == nil {
		logger.Warn("target ready but session missing", "action", "dispatch")
		return failed(t.ID, ErrorNoSession, session.ErrNotMounted)
	}

	tctx, cancel := context.WithTimeout(ctx, o.config.TargetTimeout)
	defer cancel()

	if t.IsBrowser() {
		out = o.search(tctx, h, t, message)
	} else {
		out = o.injectAndSubmit(tctx, h, t, message)
	}

	attrs := []any{"status", string(out.Status), "action", "dispatch"}
	if out.ErrorKind != ErrorNone {
		attrs = append(attrs, "error_kind", string(out.ErrorKind), "error", out.Error)
		logger.Debug("dispatch failed", attrs...)
	} else {
		logger.Debug("dispatch done", attrs...)
	}
	return out
}

func (o *Orchestrator) injectAndSubmit(ctx context.Context, h session.Handle, t target.Target, message string) Outcome {
	inj, err := o.config.Injector.Inject(ctx, h, t.InputSelector, message)
	if err != nil {
		return failed(t.ID, classify(err), err)
	}
	if !inj.Found {
		out := failed(t.ID, ErrorTargetNotFound, fmt.Errorf("input %q matched nothing", t.InputSelector))
		out.Surface = inj.Surface
		return out
	}

	if err := sleep(ctx, o.config.SubmitDelay); err != nil {
		out := failed(t.ID, ErrorScriptFault, err)
		out.Surface = inj.Surface
		return out
	}

	path, err := o.config.Injector.Submit(ctx, h, t.SubmitSelector, t.InputSelector)
	if err != nil {
		out := failed(t.ID, classify(err), err)
		out.Surface = inj.Surface
		return out
	}
	if path == inject.SubmitNone {
		out := failed(t.ID, ErrorTargetNotFound, fmt.Errorf("neither submit %q nor input matched", t.SubmitSelector))
		out.Surface = inj.Surface
		out.SubmitPath = path
		return out
	}

	return Outcome{
		TargetID:   t.ID,
		Status:     StatusSubmitted,
		Surface:    inj.Surface,
		SubmitPath: path,
	}
}

// search sends the browser pseudo-target to a web search for message on
// whichever engine it is showing.
func (o *Orchestrator) search(ctx context.Context, h session.Handle, t target.Target, message string) Outcome {
	current, err := h.CurrentURL(ctx)
	if err != nil {
		return failed(t.ID, classify(err), err)
	}

	u := browser.SearchURL(current, message)
	// Assigning location does not wait for the page load.
	code := "(() => { window.location.href = " + inject.JSString(u) + "; return true; })()"
	if _, err := h.ExecuteScript(ctx, code); err != nil {
		return failed(t.ID, classify(err), err)
	}
	return Outcome{TargetID: t.ID, Status: StatusSearched, SearchURL: u}
}

func classify(err error) ErrorKind {
	if errors.Is(err, session.ErrClosed) || errors.Is(err, session.ErrNotMounted) {
		return ErrorNoSession
	}
	return ErrorScriptFault
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
