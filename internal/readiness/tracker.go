// Package readiness tracks which target sessions have been mounted.
//
// Readiness is coarse: a target is ready once its session handle exists. It
// says nothing about whether the page inside has finished loading.
package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

const (
	DefaultInterval = 1000 * time.Millisecond
	DefaultCeiling  = 10000 * time.Millisecond
)

// Source reports whether a target currently has a session handle.
// session.Manager satisfies it.
type Source interface {
	Has(id string) bool
}

// Config configures a Tracker.
type Config struct {
	// Interval between polls. The first poll happens immediately.
	Interval time.Duration

	// Ceiling stops polling even if some targets never became ready.
	Ceiling time.Duration

	Logger *slog.Logger

	// OnChange, when set, receives a copy of the map whenever a poll changes it.
	OnChange func(map[string]bool)
}

// DefaultConfig returns the standard polling cadence.
func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Ceiling:  DefaultCeiling,
	}
}

// Tracker polls a Source for a fixed list of target ids. The loop ends by
// itself once every id is ready or the ceiling elapses; the last snapshot is
// kept either way.
type Tracker struct {
	config Config
	source Source
	ids    []string
	logger *slog.Logger

	mu       sync.RWMutex
	ready    map[string]bool
	running  bool
	polls    int
	lastPoll time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a tracker over ids, all initially not ready.
func New(source Source, ids []string, cfg Config) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ready := make(map[string]bool, len(ids))
	for _, id := range ids {
		ready[id] = false
	}

	done := make(chan struct{})
	close(done)

	return &Tracker{
		config: cfg,
		source: source,
		ids:    append([]string(nil), ids...),
		logger: logger,
		ready:  ready,
		doneCh: done,
	}
}

// Start begins polling. It may be called again once a previous run ended.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("readiness tracker already running")
	}
	t.running = true
	t.polls = 0
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	stopCh, doneCh := t.stopCh, t.doneCh
	t.mu.Unlock()

	go t.pollLoop(ctx, stopCh, doneCh)
	return nil
}

// Stop ends the current run and waits for the loop to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	stopCh, doneCh := t.stopCh, t.doneCh
	t.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-doneCh
}

func (t *Tracker) pollLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	started := time.Now()
	defer func() {
		t.mu.Lock()
		t.running = false
		polls := t.polls
		t.mu.Unlock()
		close(doneCh)

		t.logger.Debug("readiness polling stopped",
			"polls", polls,
			"all_ready", t.AllReady(),
			"elapsed", time.Since(started).Round(time.Millisecond),
			"action", "readiness_stop")
	}()

	if t.poll() {
		return
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()
	ceiling := time.NewTimer(t.config.Ceiling)
	defer ceiling.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ceiling.C:
			t.logger.Info("readiness ceiling reached",
				"ready", t.Snapshot(),
				"action", "readiness_ceiling")
			return
		case <-ticker.C:
			if t.poll() {
				return
			}
		}
	}
}

// poll recomputes the map and reports whether every id is ready.
func (t *Tracker) poll() bool {
	next := make(map[string]bool, len(t.ids))
	all := true
	for _, id := range t.ids {
		ok := t.source != nil && t.source.Has(id)
		next[id] = ok
		all = all && ok
	}

	t.mu.Lock()
	changed := !maps.Equal(t.ready, next)
	t.ready = next
	t.polls++
	t.lastPoll = time.Now()
	t.mu.Unlock()

	if changed {
		t.logger.Debug("readiness changed", "ready", next)
		if t.config.OnChange != nil {
			t.config.OnChange(maps.Clone(next))
		}
	}
	return all
}

// Snapshot returns a copy of the readiness map.
func (t *Tracker) Snapshot() map[string]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.ready)
}

// IsReady reports the last polled readiness of id.
func (t *Tracker) IsReady(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready[id]
}

// AllReady reports whether every tracked id was ready at the last poll.
func (t *Tracker) AllReady() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.ids {
		if !t.ready[id] {
			return false
		}
	}
	return true
}

// Running reports whether the polling loop is active.
func (t *Tracker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// Polls returns how many polls the current or last run made.
func (t *Tracker) Polls() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.polls
}

// LastPoll returns when the map was last recomputed.
func (t *Tracker) LastPoll() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastPoll
}

// Done is closed when the current run ends. Before the first Start it is
// already closed.
func (t *Tracker) Done() <-chan struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.doneCh
}
