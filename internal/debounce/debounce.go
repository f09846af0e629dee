// Package debounce provides a table of per-key trailing-edge timers.
package debounce

import (
	"sync"
	"time"
)

const defaultDelay = 2 * time.Second

type entry struct {
	timer *time.Timer
	gen   uint64
	fn    func()
}

// Table runs at most one pending action per key. Triggering a key again
// before its delay elapses cancels the pending action and restarts the wait,
// so a burst collapses into a single call of the most recent action.
type Table struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*entry
	gen     uint64
	closed  bool
}

// New creates a table with the given quiet period. Non-positive delays use
// the 2s default.
func New(delay time.Duration) *Table {
	if delay <= 0 {
		delay = defaultDelay
	}
	return &Table{
		delay:   delay,
		pending: make(map[string]*entry),
	}
}

// Delay returns the quiet period.
func (t *Table) Delay() time.Duration {
	return t.delay
}

// Trigger schedules fn to run after the quiet period for key, replacing any
// pending action for the same key. It returns false once the table is closed.
func (t *Table) Trigger(key string, fn func()) bool {
	if t == nil || fn == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if e, ok := t.pending[key]; ok {
		e.timer.Stop()
	}

	t.gen++
	e := &entry{gen: t.gen, fn: fn}
	gen := e.gen
	e.timer = time.AfterFunc(t.delay, func() { t.fire(key, gen) })
	t.pending[key] = e
	return true
}

// fire runs the action for key if it is still the current one. A timer that
// lost a race with Stop sees a newer generation and does nothing.
func (t *Table) fire(key string, gen uint64) {
	t.mu.Lock()
	e, ok := t.pending[key]
	if !ok || e.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.pending, key)
	t.mu.Unlock()

	e.fn()
}

// Cancel drops the pending action for key. It reports whether one existed.
func (t *Table) Cancel(key string) bool {
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.pending, key)
	return true
}

// Pending reports whether key has an action waiting.
func (t *Table) Pending(key string) bool {
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key]
	return ok
}

// Len returns the number of pending actions.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Flush runs every pending action now, in no particular order, and clears
// the table. It does not close it.
func (t *Table) Flush() int {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	fns := make([]func(), 0, len(t.pending))
	for key, e := range t.pending {
		e.timer.Stop()
		fns = append(fns, e.fn)
		delete(t.pending, key)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Close cancels every pending action and refuses further triggers.
func (t *Table) Close() {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for key, e := range t.pending {
		e.timer.Stop()
		delete(t.pending, key)
	}
}
