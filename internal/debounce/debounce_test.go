package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_DefaultDelay(t *testing.T) {
	for _, d := range []time.Duration{0, -5 * time.Millisecond} {
		if got := New(d).Delay(); got != defaultDelay {
			t.Errorf("New(%v).Delay() = %v, want %v", d, got, defaultDelay)
		}
	}
}

func TestTrigger_CollapsesBurst(t *testing.T) {
	tbl := New(50 * time.Millisecond)
	defer tbl.Close()

	var mu sync.Mutex
	var calls []int
	done := make(chan struct{}, 10)

	for i := 1; i <= 5; i++ {
		i := i
		tbl.Trigger("chatgpt", func() {
			mu.Lock()
			calls = append(calls, i)
			mu.Unlock()
			done <- struct{}{}
		})
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced action never ran")
	}
	// Give any stray timer a chance to fire.
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("calls = %v, want exactly one", calls)
	}
	if calls[0] != 5 {
		t.Errorf("ran action %d, want the latest (5)", calls[0])
	}
	if tbl.Pending("chatgpt") {
		t.Error("Pending() = true after firing")
	}
}

func TestTrigger_IndependentKeys(t *testing.T) {
	tbl := New(30 * time.Millisecond)
	defer tbl.Close()

	var a, b atomic.Int32
	tbl.Trigger("a", func() { a.Add(1) })
	tbl.Trigger("b", func() { b.Add(1) })

	if got := tbl.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	time.Sleep(150 * time.Millisecond)
	if a.Load() != 1 || b.Load() != 1 {
		t.Errorf("a=%d b=%d, want 1 each", a.Load(), b.Load())
	}
}

func TestCancel(t *testing.T) {
	tbl := New(30 * time.Millisecond)
	defer tbl.Close()

	var ran atomic.Bool
	tbl.Trigger("claude", func() { ran.Store(true) })

	if !tbl.Pending("claude") {
		t.Fatal("Pending() = false right after Trigger")
	}
	if !tbl.Cancel("claude") {
		t.Fatal("Cancel() = false, want true")
	}
	if tbl.Cancel("claude") {
		t.Error("second Cancel() = true, want false")
	}

	time.Sleep(100 * time.Millisecond)
	if ran.Load() {
		t.Error("cancelled action ran")
	}
}

func TestClose_RefusesTriggers(t *testing.T) {
	tbl := New(30 * time.Millisecond)

	var ran atomic.Bool
	tbl.Trigger("x", func() { ran.Store(true) })
	tbl.Close()

	if tbl.Trigger("x", func() { ran.Store(true) }) {
		t.Error("Trigger() after Close = true, want false")
	}

	time.Sleep(100 * time.Millisecond)
	if ran.Load() {
		t.Error("action ran after Close")
	}
}

func TestFlush(t *testing.T) {
	tbl := New(time.Hour)
	defer tbl.Close()

	var n atomic.Int32
	tbl.Trigger("a", func() { n.Add(1) })
	tbl.Trigger("b", func() { n.Add(1) })

	if got := tbl.Flush(); got != 2 {
		t.Fatalf("Flush() = %d, want 2", got)
	}
	if n.Load() != 2 {
		t.Errorf("ran %d actions, want 2", n.Load())
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d after Flush, want 0", tbl.Len())
	}
}

func TestNilTable(t *testing.T) {
	var tbl *Table
	if tbl.Trigger("k", func() {}) {
		t.Error("nil Trigger() = true")
	}
	if tbl.Pending("k") || tbl.Cancel("k") || tbl.Len() != 0 || tbl.Flush() != 0 {
		t.Error("nil table reported state")
	}
	tbl.Close()
}
