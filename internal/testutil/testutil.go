// Package testutil provides fakes for session handles and launchers, and a
// logger that writes to the test log.
package testutil

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/Dicklesworthstone/chatcast/internal/session"
)

// Logger returns a debug-level slog logger that writes through t.Log.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(tWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type tWriter struct{ t testing.TB }

func (w tWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Responder computes the result of a script evaluated by a FakeHandle.
type Responder func(code string) (any, error)

// FakeHandle is an in-memory session.Handle that records what it is asked
// to do.
type FakeHandle struct {
	ID        string
	Responder Responder

	mu          sync.Mutex
	url         string
	scripts     []string
	navigations []string
	inspectors  int
	closed      bool
}

// NewFakeHandle creates a handle for id at url.
func NewFakeHandle(id, url string, r Responder) *FakeHandle {
	return &FakeHandle{ID: id, url: url, Responder: r}
}

func (f *FakeHandle) TargetID() string { return f.ID }

func (f *FakeHandle) ExecuteScript(_ context.Context, code string) (any, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, session.ErrClosed
	}
	f.scripts = append(f.scripts, code)
	r := f.Responder
	f.mu.Unlock()

	if r == nil {
		return nil, errors.New("fake handle has no responder")
	}
	return r(code)
}

func (f *FakeHandle) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return session.ErrClosed
	}
	f.navigations = append(f.navigations, url)
	f.url = url
	return nil
}

func (f *FakeHandle) CurrentURL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", session.ErrClosed
	}
	return f.url, nil
}

func (f *FakeHandle) OpenInspector(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inspectors++
	return nil
}

func (f *FakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Scripts returns every script evaluated so far.
func (f *FakeHandle) Scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scripts...)
}

// Navigations returns every URL passed to Navigate.
func (f *FakeHandle) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}

// Inspectors counts OpenInspector calls.
func (f *FakeHandle) Inspectors() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inspectors
}

// Closed reports whether Close was called.
func (f *FakeHandle) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeLauncher hands out FakeHandles and remembers the specs it was given.
type FakeLauncher struct {
	// Fail makes Launch fail for the listed target ids.
	Fail map[string]error

	// Responder is given to every handle.
	Responder Responder

	mu      sync.Mutex
	specs   []session.Spec
	handles map[string]*FakeHandle
}

func (l *FakeLauncher) Backend() string { return "fake" }

func (l *FakeLauncher) Launch(_ context.Context, spec session.Spec) (session.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.specs = append(l.specs, spec)
	if err := l.Fail[spec.TargetID]; err != nil {
		return nil, err
	}
	if l.handles == nil {
		l.handles = make(map[string]*FakeHandle)
	}
	h := NewFakeHandle(spec.TargetID, spec.URL, l.Responder)
	l.handles[spec.TargetID] = h
	return h, nil
}

// Specs returns every launch request.
func (l *FakeLauncher) Specs() []session.Spec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]session.Spec(nil), l.specs...)
}

// Handle returns the last handle launched for id.
func (l *FakeLauncher) Handle(id string) *FakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[id]
}

// Navigate fires the OnNavigate callback of the last spec launched for id,
// as a browser would on a page load.
func (l *FakeLauncher) Navigate(id, url string) {
	l.mu.Lock()
	var cb func(string)
	for i := len(l.specs) - 1; i >= 0; i-- {
		if l.specs[i].TargetID == id {
			cb = l.specs[i].OnNavigate
			break
		}
	}
	l.mu.Unlock()

	if cb != nil {
		cb(url)
	}
}
