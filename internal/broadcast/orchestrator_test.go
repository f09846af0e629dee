package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/chatcast/internal/db"
	"github.com/Dicklesworthstone/chatcast/internal/inject"
	"github.com/Dicklesworthstone/chatcast/internal/session"
	"github.com/Dicklesworthstone/chatcast/internal/target"
	"github.com/Dicklesworthstone/chatcast/internal/testutil"
)

// =============================================================================
// Fakes
// =============================================================================

var literalAfter = regexp.MustCompile(`(?:const text = |textContent = |data: )("(?:[^"\\]|\\.)*")`)

// fakePage answers the generated scripts the way a page with one input and
// an optional send button would.
type fakePage struct {
	id      string
	journal *journal

	found       bool
	tag         string
	editable    string
	structured  bool
	button      bool
	panicOnFill bool

	mu        sync.Mutex
	filled    []string
	submitted []string
	location  string
}

func (p *fakePage) respond(code string) (any, error) {
	switch {
	case strings.Contains(code, "JSON.stringify"):
		p.journal.add(p.id + ":probe")
		shape := map[string]any{"found": p.found}
		if p.found {
			shape["tag"] = p.tag
			shape["contentEditable"] = p.editable
			shape["structured"] = p.structured
		}
		b, _ := json.Marshal(shape)
		return string(b), nil

	case strings.Contains(code, "KeyboardEvent"):
		p.journal.add(p.id + ":submit")
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.button && !strings.Contains(code, "const button = null") {
			p.submitted = append(p.submitted, "clicked")
			return "clicked", nil
		}
		if !p.found {
			return "none", nil
		}
		p.submitted = append(p.submitted, "enter")
		return "enter", nil

	case strings.Contains(code, "window.location.href"):
		p.journal.add(p.id + ":search")
		m := regexp.MustCompile(`href = ("(?:[^"\\]|\\.)*")`).FindStringSubmatch(code)
		if m == nil {
			return nil, errors.New("no location literal")
		}
		var u string
		if err := json.Unmarshal([]byte(m[1]), &u); err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.location = u
		p.mu.Unlock()
		return true, nil

	default:
		p.journal.add(p.id + ":fill")
		if p.panicOnFill {
			panic("renderer crashed")
		}
		m := literalAfter.FindStringSubmatch(code)
		if m == nil {
			return nil, errors.New("no text literal in fill script")
		}
		var text string
		if err := json.Unmarshal([]byte(m[1]), &text); err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.filled = append(p.filled, text)
		p.mu.Unlock()
		return true, nil
	}
}

func (p *fakePage) Filled() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.filled...)
}

func (p *fakePage) Submitted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.submitted...)
}

type journal struct {
	mu      sync.Mutex
	entries []string
	times   []time.Time
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
	j.times = append(j.times, time.Now())
}

func (j *journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) At(s string) time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, e := range j.entries {
		if e == s {
			return j.times[i]
		}
	}
	return time.Time{}
}

type handleMap map[string]session.Handle

func (m handleMap) Handle(id string) (session.Handle, bool) {
	h, ok := m[id]
	return h, ok
}

type flagSet map[string]bool

func (f flagSet) IsReady(id string) bool   { return f[id] }
func (f flagSet) IsEnabled(id string) bool { return f[id] }

type fakeRecorder struct {
	mu   sync.Mutex
	recs []db.DispatchRecord
	err  error
}

func (r *fakeRecorder) RecordOutcomes(_ context.Context, recs []db.DispatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, recs...)
	return r.err
}

// =============================================================================
// Fixture
// =============================================================================

func automation(id string) target.Target {
	return target.Target{
		ID:             id,
		DisplayName:    strings.ToUpper(id),
		URL:            "https://" + id + ".example.com/",
		Partition:      "persist:" + id,
		InputSelector:  "#" + id + "-input",
		SubmitSelector: "#" + id + "-send",
		Kind:           target.KindAutomation,
	}
}

type fixture struct {
	reg      *target.Registry
	pages    map[string]*fakePage
	handles  handleMap
	ready    flagSet
	enabled  flagSet
	journal  *journal
	recorder *fakeRecorder
}

func newFixture(t *testing.T, targets []target.Target, pages ...*fakePage) *fixture {
	t.Helper()

	reg, err := target.NewRegistry(targets)
	require.NoError(t, err)

	f := &fixture{
		reg:      reg,
		pages:    make(map[string]*fakePage),
		handles:  make(handleMap),
		ready:    make(flagSet),
		enabled:  make(flagSet),
		journal:  &journal{},
		recorder: &fakeRecorder{},
	}
	for _, p := range pages {
		p.journal = f.journal
		f.pages[p.id] = p
		tg, ok := reg.Lookup(p.id)
		require.True(t, ok)
		f.handles[p.id] = testutil.NewFakeHandle(p.id, tg.URL, p.respond)
		f.ready[p.id] = true
		f.enabled[p.id] = true
	}
	return f
}

func (f *fixture) orchestrator(t *testing.T, mutate ...func(*Config)) *Orchestrator {
	t.Helper()
	cfg := Config{
		Registry:    f.reg,
		Sessions:    f.handles,
		Readiness:   f.ready,
		Enabled:     f.enabled,
		Recorder:    f.recorder,
		SubmitDelay: 5 * time.Millisecond,
		SettleDelay: 10 * time.Millisecond,
		Logger:      testutil.Logger(t),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	o, err := New(cfg)
	require.NoError(t, err)
	return o
}

// =============================================================================
// Tests
// =============================================================================

func TestBroadcast_MixedSurfacesInRegistryOrder(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit", button: true}
	b := &fakePage{id: "b", found: true, tag: "div", editable: "true", structured: true}
	c := &fakePage{id: "c", found: false}
	f := newFixture(t, []target.Target{automation("a"), automation("b"), automation("c")}, a, b, c)

	var completed []*Result
	o := f.orchestrator(t, func(cfg *Config) {
		cfg.OnCycleComplete = func(r *Result) { completed = append(completed, r) }
	})

	res, err := o.Broadcast(context.Background(), "hello world")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Same(t, res, completed[0])
	assert.NotEmpty(t, res.CycleID)

	assert.Equal(t, []string{"hello world"}, a.Filled())
	assert.Equal(t, []string{"clicked"}, a.Submitted())
	assert.Equal(t, []string{"hello world"}, b.Filled())
	assert.Equal(t, []string{"enter"}, b.Submitted())
	assert.Empty(t, c.Filled())
	assert.Empty(t, c.Submitted(), "submit must not run after a miss")

	assert.Equal(t, []string{
		"a:probe", "a:fill", "a:submit",
		"b:probe", "b:fill", "b:submit",
		"c:probe",
	}, f.journal.Entries())

	oa, _ := res.Outcome("a")
	assert.Equal(t, StatusSubmitted, oa.Status)
	assert.Equal(t, inject.SurfacePlainField, oa.Surface)
	assert.Equal(t, inject.SubmitClicked, oa.SubmitPath)

	ob, _ := res.Outcome("b")
	assert.Equal(t, StatusSubmitted, ob.Status)
	assert.Equal(t, inject.SurfaceStructuredEditable, ob.Surface)
	assert.Equal(t, inject.SubmitEnterKey, ob.SubmitPath)

	oc, _ := res.Outcome("c")
	assert.Equal(t, StatusFailed, oc.Status)
	assert.Equal(t, ErrorTargetNotFound, oc.ErrorKind)

	assert.Equal(t, 3, res.Attempted())
	assert.Equal(t, 2, res.Delivered())
	assert.False(t, o.Busy())
	assert.Same(t, res, o.Last())
}

func TestBroadcast_MessagePassedUnmodified(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "div", editable: "true"}
	f := newFixture(t, []target.Target{automation("a")}, a)
	o := f.orchestrator(t)

	msg := "  line one\n<b>\"two\"</b>  \\ end  "
	_, err := o.Broadcast(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []string{msg}, a.Filled())
}

func TestBroadcast_BlankMessageTouchesNothing(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit"}
	f := newFixture(t, []target.Target{automation("a")}, a)

	called := false
	o := f.orchestrator(t, func(cfg *Config) {
		cfg.OnCycleComplete = func(*Result) { called = true }
	})

	for _, msg := range []string{"", "   ", "\n\t "} {
		res, err := o.Broadcast(context.Background(), msg)
		assert.ErrorIs(t, err, ErrBlankMessage)
		assert.Nil(t, res)
	}
	assert.Empty(t, f.journal.Entries())
	assert.False(t, called)
	assert.Empty(t, f.recorder.recs)
}

func TestBroadcast_SkipsDisabledAndNotReady(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit"}
	b := &fakePage{id: "b", found: true, tag: "textarea", editable: "inherit"}
	c := &fakePage{id: "c", found: true, tag: "textarea", editable: "inherit"}
	f := newFixture(t, []target.Target{automation("a"), automation("b"), automation("c")}, a, b, c)
	f.enabled["a"] = false
	f.ready["b"] = false

	o := f.orchestrator(t)
	res, err := o.Broadcast(context.Background(), "hi")
	require.NoError(t, err)

	oa, _ := res.Outcome("a")
	ob, _ := res.Outcome("b")
	oc, _ := res.Outcome("c")
	assert.Equal(t, StatusSkippedDisabled, oa.Status)
	assert.Equal(t, StatusSkippedNotReady, ob.Status)
	assert.Equal(t, StatusSubmitted, oc.Status)

	assert.Empty(t, a.Filled())
	assert.Empty(t, b.Filled())
	assert.Equal(t, []string{"c:probe", "c:fill", "c:submit"}, f.journal.Entries())
}

func TestBroadcast_NoEnabledTargetsStillCompletes(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit"}
	f := newFixture(t, []target.Target{automation("a")}, a)
	f.enabled["a"] = false

	called := 0
	o := f.orchestrator(t, func(cfg *Config) {
		cfg.OnCycleComplete = func(*Result) { called++ }
	})
	res, err := o.Broadcast(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, called)
	assert.Zero(t, res.Attempted())
}

func TestBroadcast_PanicIsContained(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit", panicOnFill: true}
	b := &fakePage{id: "b", found: true, tag: "textarea", editable: "inherit"}
	f := newFixture(t, []target.Target{automation("a"), automation("b")}, a, b)
	o := f.orchestrator(t)

	res, err := o.Broadcast(context.Background(), "hi")
	require.NoError(t, err)

	oa, _ := res.Outcome("a")
	assert.Equal(t, StatusFailed, oa.Status)
	assert.Equal(t, ErrorScriptFault, oa.ErrorKind)
	assert.Contains(t, oa.Error, "renderer crashed")

	ob, _ := res.Outcome("b")
	assert.Equal(t, StatusSubmitted, ob.Status)
	assert.False(t, o.Busy())
}

func TestBroadcast_ScriptErrorIsClassified(t *testing.T) {
	f := newFixture(t, []target.Target{automation("a"), automation("b")})
	f.handles["a"] = testutil.NewFakeHandle("a", "https://a.example.com/", func(string) (any, error) {
		return nil, errors.New("Runtime.evaluate: target crashed")
	})
	closed := testutil.NewFakeHandle("b", "https://b.example.com/", nil)
	require.NoError(t, closed.Close())
	f.handles["b"] = closed
	for _, id := range []string{"a", "b"} {
		f.ready[id] = true
		f.enabled[id] = true
	}

	res, err := f.orchestrator(t).Broadcast(context.Background(), "hi")
	require.NoError(t, err)

	oa, _ := res.Outcome("a")
	assert.Equal(t, ErrorScriptFault, oa.ErrorKind)
	ob, _ := res.Outcome("b")
	assert.Equal(t, ErrorNoSession, ob.ErrorKind)
}

func TestBroadcast_ReadyButNoHandle(t *testing.T) {
	f := newFixture(t, []target.Target{automation("a")})
	f.ready["a"] = true
	f.enabled["a"] = true

	res, err := f.orchestrator(t).Broadcast(context.Background(), "hi")
	require.NoError(t, err)
	oa, _ := res.Outcome("a")
	assert.Equal(t, StatusFailed, oa.Status)
	assert.Equal(t, ErrorNoSession, oa.ErrorKind)
}

func TestBroadcast_SubmitWaitsForDelay(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit"}
	f := newFixture(t, []target.Target{automation("a")}, a)
	o := f.orchestrator(t, func(cfg *Config) { cfg.SubmitDelay = 60 * time.Millisecond })

	_, err := o.Broadcast(context.Background(), "hi")
	require.NoError(t, err)

	gap := f.journal.At("a:submit").Sub(f.journal.At("a:fill"))
	assert.GreaterOrEqual(t, gap, 60*time.Millisecond)
}

func TestBroadcast_CompletionWaitsForSettle(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit"}
	f := newFixture(t, []target.Target{automation("a")}, a)

	var completedAt time.Time
	o := f.orchestrator(t, func(cfg *Config) {
		cfg.SettleDelay = 80 * time.Millisecond
		cfg.OnCycleComplete = func(*Result) { completedAt = time.Now() }
	})

	_, err := o.Broadcast(context.Background(), "hi")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, completedAt.Sub(f.journal.At("a:submit")), 80*time.Millisecond)
}

func TestBroadcast_ConcurrentCallIsBusy(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit"}
	f := newFixture(t, []target.Target{automation("a")}, a)
	o := f.orchestrator(t, func(cfg *Config) { cfg.SettleDelay = 150 * time.Millisecond })

	done := make(chan error, 1)
	go func() {
		_, err := o.Broadcast(context.Background(), "first")
		done <- err
	}()

	require.Eventually(t, o.Busy, time.Second, 2*time.Millisecond)
	_, err := o.Broadcast(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, <-done)
	assert.Equal(t, []string{"first"}, a.Filled())
	assert.False(t, o.Busy())
}

func TestBroadcast_CancelledContextDoesNotAbort(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit"}
	f := newFixture(t, []target.Target{automation("a")}, a)
	o := f.orchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.Broadcast(ctx, "hi")
	require.NoError(t, err)
	oa, _ := res.Outcome("a")
	assert.Equal(t, StatusSubmitted, oa.Status)
}

func TestBroadcast_BrowserTargetSearches(t *testing.T) {
	br := target.Target{
		ID:          target.BrowserID,
		DisplayName: "Browser",
		URL:         "https://search.naver.com/",
		Partition:   "persist:browser",
		Kind:        target.KindBrowser,
	}
	p := &fakePage{id: target.BrowserID}
	f := newFixture(t, []target.Target{automation("a"), br}, p)
	o := f.orchestrator(t)

	res, err := o.Broadcast(context.Background(), "go modules & you")
	require.NoError(t, err)

	out, ok := res.Outcome(target.BrowserID)
	require.True(t, ok)
	assert.Equal(t, StatusSearched, out.Status)
	assert.Equal(t, "https://search.naver.com/search.naver?query=go+modules+%26+you", out.SearchURL)
	assert.Equal(t, out.SearchURL, p.location)
	assert.Empty(t, p.Filled())
}

func TestBroadcast_RecordsOutcomes(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit"}
	c := &fakePage{id: "c", found: false}
	f := newFixture(t, []target.Target{automation("a"), automation("b"), automation("c")}, a, c)
	f.enabled["b"] = true

	var seen []string
	o := f.orchestrator(t, func(cfg *Config) {
		cfg.OnOutcome = func(_ string, out Outcome) { seen = append(seen, out.TargetID) }
	})
	res, err := o.Broadcast(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, seen)
	require.Len(t, f.recorder.recs, 3)
	for _, rec := range f.recorder.recs {
		assert.Equal(t, res.CycleID, rec.CycleID)
	}
	assert.Equal(t, "submitted", f.recorder.recs[0].Status)
	assert.Equal(t, "plain_field", f.recorder.recs[0].Surface)
	assert.Equal(t, "skipped_not_ready", f.recorder.recs[1].Status)
	assert.Equal(t, "", f.recorder.recs[1].Surface)
	assert.Equal(t, "failed", f.recorder.recs[2].Status)
	assert.Contains(t, f.recorder.recs[2].Error, "matched nothing")
}

func TestBroadcast_RecorderFailureIsNotFatal(t *testing.T) {
	a := &fakePage{id: "a", found: true, tag: "textarea", editable: "inherit"}
	f := newFixture(t, []target.Target{automation("a")}, a)
	f.recorder.err = errors.New("disk full")

	res, err := f.orchestrator(t).Broadcast(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered())
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	reg := target.Default()
	_, err = New(Config{Registry: reg})
	assert.Error(t, err)
}
