package state

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/chatcast/internal/db"
	"github.com/Dicklesworthstone/chatcast/internal/target"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	getErr  error
	putErr  error
	putKeys []string
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}}
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putKeys = append(m.putKeys, key)
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = value
	return nil
}

func (m *memKV) set(key, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
}

func (m *memKV) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

func loaded(t *testing.T, kv KV) *Store {
	t.Helper()
	s := New(kv, target.Default(), nil)
	s.Load(context.Background())
	return s
}

func enable(t *testing.T, s *Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := s.SetEnabled(context.Background(), id, true, false)
		require.NoError(t, err, id)
	}
}

func TestDefaults(t *testing.T) {
	s := loaded(t, newMemKV())
	snap := s.Snapshot()

	assert.Equal(t, map[string]bool{
		"chatgpt": true, "gemini": true, "perplexity": true, "claude": true,
		"mistral": false, "browser": false,
	}, snap.Enabled)
	assert.Equal(t, LayoutColumn, snap.Layout)
	assert.Zero(t, snap.Zoom)
	assert.Empty(t, snap.LastURLs)
}

func TestLoad_InvalidValuesFallBackPerKey(t *testing.T) {
	kv := newMemKV()
	kv.set(KeyEnabled, `{"chatgpt": "yes"}`)
	kv.set(KeyLayout, `"diagonal"`)
	kv.set(KeyLastURLs, `not json`)
	kv.set(KeyZoom, `1.5`)

	s := loaded(t, kv)
	snap := s.Snapshot()

	assert.Equal(t, DefaultEnabled(target.Default()), snap.Enabled)
	assert.Equal(t, LayoutColumn, snap.Layout)
	assert.Empty(t, snap.LastURLs)
	assert.Equal(t, 1.5, snap.Zoom, "a valid key survives its neighbours being corrupt")
}

func TestLoad_EnabledValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]bool
	}{
		{
			name: "missing ids take defaults, unknown dropped",
			raw:  `{"mistral": true, "chatgpt": false, "bogus": true}`,
			want: map[string]bool{"chatgpt": false, "gemini": true, "perplexity": true, "claude": true, "mistral": true, "browser": false},
		},
		{
			name: "six enabled is rejected",
			raw:  `{"chatgpt": true, "gemini": true, "perplexity": true, "claude": true, "mistral": true, "browser": true}`,
			want: DefaultEnabled(target.Default()),
		},
		{
			name: "null",
			raw:  `null`,
			want: DefaultEnabled(target.Default()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newMemKV()
			kv.set(KeyEnabled, tt.raw)
			assert.Equal(t, tt.want, loaded(t, kv).Snapshot().Enabled)
		})
	}
}

func TestLoad_GridViolationFallsBackToColumn(t *testing.T) {
	kv := newMemKV()
	kv.set(KeyEnabled, `{"chatgpt": true, "gemini": true, "perplexity": true, "claude": true, "mistral": true, "browser": false}`)
	kv.set(KeyLayout, `"grid"`)

	snap := loaded(t, kv).Snapshot()
	assert.Equal(t, 5, snap.EnabledCount())
	assert.Equal(t, LayoutColumn, snap.Layout)
}

func TestLoad_LastURLsFiltered(t *testing.T) {
	kv := newMemKV()
	kv.set(KeyLastURLs, `{"chatgpt": "https://chat.openai.com/c/1", "gemini": "javascript:alert(1)", "claude": "file:///etc/passwd", "ghost": "https://x.example"}`)

	s := loaded(t, kv)
	assert.Equal(t, map[string]string{"chatgpt": "https://chat.openai.com/c/1"}, s.Snapshot().LastURLs)

	chatgpt, _ := target.Default().Lookup("chatgpt")
	gemini, _ := target.Default().Lookup("gemini")
	assert.Equal(t, "https://chat.openai.com/c/1", s.InitialURL(chatgpt))
	assert.Equal(t, gemini.URL, s.InitialURL(gemini))
}

func TestLoad_ZoomClamped(t *testing.T) {
	kv := newMemKV()
	kv.set(KeyZoom, `12`)
	assert.Equal(t, MaxZoom, loaded(t, kv).Zoom())
}

func TestLoad_ReadErrorUsesDefaults(t *testing.T) {
	kv := newMemKV()
	kv.getErr = errors.New("storage unavailable")

	snap := loaded(t, kv).Snapshot()
	assert.Equal(t, DefaultEnabled(target.Default()), snap.Enabled)
	assert.Equal(t, LayoutColumn, snap.Layout)
}

func TestSetEnabled_ColumnLimit(t *testing.T) {
	s := loaded(t, newMemKV())
	enable(t, s, "mistral")

	_, err := s.SetEnabled(context.Background(), "browser", true, false)
	assert.ErrorIs(t, err, ErrMaxTargets)
	assert.False(t, s.IsEnabled("browser"))

	// force does not lift the overall limit.
	_, err = s.SetEnabled(context.Background(), "browser", true, true)
	assert.ErrorIs(t, err, ErrMaxTargets)
}

func TestSetEnabled_GridFifthTarget(t *testing.T) {
	ctx := context.Background()
	s := loaded(t, newMemKV())
	require.NoError(t, s.SetLayout(ctx, LayoutGrid))
	require.Equal(t, 4, s.Snapshot().EnabledCount())

	_, err := s.SetEnabled(ctx, "mistral", true, false)
	assert.ErrorIs(t, err, ErrGridLimit)
	assert.False(t, s.IsEnabled("mistral"))
	assert.Equal(t, LayoutGrid, s.Layout())

	// Switching away from grid lifts the limit.
	require.NoError(t, s.SetLayout(ctx, LayoutRow))
	snap, err := s.SetEnabled(ctx, "mistral", true, false)
	require.NoError(t, err)
	assert.True(t, snap.Enabled["mistral"])
	assert.Equal(t, LayoutRow, snap.Layout)
}

func TestSetEnabled_ForceInGridSwitchesLayout(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := loaded(t, kv)
	require.NoError(t, s.SetLayout(ctx, LayoutGrid))

	snap, err := s.SetEnabled(ctx, "mistral", true, true)
	require.NoError(t, err)
	assert.True(t, snap.Enabled["mistral"])
	assert.Equal(t, LayoutColumn, snap.Layout)
	assert.Equal(t, `"column"`, kv.get(KeyLayout))
}

func TestSetLayout_GridRefusedWithFiveEnabled(t *testing.T) {
	ctx := context.Background()
	s := loaded(t, newMemKV())
	enable(t, s, "mistral")

	assert.ErrorIs(t, s.SetLayout(ctx, LayoutGrid), ErrGridLimit)
	assert.Equal(t, LayoutColumn, s.Layout())

	assert.ErrorIs(t, s.SetLayout(ctx, Layout("diagonal")), ErrInvalidLayout)
}

func TestSetEnabled_UnknownTarget(t *testing.T) {
	s := loaded(t, newMemKV())
	_, err := s.SetEnabled(context.Background(), "nope", true, false)
	assert.ErrorIs(t, err, target.ErrUnknownTarget)
}

func TestSetEnabled_Disable(t *testing.T) {
	kv := newMemKV()
	s := loaded(t, kv)

	snap, err := s.SetEnabled(context.Background(), "gemini", false, false)
	require.NoError(t, err)
	assert.False(t, snap.Enabled["gemini"])

	var stored map[string]bool
	require.NoError(t, json.Unmarshal([]byte(kv.get(KeyEnabled)), &stored))
	assert.False(t, stored["gemini"])
	assert.True(t, stored["chatgpt"])
}

func TestWriteFailureKeepsMemoryValue(t *testing.T) {
	kv := newMemKV()
	s := loaded(t, kv)
	kv.putErr = errors.New("read-only filesystem")

	_, err := s.SetEnabled(context.Background(), "mistral", true, false)
	require.NoError(t, err)
	assert.True(t, s.IsEnabled("mistral"))
	assert.Equal(t, 0.5, s.SetZoom(context.Background(), 0.5))
	assert.Equal(t, 0.5, s.Zoom())
}

func TestSetZoom_Clamps(t *testing.T) {
	s := loaded(t, newMemKV())
	assert.Equal(t, MinZoom, s.SetZoom(context.Background(), -4))
	assert.Equal(t, MaxZoom, s.SetZoom(context.Background(), 9))
	assert.Equal(t, 1.25, s.SetZoom(context.Background(), 1.25))
}

func TestSetLastURL(t *testing.T) {
	kv := newMemKV()
	s := loaded(t, kv)

	require.NoError(t, s.SetLastURL("claude", "https://claude.ai/chat/1"))
	u, ok := s.LastURL("claude")
	assert.True(t, ok)
	assert.Equal(t, "https://claude.ai/chat/1", u)

	// Rewriting the same value is not persisted again.
	require.NoError(t, s.SetLastURL("claude", "https://claude.ai/chat/1"))
	assert.Equal(t, 1, countKey(kv, KeyLastURLs))

	assert.ErrorIs(t, s.SetLastURL("claude", "about:blank"), ErrInvalidURL)
	assert.ErrorIs(t, s.SetLastURL("ghost", "https://x.example"), target.ErrUnknownTarget)
}

func countKey(kv *memKV, key string) int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	n := 0
	for _, k := range kv.putKeys {
		if k == key {
			n++
		}
	}
	return n
}

func TestLayoutHelpers(t *testing.T) {
	assert.Equal(t, LayoutRow, LayoutColumn.Next())
	assert.Equal(t, LayoutGrid, LayoutRow.Next())
	assert.Equal(t, LayoutColumn, LayoutGrid.Next())
	assert.Equal(t, 4, LayoutGrid.Limit())
	assert.Equal(t, 5, LayoutRow.Limit())

	_, err := ParseLayout("grid")
	assert.NoError(t, err)
	_, err = ParseLayout("")
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestStore_WithSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chatcast.db")

	d, err := db.OpenAt(path)
	require.NoError(t, err)
	s := New(d, target.Default(), nil)
	s.Load(ctx)
	require.NoError(t, s.SetLayout(ctx, LayoutGrid))
	require.NoError(t, s.SetLastURL("gemini", "https://gemini.google.com/app/42"))
	s.SetZoom(ctx, -0.5)
	require.NoError(t, d.Close())

	d, err = db.OpenAt(path)
	require.NoError(t, err)
	defer d.Close()

	reloaded := New(d, target.Default(), nil)
	reloaded.Load(ctx)
	snap := reloaded.Snapshot()
	assert.Equal(t, LayoutGrid, snap.Layout)
	assert.Equal(t, -0.5, snap.Zoom)
	assert.Equal(t, "https://gemini.google.com/app/42", snap.LastURLs["gemini"])
}
