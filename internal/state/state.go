// Package state holds the user-controlled settings that survive restarts:
// which targets are enabled, the layout mode, the last URL seen in each
// session and the zoom level.
//
// Each setting is stored under its own key as JSON. A value that cannot be
// read, decoded or validated is replaced by its default, so one bad key never
// keeps the daemon from starting. Write failures are logged and the new value
// is kept in memory.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/Dicklesworthstone/chatcast/internal/target"
)

// Persisted keys.
const (
	KeyEnabled  = "enabledTargets"
	KeyLayout   = "layoutType"
	KeyLastURLs = "lastUrls"
	KeyZoom     = "zoomLevel"
)

// Enabled-set limits.
const (
	MaxEnabled     = 5
	MaxEnabledGrid = 4
)

// Zoom range.
const (
	MinZoom = -0.9
	MaxZoom = 3.0
)

// writeTimeout bounds persistence calls that have no caller context.
const writeTimeout = 5 * time.Second

var (
	ErrMaxTargets    = errors.New("at most 5 targets can be enabled")
	ErrGridLimit     = errors.New("grid layout allows at most 4 enabled targets")
	ErrInvalidLayout = errors.New("invalid layout")
	ErrInvalidURL    = errors.New("only http and https URLs can be stored")
)

// Layout is how the host arranges sessions. chatcast only stores it; the
// enabled-set limit depends on it.
type Layout string

const (
	LayoutColumn Layout = "column"
	LayoutRow    Layout = "row"
	LayoutGrid   Layout = "grid"
)

// Valid reports whether l is a known layout.
func (l Layout) Valid() bool {
	switch l {
	case LayoutColumn, LayoutRow, LayoutGrid:
		return true
	}
	return false
}

// Limit is the maximum number of enabled targets under l.
func (l Layout) Limit() int {
	if l == LayoutGrid {
		return MaxEnabledGrid
	}
	return MaxEnabled
}

// Next cycles column -> row -> grid -> column.
func (l Layout) Next() Layout {
	switch l {
	case LayoutColumn:
		return LayoutRow
	case LayoutRow:
		return LayoutGrid
	default:
		return LayoutColumn
	}
}

// ParseLayout validates a layout name.
func ParseLayout(s string) (Layout, error) {
	l := Layout(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q (want column, row or grid)", ErrInvalidLayout, s)
	}
	return l, nil
}

// KV is the persistence backend. db.DB satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// Snapshot is a consistent copy of all settings.
type Snapshot struct {
	Enabled  map[string]bool   `json:"enabled"`
	Layout   Layout            `json:"layout"`
	Zoom     float64           `json:"zoom"`
	LastURLs map[string]string `json:"last_urls"`
}

// EnabledCount counts enabled targets.
func (s Snapshot) EnabledCount() int {
	return countEnabled(s.Enabled)
}

// Store is the in-memory view of the persisted settings. Every mutation
// replaces the whole value under one mutex and then writes it through.
type Store struct {
	kv       KV
	registry *target.Registry
	logger   *slog.Logger

	// persistMu orders write-through so the stored value is the latest one.
	persistMu sync.Mutex

	mu       sync.RWMutex
	enabled  map[string]bool
	layout   Layout
	zoom     float64
	lastURLs map[string]string
}

// New creates a store holding the defaults. Call Load to read persisted
// values. kv may be nil for a memory-only store.
func New(kv KV, registry *target.Registry, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:       kv,
		registry: registry,
		logger:   logger,
		enabled:  DefaultEnabled(registry),
		layout:   LayoutColumn,
		lastURLs: map[string]string{},
	}
}

// DefaultEnabled enables the first four chat targets and nothing else.
func DefaultEnabled(registry *target.Registry) map[string]bool {
	out := make(map[string]bool, registry.Len())
	n := 0
	for _, t := range registry.All() {
		on := !t.IsBrowser() && n < MaxEnabledGrid
		if on {
			n++
		}
		out[t.ID] = on
	}
	return out
}

// Load reads every key, falling back per key to its default.
func (s *Store) Load(ctx context.Context) {
	enabled := DefaultEnabled(s.registry)
	if raw, ok := s.read(ctx, KeyEnabled); ok {
		var m map[string]bool
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			s.discard(KeyEnabled, err)
		} else if v, err := s.validateEnabled(m); err != nil {
			s.discard(KeyEnabled, err)
		} else {
			enabled = v
		}
	}

	layout := LayoutColumn
	if raw, ok := s.read(ctx, KeyLayout); ok {
		var name string
		if err := json.Unmarshal([]byte(raw), &name); err != nil {
			s.discard(KeyLayout, err)
		} else if l, err := ParseLayout(name); err != nil {
			s.discard(KeyLayout, err)
		} else {
			layout = l
		}
	}

	// The enabled set wins over the layout: an over-full grid becomes a column.
	if layout == LayoutGrid && countEnabled(enabled) > MaxEnabledGrid {
		s.logger.Warn("persisted layout violates grid limit, using column",
			"enabled", countEnabled(enabled),
			"action", "state_fallback")
		layout = LayoutColumn
	}

	lastURLs := map[string]string{}
	if raw, ok := s.read(ctx, KeyLastURLs); ok {
		var m map[string]string
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			s.discard(KeyLastURLs, err)
		} else {
			lastURLs = s.validateLastURLs(m)
		}
	}

	zoom := 0.0
	if raw, ok := s.read(ctx, KeyZoom); ok {
		var z float64
		if err := json.Unmarshal([]byte(raw), &z); err != nil {
			s.discard(KeyZoom, err)
		} else {
			zoom = ClampZoom(z)
		}
	}

	s.mu.Lock()
	s.enabled = enabled
	s.layout = layout
	s.lastURLs = lastURLs
	s.zoom = zoom
	s.mu.Unlock()

	s.logger.Debug("state loaded",
		"enabled", countEnabled(enabled),
		"layout", string(layout),
		"last_urls", len(lastURLs),
		"zoom", zoom)
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	if s.kv == nil {
		return "", false
	}
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("read persisted state failed, using default",
			"key", key,
			"error", err,
			"action", "state_fallback")
		return "", false
	}
	return raw, ok
}

func (s *Store) discard(key string, err error) {
	s.logger.Warn("discarding invalid persisted state",
		"key", key,
		"error", err,
		"action", "state_fallback")
}

func (s *Store) write(ctx context.Context, key string, v any) {
	if s.kv == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("encode state failed", "key", key, "error", err)
		return
	}
	if err := s.kv.Put(ctx, key, string(b)); err != nil {
		s.logger.Warn("persist state failed, keeping in-memory value",
			"key", key,
			"error", err,
			"action", "state_persist")
	}
}

// validateEnabled keeps known ids, fills missing ones from the default and
// rejects a set larger than MaxEnabled.
func (s *Store) validateEnabled(m map[string]bool) (map[string]bool, error) {
	if m == nil {
		return nil, fmt.Errorf("null enabled set")
	}
	defaults := DefaultEnabled(s.registry)
	out := make(map[string]bool, len(defaults))
	for id, def := range defaults {
		if v, ok := m[id]; ok {
			out[id] = v
		} else {
			out[id] = def
		}
	}
	if n := countEnabled(out); n > MaxEnabled {
		return nil, fmt.Errorf("%d targets enabled: %w", n, ErrMaxTargets)
	}
	return out, nil
}

func (s *Store) validateLastURLs(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for id, raw := range m {
		if _, ok := s.registry.Lookup(id); !ok {
			continue
		}
		if !ValidURL(raw) {
			s.logger.Debug("dropping persisted url", "target", id, "url", raw)
			continue
		}
		out[id] = raw
	}
	return out
}

// ValidURL accepts absolute http and https URLs.
func ValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ClampZoom limits z to [MinZoom, MaxZoom]. NaN becomes 0.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 0
	}
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

func countEnabled(m map[string]bool) int {
	n := 0
	for _, on := range m {
		if on {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of every setting.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Enabled:  maps.Clone(s.enabled),
		Layout:   s.layout,
		Zoom:     s.zoom,
		LastURLs: maps.Clone(s.lastURLs),
	}
}

// IsEnabled reports whether id is enabled.
func (s *Store) IsEnabled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[id]
}

// Layout returns the layout mode.
func (s *Store) Layout() Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layout
}

// Zoom returns the stored zoom level.
func (s *Store) Zoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoom
}

// LastURL returns the persisted URL for id, if any.
func (s *Store) LastURL(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.lastURLs[id]
	return u, ok
}

// InitialURL is where a new session for t starts: the last persisted URL when
// there is one, otherwise the target default.
func (s *Store) InitialURL(t target.Target) string {
	if u, ok := s.LastURL(t.ID); ok {
		return u
	}
	return t.URL
}

// SetEnabled turns id on or off. Enabling beyond the current layout's limit
// fails with ErrMaxTargets or ErrGridLimit. With force, a grid that would
// overflow switches to column instead. The returned snapshot reflects the
// state after the call.
func (s *Store) SetEnabled(ctx context.Context, id string, on, force bool) (Snapshot, error) {
	if _, ok := s.registry.Lookup(id); !ok {
		return s.Snapshot(), fmt.Errorf("%w: %q", target.ErrUnknownTarget, id)
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if s.enabled[id] == on {
		s.mu.Unlock()
		return s.Snapshot(), nil
	}

	next := maps.Clone(s.enabled)
	next[id] = on
	count := countEnabled(next)
	layout := s.layout
	layoutChanged := false

	if on {
		switch {
		case count > MaxEnabled:
			s.mu.Unlock()
			return s.Snapshot(), ErrMaxTargets
		case layout == LayoutGrid && count > MaxEnabledGrid:
			if !force {
				s.mu.Unlock()
				return s.Snapshot(), ErrGridLimit
			}
			layout = LayoutColumn
			layoutChanged = true
		}
	}

	s.enabled = next
	s.layout = layout
	s.mu.Unlock()

	s.write(ctx, KeyEnabled, next)
	if layoutChanged {
		s.logger.Info("layout switched to allow more targets",
			"from", string(LayoutGrid),
			"to", string(layout),
			"enabled", count,
			"action", "layout_fallback")
		s.write(ctx, KeyLayout, string(layout))
	}

	s.logger.Info("target toggled", "target", id, "enabled", on, "action", "toggle")
	return s.Snapshot(), nil
}

// SetLayout changes the layout mode. Grid is refused while more than four
// targets are enabled.
func (s *Store) SetLayout(ctx context.Context, l Layout) error {
	if !l.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLayout, string(l))
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if l == LayoutGrid && countEnabled(s.enabled) > MaxEnabledGrid {
		s.mu.Unlock()
		return ErrGridLimit
	}
	changed := s.layout != l
	s.layout = l
	s.mu.Unlock()

	if changed {
		s.write(ctx, KeyLayout, string(l))
		s.logger.Info("layout changed", "layout", string(l), "action", "layout")
	}
	return nil
}

// SetZoom stores z clamped to the allowed range and returns the stored value.
func (s *Store) SetZoom(ctx context.Context, z float64) float64 {
	z = ClampZoom(z)

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.zoom = z
	s.mu.Unlock()

	s.write(ctx, KeyZoom, z)
	return z
}

// SetLastURL records the latest URL seen in a target's session. It is called
// from the URL synchronizer and has no caller context.
func (s *Store) SetLastURL(id, raw string) error {
	if _, ok := s.registry.Lookup(id); !ok {
		return fmt.Errorf("%w: %q", target.ErrUnknownTarget, id)
	}
	if !ValidURL(raw) {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if s.lastURLs[id] == raw {
		s.mu.Unlock()
		return nil
	}
	next := maps.Clone(s.lastURLs)
	next[id] = raw
	s.lastURLs = next
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	s.write(ctx, KeyLastURLs, next)
	return nil
}
