package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/chatcast/internal/target"
)

// ErrNotMounted is returned for targets that have no session.
var ErrNotMounted = errors.New("session not mounted")

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Launcher Launcher

	// ProfilesDir holds one user-data directory per partition.
	ProfilesDir string

	// OnNavigate receives (targetID, url) for every main-frame navigation.
	OnNavigate func(targetID, url string)

	// OnTeardown runs before a session is closed, e.g. to cancel pending
	// URL writes for it.
	OnTeardown func(targetID string)

	// MountConcurrency bounds parallel browser launches in MountAll.
	MountConcurrency int

	Logger *slog.Logger
}

// Manager owns the live session handles. It is the readiness source: a
// target is ready once its handle exists.
type Manager struct {
	config ManagerConfig
	logger *slog.Logger

	mu       sync.RWMutex
	handles  map[string]Handle
	mounting map[string]chan struct{}
}

// NewManager creates an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MountConcurrency <= 0 {
		cfg.MountConcurrency = 3
	}
	return &Manager{
		config:   cfg,
		logger:   cfg.Logger,
		handles:  make(map[string]Handle),
		mounting: make(map[string]chan struct{}),
	}
}

// Backend names the launcher in use.
func (m *Manager) Backend() string {
	if m.config.Launcher == nil {
		return ""
	}
	return m.config.Launcher.Backend()
}

// ProfileDir is the user-data directory for t's partition.
func (m *Manager) ProfileDir(t target.Target) string {
	return filepath.Join(m.config.ProfilesDir, t.PartitionDir())
}

// Mount starts a session for t at initialURL. Mounting an already mounted
// target returns the existing handle without navigating it.
func (m *Manager) Mount(ctx context.Context, t target.Target, initialURL string) (Handle, error) {
	if m.config.Launcher == nil {
		return nil, fmt.Errorf("no session launcher configured")
	}

	for {
		m.mu.Lock()
		if h, ok := m.handles[t.ID]; ok {
			m.mu.Unlock()
			return h, nil
		}
		wait, busy := m.mounting[t.ID]
		if !busy {
			m.mounting[t.ID] = make(chan struct{})
			m.mu.Unlock()
			break
		}
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	h, err := m.launch(ctx, t, initialURL)

	m.mu.Lock()
	done := m.mounting[t.ID]
	delete(m.mounting, t.ID)
	if err == nil {
		m.handles[t.ID] = h
	}
	m.mu.Unlock()
	close(done)

	if err != nil {
		return nil, err
	}
	return h, nil
}

func (m *Manager) launch(ctx context.Context, t target.Target, initialURL string) (Handle, error) {
	if initialURL == "" {
		initialURL = t.URL
	}

	dir := m.ProfileDir(t)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir for %s: %w", t.ID, err)
	}

	spec := Spec{
		TargetID:   t.ID,
		URL:        initialURL,
		ProfileDir: dir,
	}
	if m.config.OnNavigate != nil {
		id := t.ID
		spec.OnNavigate = func(url string) { m.config.OnNavigate(id, url) }
	}

	h, err := m.config.Launcher.Launch(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", t.ID, err)
	}
	return h, nil
}

// MountAll mounts targets concurrently. Failures are logged and returned per
// target; one failing target does not stop the others.
func (m *Manager) MountAll(ctx context.Context, targets []target.Target, urlFor func(target.Target) string) map[string]error {
	var (
		mu     sync.Mutex
		failed = make(map[string]error)
		g      errgroup.Group
	)
	g.SetLimit(m.config.MountConcurrency)

	for _, t := range targets {
		g.Go(func() error {
			u := t.URL
			if urlFor != nil {
				u = urlFor(t)
			}
			if _, err := m.Mount(ctx, t, u); err != nil {
				m.logger.Warn("mount failed",
					"target", t.ID,
					"error", err,
					"action", "mount")
				mu.Lock()
				failed[t.ID] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// Handle returns the session for id.
func (m *Manager) Handle(id string) (Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[id]
	return h, ok
}

// Has reports whether id has a session.
func (m *Manager) Has(id string) bool {
	_, ok := m.Handle(id)
	return ok
}

// IDs lists mounted targets, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Unmount tears down id's session: the teardown hook runs first, then the
// handle is closed.
func (m *Manager) Unmount(id string) error {
	m.mu.Lock()
	h, ok := m.handles[id]
	delete(m.handles, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMounted, id)
	}
	if m.config.OnTeardown != nil {
		m.config.OnTeardown(id)
	}
	if err := h.Close(); err != nil {
		return err
	}
	m.logger.Info("session closed", "target", id, "action", "unmount")
	return nil
}

// Close unmounts every session.
func (m *Manager) Close() error {
	var errs []error
	for _, id := range m.IDs() {
		if err := m.Unmount(id); err != nil && !errors.Is(err, ErrNotMounted) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
