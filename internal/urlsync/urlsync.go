// Package urlsync persists the most recent in-session URL of each target
// once its navigation has been quiet for a while. It never navigates or
// reloads a session.
package urlsync

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/Dicklesworthstone/chatcast/internal/debounce"
)

// DefaultQuiet is the quiet period before a URL is written.
const DefaultQuiet = 2 * time.Second

// Writer stores the last-known URL for a target. state.Store satisfies it.
type Writer interface {
	SetLastURL(targetID, rawURL string) error
}

// Config configures a Synchronizer.
type Config struct {
	Quiet  time.Duration
	Logger *slog.Logger
}

// Synchronizer debounces navigation events into last-URL writes, with one
// independent timer per target.
type Synchronizer struct {
	writer Writer
	table  *debounce.Table
	logger *slog.Logger
}

// New creates a Synchronizer writing through w.
func New(w Writer, cfg Config) *Synchronizer {
	if cfg.Quiet <= 0 {
		cfg.Quiet = DefaultQuiet
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Synchronizer{
		writer: w,
		table:  debounce.New(cfg.Quiet),
		logger: cfg.Logger,
	}
}

// Observe records a navigation of targetID to rawURL. The write happens after
// the quiet period unless another navigation for the same target arrives
// first, in which case only the newer URL is written.
func (s *Synchronizer) Observe(targetID, rawURL string) {
	if targetID == "" || rawURL == "" {
		return
	}
	if !persistable(rawURL) {
		// Error and blank pages are never remembered. A write already armed
		// for the last real page stays armed, so it is what gets restored.
		s.logger.Debug("ignoring navigation", "target", targetID, "url", rawURL)
		return
	}

	s.table.Trigger(targetID, func() {
		if err := s.writer.SetLastURL(targetID, rawURL); err != nil {
			s.logger.Warn("persist last url failed",
				"target", targetID,
				"error", err,
				"action", "url_persist")
			return
		}
		s.logger.Debug("persisted last url", "target", targetID, "url", rawURL, "action", "url_persist")
	})
}

// Forget cancels a pending write for targetID. Called when its session is
// torn down.
func (s *Synchronizer) Forget(targetID string) {
	if s.table.Cancel(targetID) {
		s.logger.Debug("cancelled pending url write", "target", targetID)
	}
}

// Pending reports whether a write for targetID is waiting.
func (s *Synchronizer) Pending(targetID string) bool {
	return s.table.Pending(targetID)
}

// Flush writes every pending URL immediately. Used on orderly shutdown.
func (s *Synchronizer) Flush() {
	if n := s.table.Flush(); n > 0 {
		s.logger.Debug("flushed pending url writes", "count", n)
	}
}

// Close drops pending writes and ignores further observations.
func (s *Synchronizer) Close() {
	s.table.Close()
}

// persistable skips internal pages (about:blank, chrome-error://) that would
// only be discarded when the table is loaded again.
func persistable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
