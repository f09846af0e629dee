// Package signals turns process signals into daemon events and keeps the
// daemon's PID file.
package signals

import (
	"os"
	"os/signal"
)

// Handler delivers signal events on separate channels. SIGHUP asks for a
// readiness re-poll, SIGUSR1 for a state dump, SIGINT/SIGTERM for shutdown.
type Handler struct {
	reload   chan struct{}
	shutdown chan os.Signal
	dump     chan struct{}
	stop     func()
}

// New installs the handler. Close restores default signal behaviour.
func New() (*Handler, error) {
	h := &Handler{
		reload:   make(chan struct{}, 1),
		shutdown: make(chan os.Signal, 1),
		dump:     make(chan struct{}, 1),
	}

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, watched...)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sigCh:
				h.dispatch(sig)
			case <-done:
				return
			}
		}
	}()

	h.stop = func() {
		signal.Stop(sigCh)
		close(done)
	}
	return h, nil
}

func (h *Handler) dispatch(sig os.Signal) {
	switch kindOf(sig) {
	case kindReload:
		notify(h.reload)
	case kindDump:
		notify(h.dump)
	case kindShutdown:
		select {
		case h.shutdown <- sig:
		default:
		}
	}
}

// notify coalesces events the consumer has not picked up yet.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Reload fires on SIGHUP.
func (h *Handler) Reload() <-chan struct{} {
	if h == nil {
		return nil
	}
	return h.reload
}

// Shutdown receives SIGINT or SIGTERM.
func (h *Handler) Shutdown() <-chan os.Signal {
	if h == nil {
		return nil
	}
	return h.shutdown
}

// DumpStats fires on SIGUSR1.
func (h *Handler) DumpStats() <-chan struct{} {
	if h == nil {
		return nil
	}
	return h.dump
}

// Close stops signal delivery.
func (h *Handler) Close() error {
	if h == nil || h.stop == nil {
		return nil
	}
	h.stop()
	h.stop = nil
	return nil
}

type signalKind int

const (
	kindNone signalKind = iota
	kindReload
	kindDump
	kindShutdown
)
