//go:build !windows

package signals

import (
	"errors"
	"os"
	"syscall"
)

var watched = []os.Signal{syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM}

func kindOf(sig os.Signal) signalKind {
	switch sig {
	case syscall.SIGHUP:
		return kindReload
	case syscall.SIGUSR1:
		return kindDump
	case syscall.SIGINT, syscall.SIGTERM:
		return kindShutdown
	}
	return kindNone
}

// SendReload asks the daemon with pid to re-poll session readiness.
func SendReload(pid int) error {
	return syscall.Kill(pid, syscall.SIGHUP)
}

// SendDump asks the daemon with pid to log its state.
func SendDump(pid int) error {
	return syscall.Kill(pid, syscall.SIGUSR1)
}

// processAlive probes pid with signal 0. EPERM still means the pid exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
