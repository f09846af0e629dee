//go:build windows

package signals

import (
	"errors"
	"os"
)

var watched = []os.Signal{os.Interrupt}

var errUnsupported = errors.New("daemon signals are not available on windows")

func kindOf(sig os.Signal) signalKind {
	if sig == os.Interrupt {
		return kindShutdown
	}
	return kindNone
}

// SendReload is unsupported on Windows; use `chatcast refresh`.
func SendReload(int) error {
	return errUnsupported
}

// SendDump is unsupported on Windows.
func SendDump(int) error {
	return errUnsupported
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
