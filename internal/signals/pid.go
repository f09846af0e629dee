package signals

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Acquire fails with ErrAlreadyRunning while a live daemon owns the PID file;
// Running fails with ErrNotRunning when none does.
var (
	ErrAlreadyRunning = errors.New("chatcast daemon already running")
	ErrNotRunning     = errors.New("chatcast daemon is not running")
)

// DefaultPIDFilePath is $CHATCAST_HOME/chatcast.pid, or ~/.chatcast/chatcast.pid.
func DefaultPIDFilePath() string {
	if home := os.Getenv("CHATCAST_HOME"); home != "" {
		return filepath.Join(home, "chatcast.pid")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".chatcast", "chatcast.pid")
	}
	return filepath.Join(homeDir, ".chatcast", "chatcast.pid")
}

// WritePIDFile writes pid to path, creating parent directories.
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename pid file: %w", err)
	}
	return nil
}

// ReadPIDFile reads the pid stored at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// RemovePIDFile deletes path. A missing file is not an error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Acquire claims path for the current process. A stale file left by a dead
// process is replaced; a live owner yields ErrAlreadyRunning.
func Acquire(path string) error {
	if pid, err := ReadPIDFile(path); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, pid, path)
	}
	return WritePIDFile(path, os.Getpid())
}

// Release removes path if it still names the current process.
func Release(path string) error {
	pid, err := ReadPIDFile(path)
	if err != nil || pid != os.Getpid() {
		return nil
	}
	return RemovePIDFile(path)
}

// Running returns the pid recorded in path when that process is alive.
func Running(path string) (int, error) {
	pid, err := ReadPIDFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, err
	}
	if !processAlive(pid) {
		return 0, fmt.Errorf("%w (stale pid %d in %s)", ErrNotRunning, pid, path)
	}
	return pid, nil
}
