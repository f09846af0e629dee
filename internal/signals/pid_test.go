package signals

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFileRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "chatcast.pid")

	if err := WritePIDFile(pidPath, 12345); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}

	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if pid != 12345 {
		t.Fatalf("pid=%d, want 12345", pid)
	}

	if err := RemovePIDFile(pidPath); err != nil {
		t.Fatalf("RemovePIDFile: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, stat err=%v", err)
	}
}

func TestDefaultPIDFilePathUsesChatcastHome(t *testing.T) {
	orig := os.Getenv("CHATCAST_HOME")
	defer os.Setenv("CHATCAST_HOME", orig)

	tmpDir := t.TempDir()
	os.Setenv("CHATCAST_HOME", tmpDir)

	got := DefaultPIDFilePath()
	want := filepath.Join(tmpDir, "chatcast.pid")
	if got != want {
		t.Fatalf("DefaultPIDFilePath=%q, want %q", got, want)
	}
}

func TestDefaultPIDFilePathWithoutChatcastHome(t *testing.T) {
	orig := os.Getenv("CHATCAST_HOME")
	defer os.Setenv("CHATCAST_HOME", orig)

	os.Unsetenv("CHATCAST_HOME")

	got := DefaultPIDFilePath()
	// Should end with chatcast.pid
	if !filepath.IsAbs(got) && got != filepath.Join(".chatcast", "chatcast.pid") {
		if filepath.Base(got) != "chatcast.pid" {
			t.Fatalf("DefaultPIDFilePath=%q should end with chatcast.pid", got)
		}
	}
}

func TestWritePIDFileCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "subdir", "nested", "chatcast.pid")

	if err := WritePIDFile(pidPath, 99999); err != nil {
		t.Fatalf("WritePIDFile with nested dir: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		t.Fatal("PID file was not created")
	}

	// Verify content
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if pid != 99999 {
		t.Fatalf("pid=%d, want 99999", pid)
	}
}

func TestReadPIDFileNotExists(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "nonexistent.pid")

	_, err := ReadPIDFile(pidPath)
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestRemovePIDFileNotExists(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "nonexistent.pid")

	// Should not error when file doesn't exist
	err := RemovePIDFile(pidPath)
	if err != nil {
		t.Fatalf("RemovePIDFile on nonexistent file should not error: %v", err)
	}
}

func TestReadPIDFileInvalidContent(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "bad.pid")

	// Write invalid content
	if err := os.WriteFile(pidPath, []byte("not-a-number\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := ReadPIDFile(pidPath)
	if err == nil {
		t.Fatal("expected error for invalid PID content")
	}
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "chatcast.pid")

	// No process has pid 0x7ffffffe on a test machine.
	if err := WritePIDFile(pidPath, 0x7ffffffe); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	if err := Acquire(pidPath); err != nil {
		t.Fatalf("Acquire over stale file: %v", err)
	}

	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid=%d, want %d", pid, os.Getpid())
	}

	if err := Release(pidPath); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, stat err=%v", err)
	}
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "chatcast.pid")

	// The parent process is alive for the duration of the test.
	if err := WritePIDFile(pidPath, os.Getppid()); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}

	err := Acquire(pidPath)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Acquire err=%v, want ErrAlreadyRunning", err)
	}
}

func TestReleaseKeepsForeignFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "chatcast.pid")
	if err := WritePIDFile(pidPath, os.Getppid()); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	if err := Release(pidPath); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(pidPath); err != nil {
		t.Fatalf("foreign pid file should stay: %v", err)
	}
}

func TestRunning(t *testing.T) {
	dir := t.TempDir()

	if _, err := Running(filepath.Join(dir, "missing.pid")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("missing file err=%v, want ErrNotRunning", err)
	}

	stale := filepath.Join(dir, "stale.pid")
	if err := WritePIDFile(stale, 0x7ffffffe); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	if _, err := Running(stale); !errors.Is(err, ErrNotRunning) {
		t.Errorf("stale file err=%v, want ErrNotRunning", err)
	}

	live := filepath.Join(dir, "live.pid")
	if err := WritePIDFile(live, os.Getpid()); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	pid, err := Running(live)
	if err != nil {
		t.Fatalf("Running: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid=%d, want %d", pid, os.Getpid())
	}
}
