package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withStdinTerminal(t *testing.T, isTTY bool) {
	t.Helper()
	prev := stdinIsTerminal
	stdinIsTerminal = func() bool { return isTTY }
	t.Cleanup(func() { stdinIsTerminal = prev })
}

func TestReadMessage_Args(t *testing.T) {
	withStdinTerminal(t, true)

	got, err := readMessage([]string{"hello", "world"}, "", nil)
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestReadMessage_File(t *testing.T) {
	withStdinTerminal(t, true)

	path := filepath.Join(t.TempDir(), "msg.md")
	if err := os.WriteFile(path, []byte("line one\nline two\n\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := readMessage(nil, path, nil)
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if got != "line one\nline two" {
		t.Errorf("got %q", got)
	}
}

func TestReadMessage_Stdin(t *testing.T) {
	withStdinTerminal(t, false)

	got, err := readMessage(nil, "", strings.NewReader("  indented\r\n"))
	if err != nil {
		t.Fatalf("readMessage: %v", err)
	}
	if got != "  indented" {
		t.Errorf("leading whitespace must be kept, got %q", got)
	}
}

func TestReadMessage_TerminalWithoutArgs(t *testing.T) {
	withStdinTerminal(t, true)

	_, err := readMessage(nil, "", strings.NewReader("ignored"))
	if !errors.Is(err, errNoMessage) {
		t.Errorf("expected errNoMessage, got %v", err)
	}
}

func TestReadMessage_Blank(t *testing.T) {
	withStdinTerminal(t, false)

	_, err := readMessage(nil, "", strings.NewReader(" \n\t\n"))
	if !errors.Is(err, errNoMessage) {
		t.Errorf("expected errNoMessage, got %v", err)
	}
}

func TestReadMessage_StdinTooLarge(t *testing.T) {
	withStdinTerminal(t, false)

	_, err := readMessage(nil, "", strings.NewReader(strings.Repeat("x", maxStdinMessage+1)))
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestReadMessage_MissingFile(t *testing.T) {
	withStdinTerminal(t, true)

	if _, err := readMessage(nil, filepath.Join(t.TempDir(), "nope.txt"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}
