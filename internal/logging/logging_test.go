package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/chatcast/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_TextToStderr(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "info", Format: "text"}, &buf, false)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("broadcast complete", "delivered", 3, "action", "broadcast_complete")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "delivered=3")
	assert.Contains(t, out, "action=broadcast_complete")
}

func TestNew_VerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "error", Format: "text"}, &buf, true)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("probe result")
	assert.Contains(t, buf.String(), "probe result")
}

func TestNew_JSONAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "chatcast.log")

	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{
		Level:     "info",
		Format:    "json",
		File:      path,
		MaxSizeMB: 1,
	}, &buf, false)
	require.NoError(t, err)

	logger.Info("mounted", "target", "chatgpt")
	require.NoError(t, closer.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "mounted", line["msg"])
	assert.Equal(t, "chatgpt", line["target"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"target":"chatgpt"`))
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "chatty"}, nil, false)
	assert.Error(t, err)
}
