package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick-relay/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewWritesJSONToRotatedFile(t *testing.T) {
	dir := t.TempDir()
	console, err := os.Create(filepath.Join(dir, "console.log"))
	require.NoError(t, err)
	defer console.Close()

	logFile := filepath.Join(dir, "relay.log")
	logger, closer, err := New(config.LoggingConfig{
		Level:      "warn",
		Format:     "auto",
		File:       logFile,
		MaxSizeMB:  1,
		MaxBackups: 1,
	}, console)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("session failed", "session_id", "abc")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "session failed", record["msg"])
	assert.Equal(t, "abc", record["session_id"])

	consoleData, err := os.ReadFile(console.Name())
	require.NoError(t, err)
	assert.Equal(t, string(data), string(consoleData))
}

func TestNewTextFormat(t *testing.T) {
	console, err := os.Create(filepath.Join(t.TempDir(), "console.log"))
	require.NoError(t, err)
	defer console.Close()

	logger, closer, err := New(config.LoggingConfig{Level: "info", Format: "text"}, console)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("server starting", "addr", "127.0.0.1:8787")

	data, err := os.ReadFile(console.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), `msg="server starting" addr=127.0.0.1:8787`)
}
