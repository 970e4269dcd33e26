package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ruleminer/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestFileName(t *testing.T) {
	day := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "ruleminer_20250309.jsonl", FileName(day))
}

func TestNewConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("pipeline.phase.start", "phase", "indexing")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "pipeline.phase.start", rec["msg"])
	assert.Equal(t, "indexing", rec["phase"])
}

func TestNewTeesToFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	logger, closer, err := New(config.LoggingConfig{Level: "warn", Format: "text", Dir: dir}, &buf)
	require.NoError(t, err)

	logger.With("run", "r1").Debug("file.only")
	logger.Warn("both")
	require.NoError(t, closer.Close())

	assert.NotContains(t, buf.String(), "file.only")
	assert.Contains(t, buf.String(), "both")

	data, err := os.ReadFile(filepath.Join(dir, FileName(time.Now())))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"file.only"`)
	assert.Contains(t, string(data), `"run":"r1"`)
	assert.Contains(t, string(data), `"msg":"both"`)
}
