package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tt := []struct {
		in       string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}

	for _, tc := range tt {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseLogLevel(tc.in))
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Options{Level: LevelWarn, Console: true, Output: &buf})
	require.NoError(t, err)

	logger.Info("switch", "should not appear")
	logger.Warn("switch", "attempt failed", Fields{"attempt": 2, "position": "TWO"})

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "[WARN] switch: attempt failed [attempt=2 position=TWO]")
}

func TestLoggerStructured(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Options{Level: LevelDebug, Structured: true, Output: &buf})
	require.NoError(t, err)

	logger.Debugf("telemetry", "band %s", "20")

	out := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(out, `{"time":`))
	assert.Contains(t, out, `"level":"DEBUG"`)
	assert.Contains(t, out, `"component":"telemetry"`)
	assert.Contains(t, out, `"message":"band 20"`)
}

func TestLoggerFileRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "n3fjpd.log")

	logger, err := NewLogger(Options{Level: LevelInfo, File: path, MaxSize: 1})
	require.NoError(t, err)
	logger.Info("main", "hello file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] main: hello file")
}
