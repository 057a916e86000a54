package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/johnayoung/go-btc-chart/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerManagerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{
		Level:         "info",
		Format:        "json",
		ContextFields: map[string]string{"service": "btc-chart"},
	}
	lm := NewLoggerManagerWithWriter(cfg, &buf)

	lm.GetComponentLogger("pager").Info("page merged", "points", 500)
	lm.GetLogger().Debug("hidden")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "pager", lines[0]["component"])
	assert.Equal(t, "btc-chart", lines[0]["service"])
	assert.Equal(t, float64(500), lines[0]["points"])

	_, err := time.Parse(time.RFC3339Nano, lines[0]["time"].(string))
	assert.NoError(t, err)
}

func TestComponentLoggerIsCached(t *testing.T) {
	lm := NewLoggerManagerWithWriter(config.LoggingConfig{Level: "info"}, &bytes.Buffer{})
	assert.Same(t, lm.GetComponentLogger("exchange"), lm.GetComponentLogger("exchange"))
	assert.NotSame(t, lm.GetComponentLogger("exchange"), lm.GetComponentLogger("poller"))
}

func TestWithContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	lm := NewLoggerManagerWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	requestID := NewRequestID()
	_, err := uuid.Parse(requestID)
	require.NoError(t, err)

	ctx := WithRequestID(context.Background(), requestID)
	ctx = WithTimeframe(ctx, "4h")
	ctx = WithSymbol(ctx, "BTCUSDT")
	lm.WithContext(ctx).Debug("loading")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, requestID, lines[0]["request_id"])
	assert.Equal(t, "4h", lines[0]["timeframe"])
	assert.Equal(t, "BTCUSDT", lines[0]["symbol"])
	assert.Equal(t, requestID, GetRequestID(ctx))
	assert.Equal(t, "4h", GetTimeframe(ctx))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chart.log")
	lm, err := NewLoggerManager(config.LoggingConfig{Level: "info", Format: "text", Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)
	lm.GetLogger().Info("written")
	require.NoError(t, lm.Close())
	assert.FileExists(t, path)

	_, err = NewLoggerManager(config.LoggingConfig{Output: "file"})
	assert.Error(t, err)
}
