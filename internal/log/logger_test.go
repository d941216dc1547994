package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescout/codescout/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLevel("INFO"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LogFormatJSON, "INFO")

	logger.Info("indexed repository", slog.Int("files", 3))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "indexed repository", record["msg"])
	assert.Equal(t, float64(3), record["files"])
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LogFormatJSON, "WARN")

	logger.Info("discarded")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "discarded")
	assert.Contains(t, buf.String(), "kept")
}

func TestCorrelationID(t *testing.T) {
	ctx := WithNewCorrelationID(context.Background())
	id := CorrelationID(ctx)
	assert.NotEmpty(t, id)

	other := WithNewCorrelationID(context.Background())
	assert.NotEqual(t, id, CorrelationID(other))

	assert.Empty(t, CorrelationID(context.Background()))
}

func TestContextHandler_InjectsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LogFormatJSON, "INFO")

	ctx := WithCorrelationID(context.Background(), "abc-123")
	logger.InfoContext(ctx, "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "abc-123", record["correlation_id"])
}

func TestTerminalHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LogFormatPretty, "DEBUG")

	logger.Debug("probing device", slog.String("device", "cpu"))
	out := buf.String()

	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "probing device")
	assert.Contains(t, out, "device=")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTerminalHandler_QuotesStringsWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LogFormatPretty, "INFO")

	logger.Info("search", slog.String("query", "error handling"))

	assert.Contains(t, buf.String(), `"error handling"`)
}

func TestTerminalHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LogFormatPretty, "INFO").WithGroup("vector")

	logger.Info("opened", slog.Int("rows", 7))

	assert.Contains(t, buf.String(), "vector.rows=")
}
