package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput(LevelInfo, FormatJSON, &buf)

	logger.WithFields(map[string]interface{}{
		"wallet":  "0x0b2a3299cc857e29",
		"moments": 3,
	}).WithError(errors.New("boom")).Warn("degraded")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "degraded", entry["message"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "0x0b2a3299cc857e29", entry["wallet"])
	assert.Equal(t, float64(3), entry["moments"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput(LevelWarn, FormatJSON, &buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Error("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput(LevelInfo, FormatText, &buf).WithField("requestId", "abc")

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "abc")
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevelAndFormat(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}

	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("yaml"))
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLoggerWithOutput(LevelInfo, FormatJSON, &buf))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))

	FromContext(ctx).Info("scoped")
	assert.Contains(t, buf.String(), `"requestId":"req-1"`)

	generated := WithRequestID(context.Background(), "")
	assert.Len(t, RequestID(generated), 36)
	assert.Empty(t, RequestID(context.Background()))
}
