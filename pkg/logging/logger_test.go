package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		enabled  slog.Level
		disabled slog.Level
	}{
		{"debug", "debug", slog.LevelDebug, slog.Level(-8)},
		{"warn", "WARN", slog.LevelWarn, slog.LevelInfo},
		{"error", "error", slog.LevelError, slog.LevelWarn},
		{"default info", "", slog.LevelInfo, slog.LevelDebug},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			assert.True(t, logger.Enabled(ctx, tt.enabled))
			assert.False(t, logger.Enabled(ctx, tt.disabled))
		})
	}
}

func TestNewWithWriterEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info")
	logger.Info("walk-in booked", "doctor", "Dr. Rao", "slot_index", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "walk-in booked", line["msg"])
	assert.Equal(t, "Dr. Rao", line["doctor"])
	assert.EqualValues(t, 3, line["slot_index"])
}

func TestDefaultReturnsFreshInstances(t *testing.T) {
	a, b := Default(), Default()
	assert.NotSame(t, a, b)
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelWarn))
}
