package contract

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, LevelFromString(tt.in))
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(&buf, slog.LevelInfo, "JSON").Info("Job finished", "job_id", "ab12cd34")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "Job finished", rec["msg"])
		assert.Equal(t, "ab12cd34", rec["job_id"])
	})

	t.Run("text format filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, slog.LevelWarn, "text")
		logger.Info("hidden")
		logger.Warn("Clone reused", "repo", "acme/billing")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "repo=acme/billing")
	})

	t.Run("discard logger", func(t *testing.T) {
		assert.False(t, NewDiscardLogger().Enabled(t.Context(), slog.LevelError))
	})
}
