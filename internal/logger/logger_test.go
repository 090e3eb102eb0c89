package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarins/hermes/internal/config"
)

func baseConfig() *config.AppConfig {
	return &config.AppConfig{
		Name:        "hermes-test",
		Version:     "v0.0.0-test",
		Environment: "development",
		LogLevel:    "info",
		LogFormat:   "json",
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Run("Should emit JSON with the global service attributes", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(baseConfig(), &buf)

		log.Info("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "hermes-test", entry["service"])
		assert.Equal(t, "v0.0.0-test", entry["version"])
		assert.Equal(t, "development", entry["env"])
	})

	t.Run("Should emit text format when configured", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := baseConfig()
		cfg.LogFormat = "text"
		log := NewWithWriter(cfg, &buf)

		log.Info("hello")

		assert.True(t, strings.Contains(buf.String(), "msg=hello"))
		assert.False(t, json.Valid(buf.Bytes()))
	})

	t.Run("Should suppress records below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := baseConfig()
		cfg.LogLevel = "warn"
		log := NewWithWriter(cfg, &buf)

		log.Info("ignored")
		assert.Zero(t, buf.Len())

		log.Warn("kept")
		assert.NotZero(t, buf.Len())
	})

	t.Run("Should default to JSON on an unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := baseConfig()
		cfg.LogFormat = "yaml"
		log := NewWithWriter(cfg, &buf)

		log.Info("hello")

		assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	})

	t.Run("Should panic on nil config", func(t *testing.T) {
		assert.Panics(t, func() { NewWithWriter(nil, &bytes.Buffer{}) })
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}
