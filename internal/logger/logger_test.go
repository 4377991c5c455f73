package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/skylab/internal/config"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{name: "Should parse lowercase names", input: "debug", want: slog.LevelDebug},
		{name: "Should parse mixed case names", input: "Warn", want: slog.LevelWarn},
		{name: "Should trim surrounding whitespace", input: "  error ", want: slog.LevelError},
		{name: "Should fall back to info on unknown names", input: "super-critical", want: slog.LevelInfo},
		{name: "Should fall back to info on empty input", input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	t.Run("Should emit JSON records with service attributes", func(t *testing.T) {
		t.Parallel()

		// Arrange
		var buf bytes.Buffer
		cfg := &config.AppConfig{Name: "skylab-data", Version: "1.2.3", Environment: "production", LogLevel: "info", LogFormat: "json"}

		// Act
		NewWithWriter(cfg, &buf).Info("hello", slog.String("flag_key", "f"))

		// Assert
		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, "skylab-data", record["service"])
		assert.Equal(t, "1.2.3", record["version"])
		assert.Equal(t, "production", record["env"])
		assert.Equal(t, "f", record["flag_key"])
		assert.NotContains(t, record, "source")
	})

	t.Run("Should emit text records and honour the level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cfg := &config.AppConfig{Name: "skylab", Environment: "development", LogLevel: "warn", LogFormat: "text"}
		log := NewWithWriter(cfg, &buf)

		log.Info("dropped")
		log.Warn("kept")

		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "msg=kept")
		assert.Contains(t, buf.String(), "service=skylab")
	})

	t.Run("Should panic on nil config", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { NewWithWriter(nil, &bytes.Buffer{}) })
	})
}

func TestForComponent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ForComponent(base, "syncer").Info("tick")

	assert.Contains(t, buf.String(), "component=syncer")
	assert.NotNil(t, ForComponent(nil, "x"))
}
