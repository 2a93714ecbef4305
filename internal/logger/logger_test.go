package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output goes to the configured writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer logger.Close()

		logger.Info().Str("system", "cloudkit").Msg("discovery started")
		assert.Contains(t, buf.String(), `"system":"cloudkit"`)
		assert.Contains(t, buf.String(), "discovery started")
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "sdkbridge.log")

		logger, err := New(Config{Level: "debug", File: logFile, MaxSize: 1})
		require.NoError(t, err)

		logger.Info().Msg("test message")
		require.NoError(t, logger.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "test message")
	})

	t.Run("redaction masks configured secrets", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{
			Level:     "info",
			Console:   true,
			Output:    &buf,
			Redaction: true,
			Secrets:   []string{"hunter2-credential"},
		})
		require.NoError(t, err)
		defer logger.Close()
		require.NotNil(t, logger.Redactor())

		logger.Info().Str("value", "hunter2-credential").Msg("constructed")
		assert.NotContains(t, buf.String(), "hunter2-credential")
		assert.Contains(t, buf.String(), "[REDACTED]")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "loud"})
		require.NoError(t, err)
		defer logger.Close()
		assert.Equal(t, zerolog.InfoLevel, logger.GetZerolog().GetLevel())
	})
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Console: true, Output: &buf})
	require.NoError(t, err)
	defer logger.Close()

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)
	defer logger.Close()

	child := logger.With().Str("component", "bridge").Logger()
	child.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"bridge"`)
}
