package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFlags(t *testing.T) {
	assert.NoError(t, validateFlags(&CLIConfig{}))
	assert.NoError(t, validateFlags(&CLIConfig{LogLevel: "warn", LogFormat: "text"}))
	assert.NoError(t, validateFlags(&CLIConfig{ShowVersion: true, ConfigPath: "/missing.yaml"}))

	assert.Error(t, validateFlags(&CLIConfig{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.Error(t, validateFlags(&CLIConfig{LogLevel: "verbose"}))
	assert.Error(t, validateFlags(&CLIConfig{LogFormat: "xml"}))
}

func TestSetupLogger(t *testing.T) {
	logger := setupLogger("debug", "text")
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger = setupLogger("bogus", "json")
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "debug", firstNonEmpty("", "debug", "info"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
