package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitializeWithConfig(t *testing.T) {
	original := Logger
	defer func() {
		Logger = original
		Sugar = original.Sugar()
	}()

	tests := []struct {
		name   string
		config LogConfig
		level  zapcore.Level
	}{
		{name: "console info", config: LogConfig{Level: "info", Format: "console"}, level: zapcore.InfoLevel},
		{name: "json debug", config: LogConfig{Level: "debug", Format: "json"}, level: zapcore.DebugLevel},
		{name: "invalid level falls back to info", config: LogConfig{Level: "loud", Format: "console"}, level: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, InitializeWithConfig(tt.config))
			require.NotNil(t, Logger)
			assert.True(t, Logger.Core().Enabled(tt.level))
			assert.False(t, Logger.Core().Enabled(tt.level-1))
		})
	}
}

func TestHelpersAttachComponentFields(t *testing.T) {
	original := Logger
	defer func() { Logger = original }()

	core, logs := observer.New(zapcore.DebugLevel)
	Logger = zap.New(core)

	LogTestCase("talk.mp3", 2.0, "transcribe", zap.Int("tokens", 10))
	LogError(errors.New("boom"), "transcription failed", zap.String("file", "talk.mp3"))
	LogDatabaseOperation("insert", "test_records")

	entries := logs.All()
	require.Len(t, entries, 3)

	first := entries[0].ContextMap()
	assert.Equal(t, "evaluation", first["component"])
	assert.Equal(t, "talk.mp3", first["file"])
	assert.Equal(t, 2.0, first["speed"])
	assert.Equal(t, int64(10), first["tokens"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])

	assert.Equal(t, "test_records", entries[2].ContextMap()["table"])
}
