package logging

import (
	"strings"

	"go.uber.org/zap"
)

var (
	// Global logger instance. Starts as a no-op so packages can log before
	// InitializeWithConfig runs (and in tests).
	Logger = zap.NewNop()
	Sugar  = Logger.Sugar()
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json", "console"
}

// InitializeWithConfig sets up the global logger with provided configuration
func InitializeWithConfig(config LogConfig) error {
	var zapConfig zap.Config

	switch strings.ToLower(config.Format) {
	case "json":
		zapConfig = zap.NewProductionConfig()
	default:
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(strings.ToLower(config.Level))
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level
	// Console output is for an engineer watching a benchmark, not a debugger.
	zapConfig.DisableStacktrace = true

	logger, err := zapConfig.Build()
	if err != nil {
		return err
	}

	Logger = logger
	Sugar = logger.Sugar()

	Logger.Debug("Structured logging initialized",
		zap.String("level", config.Level),
		zap.String("format", config.Format))
	return nil
}

// Sync flushes any buffered log entries
func Sync() {
	// Sync fails on stderr for some terminals; nothing useful to do about it.
	_ = Logger.Sync()
}

// LogTestCase logs progress of a single (file, speed) benchmark combination.
func LogTestCase(file string, speed float64, stage string, fields ...zap.Field) {
	baseFields := []zap.Field{
		zap.String("component", "evaluation"),
		zap.String("file", file),
		zap.Float64("speed", speed),
		zap.String("stage", stage),
	}
	Logger.Info("Test case", append(baseFields, fields...)...)
}

// LogAudioProcessing logs ffmpeg/ffprobe activity.
func LogAudioProcessing(path, operation string, fields ...zap.Field) {
	baseFields := []zap.Field{
		zap.String("component", "audio_processing"),
		zap.String("path", path),
		zap.String("operation", operation),
	}
	Logger.Debug("Audio processing", append(baseFields, fields...)...)
}

// LogDatabaseOperation logs history store operations
func LogDatabaseOperation(operation, table string, fields ...zap.Field) {
	baseFields := []zap.Field{
		zap.String("component", "database"),
		zap.String("operation", operation),
		zap.String("table", table),
	}
	Logger.Debug("Database operation", append(baseFields, fields...)...)
}

// LogError logs errors with context
func LogError(err error, message string, fields ...zap.Field) {
	Logger.Error(message, append([]zap.Field{zap.Error(err)}, fields...)...)
}

// LogWarn logs warnings with context
func LogWarn(message string, fields ...zap.Field) {
	Logger.Warn(message, fields...)
}
