package logger

import (
	"os"
	"strings"

	"quote-streamer/src/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// -----------------------------------------------------------------------------

// Logger provides structured logging functionality
type Logger struct {
	name   string
	logger *zap.SugaredLogger
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance. The level is taken from config.LogLevel
// (DEBUG, INFO, WARNING, ERROR), INFO when empty or unknown.
func NewLogger(config *models.MConfig, name string) *Logger {
	level := zapcore.InfoLevel
	if config != nil && config.LogLevel != "" {
		lvl := strings.ToLower(config.LogLevel)
		if lvl == "warning" {
			lvl = "warn"
		}
		if parsed, err := zapcore.ParseLevel(lvl); err == nil {
			level = parsed
		}
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.Encoding = "console"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zapConfig.DisableStacktrace = true

	base, err := zapConfig.Build()
	if err != nil {
		base = zap.NewExample()
	}

	return &Logger{
		name:   name,
		logger: base.Named(name).Sugar(),
	}
}

// -----------------------------------------------------------------------------

// NewNopLogger returns a Logger that discards everything
func NewNopLogger(name string) *Logger {
	return &Logger{
		name:   name,
		logger: zap.NewNop().Sugar(),
	}
}

// -----------------------------------------------------------------------------

// Named returns a child logger sharing the same sink
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		name:   name,
		logger: l.logger.Named(name),
	}
}

// -----------------------------------------------------------------------------

// Debug logs debugging messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
	_ = l.logger.Sync()
	os.Exit(1)
}

// -----------------------------------------------------------------------------

// Sync flushes buffered log entries
func (l *Logger) Sync() {
	_ = l.logger.Sync()
}
