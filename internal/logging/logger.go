// Package logging provides structured logging for the offline sync engine.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger behind the engine's logging API.
type Logger struct {
	zl *zap.SugaredLogger
}

var (
	// global logger instance
	global *Logger
	once   sync.Once
)

// Init initializes the global logger. Subsequent calls are no-ops.
func Init(level zapcore.Level) {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.DisableStacktrace = true
		zl, err := cfg.Build()
		if err != nil {
			zl = zap.NewNop()
		}
		global = &Logger{zl: zl.Sugar()}
	})
}

// Get returns the global logger instance, initializing at Info level if needed.
func Get() *Logger {
	if global == nil {
		Init(zapcore.InfoLevel)
	}
	return global
}

// SetLogger replaces the global logger. Intended for tests.
func SetLogger(zl *zap.Logger) {
	Get()
	global = &Logger{zl: zl.Sugar()}
}

func fields(context map[string]interface{}) []interface{} {
	kv := make([]interface{}, 0, len(context)*2)
	for k, v := range context {
		kv = append(kv, k, v)
	}
	return kv
}

// Debug logs a debug message with optional context fields.
func Debug(message string, context map[string]interface{}) {
	Get().zl.Debugw(message, fields(context)...)
}

// Info logs an informational message with optional context fields.
func Info(message string, context map[string]interface{}) {
	Get().zl.Infow(message, fields(context)...)
}

// Warn logs a warning message with optional context fields.
func Warn(message string, context map[string]interface{}) {
	Get().zl.Warnw(message, fields(context)...)
}

// Error logs an error message with optional context fields.
func Error(message string, err error, context map[string]interface{}) {
	kv := fields(context)
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	Get().zl.Errorw(message, kv...)
}

// ErrorWithCode logs an error message tagged with a stable error code.
func ErrorWithCode(message, code string, err error, context map[string]interface{}) {
	kv := fields(context)
	kv = append(kv, "code", code)
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	Get().zl.Errorw(message, kv...)
}

// Sync flushes buffered log entries.
func Sync() {
	if global != nil {
		_ = global.zl.Sync()
	}
}
