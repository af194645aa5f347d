// Package logger is a thin wrapper around slog so every package logs the same way.
package logger

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Get returns the active logger.
func Get() *slog.Logger {
	return current.Load()
}

// Configure swaps the global logger. Production uses JSON output. Safe to call
// while other goroutines (config reloads) are logging.
func Configure(environment string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if environment == "production" {
		current.Store(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
		return
	}
	opts.Level = slog.LevelDebug
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, opts)))
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}
