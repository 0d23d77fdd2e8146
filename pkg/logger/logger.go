// Package logger provides component-filtered structured logging shared by
// every subsystem of the cognitive runtime. It wraps log/slog rather than
// introducing a third-party logging library: no such dependency exists in
// the corpus this module was grown from.
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// Logger is a thin, component-aware wrapper over *slog.Logger. The zero
// value is not usable; construct with New or use the package-level Default.
type Logger struct {
	base *slog.Logger

	mu      sync.RWMutex
	enabled map[string]bool // component -> verbose override; empty means "all enabled at Info+"
}

// New creates a Logger writing to w (or os.Stderr if w is nil) at the given
// slog level.
func New(level slog.Level) *Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &Logger{base: slog.New(h), enabled: make(map[string]bool)}
}

var (
	defaultMu  sync.RWMutex
	defaultLog = New(slog.LevelInfo)
)

// Default returns the process-wide logger. This is the one permitted
// module-level singleton (see AgentServices design note); every other
// component receives a *Logger explicitly.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLog
}

// SetDefault replaces the process-wide logger, primarily for test setup.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLog = l
}

// SetVerbose toggles debug-level visibility for a specific component,
// independent of the base handler level. Used by LOG_ALL-style overrides.
func (l *Logger) SetVerbose(component string, verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled[component] = verbose
}

func (l *Logger) verbose(component string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled[component]
}

func fieldArgs(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2+2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

// DebugCF logs a debug-level, component-filtered message. It is a no-op
// unless the component was opted into verbose logging via SetVerbose, or
// the base handler itself is at LevelDebug.
func (l *Logger) DebugCF(component, msg string, fields map[string]any) {
	args := append([]any{"component", component}, fieldArgs(fields)...)
	if l.verbose(component) {
		l.base.Log(context.Background(), slog.LevelDebug, msg, args...)
		return
	}
	l.base.Debug(msg, args...)
}

// InfoCF logs an info-level, component-tagged message.
func (l *Logger) InfoCF(component, msg string, fields map[string]any) {
	args := append([]any{"component", component}, fieldArgs(fields)...)
	l.base.Info(msg, args...)
}

// WarnCF logs a warn-level, component-tagged message.
func (l *Logger) WarnCF(component, msg string, fields map[string]any) {
	args := append([]any{"component", component}, fieldArgs(fields)...)
	l.base.Warn(msg, args...)
}

// ErrorCF logs an error-level, component-tagged message.
func (l *Logger) ErrorCF(component, msg string, fields map[string]any) {
	args := append([]any{"component", component}, fieldArgs(fields)...)
	l.base.Error(msg, args...)
}

// Package-level convenience wrappers over Default(), used as
// logger.DebugCF("agent", "...", map[string]any{...}) at call sites that
// don't hold their own *Logger.

func DebugCF(component, msg string, fields map[string]any) { Default().DebugCF(component, msg, fields) }
func InfoCF(component, msg string, fields map[string]any)  { Default().InfoCF(component, msg, fields) }
func WarnCF(component, msg string, fields map[string]any)  { Default().WarnCF(component, msg, fields) }
func ErrorCF(component, msg string, fields map[string]any) { Default().ErrorCF(component, msg, fields) }
