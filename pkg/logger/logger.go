// Package logger provides component-tagged logging for replyclaw.
//
// Every log line carries a component name so gateway output can be
// filtered per subsystem (onebot, suggest, history, ...). The package
// wraps log/slog; SetLevel adjusts verbosity at runtime.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

type Level = slog.Level

const (
	DEBUG = slog.LevelDebug
	INFO  = slog.LevelInfo
	WARN  = slog.LevelWarn
	ERROR = slog.LevelError
)

var (
	level = new(slog.LevelVar)
	base  atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelInfo)
	base.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// SetLevel sets the minimum level emitted by the package logger.
func SetLevel(l Level) {
	level.Set(l)
}

// SetOutput redirects log output, mainly for tests. A nil writer
// restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	base.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func logC(lv Level, component, msg string, kv map[string]any) {
	args := make([]any, 0, 2+2*len(kv))
	args = append(args, "component", component)
	for k, v := range kv {
		args = append(args, k, v)
	}
	base.Load().Log(context.Background(), lv, msg, args...)
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { logC(DEBUG, component, msg, nil) }

// DebugCF logs a debug message with structured fields.
func DebugCF(component, msg string, kv map[string]any) { logC(DEBUG, component, msg, kv) }

// InfoC logs an info message for a component.
func InfoC(component, msg string) { logC(INFO, component, msg, nil) }

// InfoCF logs an info message with structured fields.
func InfoCF(component, msg string, kv map[string]any) { logC(INFO, component, msg, kv) }

// WarnC logs a warning for a component.
func WarnC(component, msg string) { logC(WARN, component, msg, nil) }

// WarnCF logs a warning with structured fields.
func WarnCF(component, msg string, kv map[string]any) { logC(WARN, component, msg, kv) }

// ErrorC logs an error for a component.
func ErrorC(component, msg string) { logC(ERROR, component, msg, nil) }

// ErrorCF logs an error with structured fields.
func ErrorCF(component, msg string, kv map[string]any) { logC(ERROR, component, msg, kv) }
