// Package logger provides the logging abstraction used across the serial hub,
// so that workers, sessions and the transfer engine log through one interface
// regardless of the backend in use.
//
// Levels, from most to least verbose:
//
//   - DebugLevel: per-byte and per-block protocol detail
//   - InfoLevel: port lifecycle and session events
//   - WarnLevel: recoverable problems such as open retries
//   - ErrorLevel: failures that need attention
//   - FatalLevel: the process cannot continue
package logger

import (
	"fmt"
	"strings"
)

// Level indicates the logging severity level.
type Level int8

const (
	DebugLevel Level = iota - 1
	// InfoLevel is the default.
	InfoLevel
	WarnLevel
	ErrorLevel
	// FatalLevel messages end the process.
	FatalLevel
)

// String returns the lower-case name of the level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
// An empty string yields InfoLevel.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("logger: unknown level %q", s)
	}
}

// Logger is the structured logger every hub component takes. Messages carry
// alternating key/value pairs; With adds pairs that stick to every message
// of the returned child, such as the port a worker serves.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Fatal logs msg and exits the process with status 1.
	Fatal(msg string, keysAndValues ...any)
	// With returns a child logger. The parent is not affected.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level.
	Level() Level
	// SetLevel changes the minimum enabled level, for the logger and all
	// children derived from it.
	SetLevel(level Level)
}
