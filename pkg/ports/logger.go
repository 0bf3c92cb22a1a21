// Package ports defines the interfaces the compression core depends on.
package ports

import "strings"

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LevelDebug carries per-stage details such as seeks and chunk sizes.
	LevelDebug LogLevel = iota
	// LevelInfo carries ladder progress.
	LevelInfo
	// LevelWarn carries recoverable problems like a failed attempt or thumbnail.
	LevelWarn
	// LevelError carries terminal pipeline failures.
	LevelError
	// LevelQuiet suppresses all log output.
	LevelQuiet
)

var levelNames = map[LogLevel]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelQuiet: "quiet",
}

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLogLevel parses a level name case-insensitively. Unknown names
// resolve to LevelInfo.
func ParseLogLevel(s string) LogLevel {
	s = strings.ToLower(strings.TrimSpace(s))
	for level, name := range levelNames {
		if name == s {
			return level
		}
	}
	if s == "warning" {
		return LevelWarn
	}
	return LevelInfo
}

// Logger abstracts logging with translatable message keys.
type Logger interface {
	// Debug logs a message key with optional format arguments.
	Debug(msg string, args ...interface{})

	// Info logs orchestration-level progress.
	Info(msg string, args ...interface{})

	// Warn logs a recoverable problem.
	Warn(msg string, args ...interface{})

	// Error logs an unrecoverable problem.
	Error(msg string, args ...interface{})

	// WithComponent returns a Logger that tags messages with component.
	WithComponent(component string) Logger
}
