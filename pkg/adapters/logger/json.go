package logger

import (
	"io"
	"os"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/rs/zerolog"

	"github.com/user/vidshrink/pkg/ports"
)

// JSONLogger writes one JSON object per message using zerolog.
type JSONLogger struct {
	level     ports.LogLevel
	component string
	log       zerolog.Logger
}

// NewJSON creates a JSON logger writing to stderr.
func NewJSON(level ports.LogLevel) *JSONLogger {
	return NewJSONWriter(os.Stderr, level)
}

// NewJSONWriter creates a JSON logger writing to w.
func NewJSONWriter(w io.Writer, level ports.LogLevel) *JSONLogger {
	return &JSONLogger{
		level: level,
		log:   zerolog.New(w).Hook(timestampHook{now: time.Now}),
	}
}

// timestampHook stamps each event with RFC 3339 nanosecond time without
// touching zerolog's package-level TimeFieldFormat.
type timestampHook struct {
	now func() time.Time
}

func (h timestampHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Str(zerolog.TimestampFieldName, h.now().UTC().Format(time.RFC3339Nano))
}

// Debug logs a debug message.
func (l *JSONLogger) Debug(msg string, args ...interface{}) {
	l.emit(ports.LevelDebug, l.log.Debug(), msg, args...)
}

// Info logs an informational message.
func (l *JSONLogger) Info(msg string, args ...interface{}) {
	l.emit(ports.LevelInfo, l.log.Info(), msg, args...)
}

// Warn logs a warning message.
func (l *JSONLogger) Warn(msg string, args ...interface{}) {
	l.emit(ports.LevelWarn, l.log.Warn(), msg, args...)
}

// Error logs an error message.
func (l *JSONLogger) Error(msg string, args ...interface{}) {
	l.emit(ports.LevelError, l.log.Error(), msg, args...)
}

// WithComponent returns a logger that adds a component field.
func (l *JSONLogger) WithComponent(component string) ports.Logger {
	return &JSONLogger{
		level:     l.level,
		component: component,
		log:       l.log.With().Str("component", component).Logger(),
	}
}

func (l *JSONLogger) emit(level ports.LogLevel, event *zerolog.Event, msg string, args ...interface{}) {
	if l.level > level {
		return
	}
	// Messages arrive either as keys with args or already translated.
	if len(args) > 0 {
		msg = l10n.F(msg, args...)
	}
	event.Msg(msg)
}

var _ ports.Logger = (*JSONLogger)(nil)
