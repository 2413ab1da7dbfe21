package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a key-value front end over zerolog. Fields are passed as
// alternating key, value pairs; an error value is written as its message.
// It satisfies analytics.Sink, so the forecasting core logs through it.
type Logger struct {
	zl zerolog.Logger
}

// global backs the package-level helpers and FromContext. It writes
// human-readable lines to stderr until a service installs its own.
var global = NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, zerolog.InfoLevel)

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// NewWithWriter returns a timestamped logger writing to w at level and above
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// SetGlobal replaces the process-wide logger
func SetGlobal(logger *Logger) {
	global = logger
}

// Global returns the process-wide logger
func Global() *Logger {
	return global
}

// pairs turns a key-value list into the form zerolog's Fields accepts.
// Non-string keys are formatted and a trailing key without value is dropped.
func pairs(kv []interface{}) []interface{} {
	out := make([]interface{}, 0, len(kv)&^1)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, key, kv[i+1])
	}
	return out
}

func (l *Logger) emit(e *zerolog.Event, msg string, kv []interface{}) {
	if e == nil {
		return
	}
	if len(kv) > 1 {
		e = e.Fields(pairs(kv))
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.emit(l.zl.Debug(), msg, kv) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.emit(l.zl.Info(), msg, kv) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.emit(l.zl.Warn(), msg, kv) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.emit(l.zl.Error(), msg, kv) }

// Fatal logs and exits the process
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.emit(l.zl.Fatal(), msg, kv) }

// With returns a child logger that adds kv to every record. The parent is
// left untouched.
func (l *Logger) With(kv ...interface{}) *Logger {
	if len(kv) < 2 {
		return l
	}
	return &Logger{zl: l.zl.With().Fields(pairs(kv)).Logger()}
}
