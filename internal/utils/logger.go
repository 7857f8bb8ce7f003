package utils

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var base atomic.Pointer[zerolog.Logger]

func init() {
	InitLogging("info", nil)
}

// InitLogging configures the process-wide log level and output.
// level can be "debug", "info", "warn" or "error"; unknown values mean info.
// At debug level output is human-friendly console format. A nil writer means stdout.
func InitLogging(level string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if w == nil {
		w = os.Stdout
	}
	if lvl == zerolog.DebugLevel {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	l := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	base.Store(&l)
}

// Logger provides structured logging scoped to a component
type Logger struct {
	component string
}

// NewLogger creates a new logger for the given component
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(l.zl().Info(), msg, keyvals)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(l.zl().Error(), msg, keyvals)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(l.zl().Warn(), msg, keyvals)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(l.zl().Debug(), msg, keyvals)
}

func (l *Logger) zl() *zerolog.Logger {
	return base.Load()
}

// log attaches key/value pairs to the event. Keys that are not strings are
// skipped along with their value; a trailing key without a value is dropped.
func (l *Logger) log(ev *zerolog.Event, msg string, keyvals []interface{}) {
	if ev == nil {
		return
	}
	ev = ev.Str("component", l.component)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		switch v := keyvals[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
