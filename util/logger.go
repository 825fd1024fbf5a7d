// Package util provides low-level helpers shared by all other packages:
// the diagnostic logger, read-buffer pooling and socket helpers.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel controls diagnostic verbosity.  The packet trace itself is
// not affected; it always goes through the trace sink.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled diagnostics to stderr with an optional
// component tag, e.g. "[VRB] relay: session 3f2a… closed".
type Logger struct {
	level      LogLevel
	component  string
	timestamps bool // prepend HH:MM:SS.mmm

	out *output
}

// output is shared between a Logger and the loggers derived from it so
// that all of them serialise on one mutex.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level:      LogLevel(verbosity),
		timestamps: verbosity >= int(LogDebug),
		out:        &output{w: os.Stderr},
	}
}

// Named returns a logger that tags every message with component and
// shares l's output and level.
func (l *Logger) Named(component string) *Logger {
	c := *l
	c.component = component
	return &c
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) { l.timestamps = on }

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	l.out.w = w
	l.out.mu.Unlock()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("INF", format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("WRN", format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write("VRB", format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write("DBG", format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("ERR", format, args...)
}

func (l *Logger) write(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		msg = l.component + ": " + msg
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.timestamps {
		ts := time.Now().Format("15:04:05.000")
		fmt.Fprintf(l.out.w, "%s [%s] %s\n", ts, level, msg)
	} else {
		fmt.Fprintf(l.out.w, "[%s] %s\n", level, msg)
	}
}
