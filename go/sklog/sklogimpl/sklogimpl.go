// Package sklogimpl holds the swappable backend behind the sklog functions.
// Most code should import sklog instead.
package sklogimpl

import (
	"fmt"
	"os"
	"sync"
)

// Severity of a log line.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

// String returns the name of the severity, e.g. "WARNING".
func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Logger is implemented by each logging backend.
type Logger interface {
	// Log writes one line. If format is empty the args are joined with
	// fmt.Sprint semantics, otherwise fmt.Sprintf is used. depth is the number
	// of frames above the sklog call that should be reported as the caller.
	Log(depth int, severity Severity, format string, args ...interface{})

	// Flush any buffered lines.
	Flush()
}

var (
	mtx    sync.RWMutex
	logger Logger
)

// SetLogger replaces the current backend.
func SetLogger(l Logger) {
	mtx.Lock()
	defer mtx.Unlock()
	logger = l
}

func current() Logger {
	mtx.RLock()
	defer mtx.RUnlock()
	return logger
}

// Log sends a line to the current backend. Fatal lines flush and exit.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	l := current()
	if l != nil {
		l.Log(depth+1, severity, format, args...)
	}
	if severity == Fatal {
		Flush()
		os.Exit(255)
	}
}

// Flush flushes the current backend.
func Flush() {
	if l := current(); l != nil {
		l.Flush()
	}
}
