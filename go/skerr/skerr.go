// Package skerr provides errors that carry the call stack of the place they
// were created or wrapped, and optional context strings.
//
// Errors produced by this package work with errors.Is and errors.As; use
// Unwrap to get at the original error.
package skerr

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// StackTrace identifies a single call site.
type StackTrace struct {
	File string
	Line int
}

func (st *StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// ErrorWithContext wraps an error with the call stack and any context added by
// Wrapf.
type ErrorWithContext struct {
	// Wrapped is the original error. Never an *ErrorWithContext.
	Wrapped error
	// CallStack is the stack where the error was first seen by skerr, with the
	// innermost frame first.
	CallStack []StackTrace
	// Context is the list of messages added by Wrapf, outermost first.
	Context []string
}

// CallStack returns the stack of the caller, skipping the given number of
// frames above the caller. At most maxFrames frames are returned.
func CallStack(maxFrames, skip int) []StackTrace {
	pcs := make([]uintptr, maxFrames)
	// Skip runtime.Callers and CallStack itself.
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	rv := make([]StackTrace, 0, n)
	for {
		f, more := frames.Next()
		if f.File != "" {
			rv = append(rv, StackTrace{
				File: filepath.Join(filepath.Base(filepath.Dir(f.File)), filepath.Base(f.File)),
				Line: f.Line,
			})
		}
		if !more {
			break
		}
	}
	return rv
}

// Error implements the error interface.
func (err *ErrorWithContext) Error() string {
	var out strings.Builder
	for _, c := range err.Context {
		out.WriteString(c)
		out.WriteString(": ")
	}
	out.WriteString(err.Wrapped.Error())
	out.WriteString(". At")
	for _, st := range err.CallStack {
		out.WriteString(" ")
		out.WriteString(st.String())
	}
	return out.String()
}

// Unwrap allows errors.Is and errors.As to see the original error.
func (err *ErrorWithContext) Unwrap() error {
	return err.Wrapped
}

// Wrap adds the call stack to err. If err is already an *ErrorWithContext, it
// is returned unchanged. Returns nil if err is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*ErrorWithContext); ok {
		return err
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(20, 1),
	}
}

// Wrapf adds context and the call stack to err. Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if wrapped, ok := err.(*ErrorWithContext); ok {
		return &ErrorWithContext{
			Wrapped:   wrapped.Wrapped,
			CallStack: wrapped.CallStack,
			Context:   append([]string{msg}, wrapped.Context...),
		}
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(20, 1),
		Context:   []string{msg},
	}
}

// Fmt is fmt.Errorf with the call stack attached. %w is supported.
func Fmt(format string, args ...interface{}) error {
	return &ErrorWithContext{
		Wrapped:   fmt.Errorf(format, args...),
		CallStack: CallStack(20, 1),
	}
}

// Unwrap returns the original error if err was created by this package,
// otherwise err itself.
func Unwrap(err error) error {
	if wrapped, ok := err.(*ErrorWithContext); ok {
		return wrapped.Wrapped
	}
	return err
}
