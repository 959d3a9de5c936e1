// Package diag centralizes the toolchain's fatal-and-warning diagnostic
// conventions: every stage prints "file:line: message" to stderr and, for
// fatal errors, exits non-zero without unwinding.
package diag

import (
	"fmt"
	"os"
)

// Fatalf prints a "file:line: message" diagnostic to stderr and exits with
// status 1. file may be empty (e.g. for errors not tied to source text).
func Fatalf(file string, line int, format string, args ...any) {
	fmt.Fprintln(os.Stderr, position(file, line)+fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Warnf prints a non-fatal "file:line: warning: message" diagnostic and
// continues.
func Warnf(file string, line int, format string, args ...any) {
	fmt.Fprintln(os.Stderr, position(file, line)+"warning: "+fmt.Sprintf(format, args...))
}

// Die prints err to stderr and exits with status 1. Used at cmd/ entry
// points that receive a wrapped error rather than a bare message.
func Die(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func position(file string, line int) string {
	if file == "" {
		return ""
	}
	if line <= 0 {
		return fmt.Sprintf("%s: ", file)
	}
	return fmt.Sprintf("%s:%d: ", file, line)
}

// Error is a diagnostic carrying source position, used where the caller
// needs to propagate a failure rather than exit immediately (e.g. so a
// library function stays testable).
type Error struct {
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return position(e.File, e.Line) + e.Msg
}

// Errorf builds an *Error the way Fatalf formats its message.
func Errorf(file string, line int, format string, args ...any) *Error {
	return &Error{File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}
