// Package errtag implements the flat error taxonomy shared by every
// nrgprof subsystem: each error carries a stable category code on top
// of a wrapped cause, so the orchestrator can decide whether a failure
// aborts the run or is attached to a single execution record.
package errtag

import "fmt"

// Code identifies which part of the taxonomy an error belongs to.
type Code uint8

const (
	// Setup covers construction-time failures: no sockets found, an
	// invalid mask, an unsupported platform, a malformed ELF, missing
	// DWARF, or a GPU library that failed to initialize.
	Setup Code = iota
	// Format covers malformed platform data: an invalid OCC header or
	// entry, or an unrecognized RAPL domain name.
	Format
	// Read covers failures at read time: counter file I/O errors,
	// failed NVML/ROCm calls, or both OCC ping and pong invalid.
	Read
	// Lookup covers debug-info query failures: missing or ambiguous
	// compilation units, symbols, or lines.
	Lookup
	// Trace covers tracing-engine failures: a failed ptrace syscall, a
	// surprising waitpid result, a signal received mid-region, a
	// missing trap at a stopped IP, or a single-step that didn't land.
	Trace
)

func (c Code) String() string {
	switch c {
	case Setup:
		return "setup"
	case Format:
		return "format"
	case Read:
		return "read"
	case Lookup:
		return "lookup"
	case Trace:
		return "trace"
	default:
		return "unknown"
	}
}

// Error is a wrapped error tagged with a stable Code, satisfying the
// standard Unwrap contract so callers can still errors.Is/As through it.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a tagged error with no underlying cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Wrap tags err with code, or returns nil if err is nil.
func Wrap(code Code, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(code Code, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}
