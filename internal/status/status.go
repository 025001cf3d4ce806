// Package status classifies the errors returned by the table read and
// write paths.
//
// Every fallible operation returns a plain Go error. The error wraps one
// of the sentinels below so callers can tell a confirmed miss (NotFound)
// from a lookup that could not complete (Corruption, IOError). A cache
// must never treat an IOError as a negative result.
package status

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that the key is absent from the table.
	ErrNotFound = errors.New("status: not found")

	// ErrCorruption reports malformed on-disk data.
	ErrCorruption = errors.New("status: corruption")

	// ErrIO reports a failure of the underlying file layer.
	ErrIO = errors.New("status: io error")
)

// Kind is the coarse class of an error.
type Kind int

const (
	// OK means no error.
	OK Kind = iota
	// NotFound means the key is absent.
	NotFound
	// Corruption means the file is malformed.
	Corruption
	// IOError means the file layer failed.
	IOError
	// Unknown is any error that wraps none of the sentinels.
	Unknown
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case NotFound:
		return "NotFound"
	case Corruption:
		return "Corruption"
	case IOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// KindOf classifies err. A nil error is OK.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrCorruption):
		return Corruption
	case errors.Is(err, ErrIO):
		return IOError
	case errors.Is(err, ErrNotFound):
		return NotFound
	default:
		return Unknown
	}
}

// Error carries a kind sentinel, a message and an optional cause.
type Error struct {
	kind  error
	msg   string
	cause error
}

// Error implements error.
func (e *Error) Error() string {
	switch {
	case e.cause == nil:
		return fmt.Sprintf("%v: %s", e.kind, e.msg)
	case e.msg == "":
		return fmt.Sprintf("%v: %v", e.kind, e.cause)
	default:
		return fmt.Sprintf("%v: %s: %v", e.kind, e.msg, e.cause)
	}
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Corruptionf returns a Corruption error with a formatted message.
func Corruptionf(format string, args ...any) error {
	return &Error{kind: ErrCorruption, msg: fmt.Sprintf(format, args...)}
}

// WrapCorruption marks cause as corruption of the named structure.
// A nil cause yields nil.
func WrapCorruption(what string, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrCorruption) {
		return fmt.Errorf("%s: %w", what, cause)
	}
	return &Error{kind: ErrCorruption, msg: what, cause: cause}
}

// WrapIO marks cause as a file layer failure during op.
// A nil cause yields nil; an error that is already an IOError is only
// annotated.
func WrapIO(op string, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrIO) {
		return fmt.Errorf("%s: %w", op, cause)
	}
	return &Error{kind: ErrIO, msg: op, cause: cause}
}

// NotFoundf returns a NotFound error with a formatted message.
func NotFoundf(format string, args ...any) error {
	return &Error{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}
