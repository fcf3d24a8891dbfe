package session

import (
	"errors"
	"fmt"
)

// ErrCorruptSession is returned for input that is not a session this
// build understands: bad magic, a newer format version, undecodable
// metadata or raster data that does not match its declared geometry.
// Use errors.Is(err, ErrCorruptSession).
var ErrCorruptSession = &CorruptError{}

// CorruptError describes why a session was rejected.
type CorruptError struct {
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	msg := "corrupt session"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptError) Unwrap() error { return e.Err }

func (e *CorruptError) Is(target error) bool {
	_, ok := target.(*CorruptError)
	return ok
}

func corrupt(format string, args ...any) error {
	return &CorruptError{Reason: fmt.Sprintf(format, args...)}
}

// ErrTruncatedData is returned when a declared length runs past the end
// of the input.
var ErrTruncatedData = &TruncatedError{}

// TruncatedError records what was cut short and by how much.
type TruncatedError struct {
	Section string
	Want    int64
	Have    int64
}

func (e *TruncatedError) Error() string {
	if e.Section == "" {
		return "truncated session data"
	}
	return fmt.Sprintf("truncated session data: %s needs %d bytes, %d available", e.Section, e.Want, e.Have)
}

func (e *TruncatedError) Is(target error) bool {
	_, ok := target.(*TruncatedError)
	return ok
}

// ErrSchemaMismatch is returned when metadata lacks a field the declared
// format version requires.
var ErrSchemaMismatch = &SchemaError{}

// SchemaError names the missing or malformed field.
type SchemaError struct {
	Version uint16
	Field   string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "session schema mismatch"
	}
	return fmt.Sprintf("session schema mismatch: version %d requires %s", e.Version, e.Field)
}

func (e *SchemaError) Is(target error) bool {
	_, ok := target.(*SchemaError)
	return ok
}

// ErrUnsupportedFormat is returned when no registered format handles a
// file extension, or the format cannot perform the requested direction.
var ErrUnsupportedFormat = errors.New("unsupported file format")
