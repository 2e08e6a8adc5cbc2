// Package storeerrors defines the structured error taxonomy returned by the
// mmap-backed Arrow store. It follows the Kind/Message/Cause/Details shape
// of the teacher's pkg/nebulaerrors, but deliberately omits automatic stack
// capture: Writer.Write and Reader.Read sit on the store's hot path, and
// runtime.Callers there would tax every row batch for a debugging aid most
// callers never inspect.
package storeerrors

import (
	"errors"
	"fmt"
)

// Kind classifies the failure so callers can branch without string
// matching on Message.
type Kind string

const (
	InvalidArgument Kind = "invalid_argument"
	OutOfRange      Kind = "out_of_range"
	NotReady        Kind = "not_ready"
	SchemaMismatch  Kind = "schema_mismatch"
	WrongRowCount   Kind = "wrong_row_count"
	IO              Kind = "io"
	BadMeta         Kind = "bad_meta"
	Full            Kind = "full"
)

// Error is the concrete error type returned by this module's packages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail attaches a key/value pair of diagnostic context and returns
// the same Error for chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Is reports whether the first *Error found on err's errors.Unwrap chain
// has the given kind. Kinds of *Errors wrapped inside that one are not
// consulted.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
