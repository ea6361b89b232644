package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures raised while ingesting bars and signals.
type ErrorKind string

const (
	// DataUnavailable: the price source returned an empty or malformed payload.
	DataUnavailable ErrorKind = "data_unavailable"
	// ValidationFailure: a fetched bar failed OHLC sanity checks.
	ValidationFailure ErrorKind = "validation_failure"
	// DuplicateSkip: the bar or signal already exists. Not a failure.
	DuplicateSkip ErrorKind = "duplicate_skip"
	// PersistenceFailure: the store rejected a write or read.
	PersistenceFailure ErrorKind = "persistence_failure"
	// InsufficientHistory: not enough bars to compute indicators.
	InsufficientHistory ErrorKind = "insufficient_history"
)

var errMissingSymbol = errors.New("missing symbol")

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewErrorf is NewError with a formatted message.
func NewErrorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain,
// or "" when err is unclassified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
