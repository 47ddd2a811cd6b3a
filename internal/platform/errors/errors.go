// Package errors provides typed service errors with stable machine-readable
// codes. Transport layers map codes to status codes; the workflow core maps
// them to its failure taxonomy.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies the class of a service error.
type Code string

const (
	// ErrCodeUnauthorized: the actor lacks rights for the action on this
	// entity/state.
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	// ErrCodeInvalidState: the action is not legal from the current status,
	// including replays of already-completed actions.
	ErrCodeInvalidState Code = "INVALID_STATE"
	// ErrCodeInvalidInput: missing or malformed payload (reason, chain, ids).
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	// ErrCodeCorruptChain: a chain invariant was violated in stored data.
	ErrCodeCorruptChain Code = "CORRUPT_CHAIN"
	// ErrCodeConflict: concurrent modification or lock timeout; retryable.
	ErrCodeConflict Code = "CONFLICT"
	// ErrCodeUnavailable: transient persistence failure; retryable once.
	ErrCodeUnavailable Code = "UNAVAILABLE"
	// ErrCodeNotFound: the referenced resource does not exist.
	ErrCodeNotFound Code = "NOT_FOUND"
	// ErrCodeInternal: non-transient persistence or programming failure.
	ErrCodeInternal Code = "INTERNAL"
)

// Error is a service error with a code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with the given code and a formatted message.
func Newf(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil when err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound creates a NOT_FOUND error for a resource/id pair.
func NotFound(resource, id string) error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput creates an INVALID_INPUT error for a named field.
func InvalidInput(field, message string) error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, message)}
}

// CodeOf extracts the code from err, walking the wrap chain. Unclassified
// errors report ErrCodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// MessageOf returns the human-readable message of err without the code prefix.
func MessageOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsRetryable reports whether the error class may succeed on retry.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeConflict, ErrCodeUnavailable:
		return true
	}
	return false
}
