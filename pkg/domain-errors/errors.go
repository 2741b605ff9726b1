// Package domainerrors provides code-tagged errors for expected failure modes.
//
// Services return these instead of panicking or leaking infrastructure errors:
// a failure carries a closed-set Code plus a human-readable message, and callers
// branch with HasCode. Transport layers translate codes to HTTP statuses in one
// place (internal/transport/http/shared).
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an expected failure.
type Code string

const (
	// CodeValidation marks malformed or rejected input (bad tenant code,
	// unparseable serial code, invalid GUID).
	CodeValidation Code = "validation_error"

	// CodeNotFound marks a lookup miss for a code, reservation, or entity.
	CodeNotFound Code = "not_found"

	// CodeInvalidOperation marks an operation illegal in the current state:
	// confirming a non-reserved reservation, voiding an already-void code,
	// exceeding the version cap.
	CodeInvalidOperation Code = "invalid_operation"

	// CodeConflict marks a uniqueness or concurrency conflict surfaced by a store.
	CodeConflict Code = "conflict"

	// CodeInvariantViolation marks a broken model invariant detected at
	// construction or mutation time. Services usually rewrap it as CodeValidation
	// before it reaches a client.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeUnauthorized marks a missing or failed authentication.
	CodeUnauthorized Code = "unauthorized"

	// CodeRateLimited marks a request rejected because the caller exhausted
	// its request window.
	CodeRateLimited Code = "rate_limited"

	// CodeInternal marks unexpected infrastructure failures. The message is safe
	// to show; the wrapped cause is not.
	CodeInternal Code = "internal_error"
)

// Error is a code-tagged domain error.
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

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. If the cause already
// carries a domain code, that code is preserved and only context is added.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return &Error{Code: de.Code, Message: message, cause: err}
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// CodeOf extracts the domain code from err, or CodeInternal if it carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the client-safe message from err. Non-domain errors map to
// a generic message so internals never leak.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
