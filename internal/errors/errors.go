// Package errors defines the typed failures surfaced by the custody protocol.
// Every taxonomy error is recoverable and user-facing; anything else is a fault.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable failure class.
type Kind string

const (
	KindInvalidState Kind = "INVALID_STATE"
	KindNotFound     Kind = "NOT_FOUND"
	KindExpired      Kind = "EXPIRED"
	KindInvalidCode  Kind = "INVALID_CODE"
	KindLocked       Kind = "LOCKED"
	KindConflict     Kind = "CONFLICT"
	KindValidation   Kind = "VALIDATION_ERROR"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindBusy         Kind = "BUSY"
)

// Sentinels for errors.Is; an *Error matches the sentinel of its Kind.
var (
	ErrInvalidState = &Error{Kind: KindInvalidState, Message: "operation not allowed in current state"}
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	ErrExpired      = &Error{Kind: KindExpired, Message: "challenge expired"}
	ErrInvalidCode  = &Error{Kind: KindInvalidCode, Message: "invalid code"}
	ErrLocked       = &Error{Kind: KindLocked, Message: "channel locked", Locked: true}
	ErrConflict     = &Error{Kind: KindConflict, Message: "conflict"}
	ErrValidation   = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrBusy         = &Error{Kind: KindBusy, Message: "resource busy, try again"}
)

// Error is a taxonomy failure. RemainingAttempts and Locked carry the workflow
// detail the caller needs after an OTP verification failure.
type Error struct {
	Kind              Kind
	Message           string
	RemainingAttempts *int
	Locked            bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an *Error of kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidState returns a KindInvalidState error.
func InvalidState(format string, args ...any) *Error {
	return New(KindInvalidState, format, args...)
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Validation returns a KindValidation error.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Unauthorized returns a KindUnauthorized error.
func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

// InvalidCode returns a KindInvalidCode error reporting the attempts left.
func InvalidCode(remaining int) *Error {
	return &Error{
		Kind:              KindInvalidCode,
		Message:           fmt.Sprintf("invalid code, %d attempt(s) remaining", remaining),
		RemainingAttempts: &remaining,
	}
}

// Locked returns a KindLocked error with zero attempts remaining.
func Locked(message string) *Error {
	zero := 0
	return &Error{Kind: KindLocked, Message: message, RemainingAttempts: &zero, Locked: true}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// IsTaxonomy reports whether err is a user-facing taxonomy failure.
func IsTaxonomy(err error) bool {
	_, ok := As(err)
	return ok
}
