// Package errs defines the closed set of error kinds the substrate
// returns to callers. Kinds are opaque names; callers branch on Kind,
// not on message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the nine error kinds fixed by the external contract.
type Kind string

const (
	NotFound            Kind = "NotFound"
	Ambiguous           Kind = "Ambiguous"
	Conflict            Kind = "Conflict"
	InvalidInput        Kind = "InvalidInput"
	BackendTimeout      Kind = "BackendTimeout"
	BackendUnavailable  Kind = "BackendUnavailable"
	Overloaded          Kind = "Overloaded"
	UnsupportedLanguage Kind = "UnsupportedLanguage"
	Internal            Kind = "Internal"
)

// Error wraps a Kind, a human-readable message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) is an *Error of the
// given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind from err, defaulting to Internal for
// unrecognized errors so callers always have something to branch on.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
