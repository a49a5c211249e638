// Package errors defines the failure taxonomy shared by the validator, the
// remote client, and the dispatcher.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. The dispatcher switches over it to
// pick the text shown to the host.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindTimeout        Kind = "timeout"
	KindRateLimited    Kind = "rate_limited"
	KindUnauthorized   Kind = "unauthorized"
	KindNotFound       Kind = "not_found"
	KindRemoteService  Kind = "remote_service_error"
	KindTransport      Kind = "transport_error"
	KindUnknownCommand Kind = "unknown_command"
	KindInternal       Kind = "internal"
)

// Kinds lists every Kind in a stable order.
var Kinds = []Kind{
	KindValidation,
	KindTimeout,
	KindRateLimited,
	KindUnauthorized,
	KindNotFound,
	KindRemoteService,
	KindTransport,
	KindUnknownCommand,
	KindInternal,
}

// Error is a normalized failure with a kind, a human-readable message, and
// an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that wraps err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err. Errors outside the taxonomy are Internal;
// a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Validation is shorthand for a ValidationError with a formatted message.
func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}
