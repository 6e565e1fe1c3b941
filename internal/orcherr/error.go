// Package orcherr implements the core's error taxonomy (spec.md §7): a
// sum-typed Kind plus a wrapped cause, in place of exceptions for control
// flow (spec.md §9, "Exceptions for control flow").
package orcherr

import "fmt"

// Kind is a stable error category every caller can branch on.
type Kind string

const (
	InvalidArgument   Kind = "invalid_argument"
	NotFound          Kind = "not_found"
	PermissionDenied  Kind = "permission_denied"
	PolicyDenied      Kind = "policy_denied"
	ResourceExhausted Kind = "resource_exhausted"
	PreconditionFailed Kind = "precondition_failed"
	Timeout           Kind = "timeout"
	ValidationFailed  Kind = "validation_failed"
	Fatal             Kind = "fatal"
)

// Error carries a stable kind tag, a human-readable message, and an
// optional wrapped cause.
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

// New builds an *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error with the given kind, message, and wrapped cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Fatal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return Fatal
}

// InvalidArgumentf builds an InvalidArgument error with a formatted message.
func InvalidArgumentf(format string, args ...any) *Error {
	return New(InvalidArgument, fmt.Sprintf(format, args...))
}

// NotFoundf builds a NotFound error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// PreconditionFailedf builds a PreconditionFailed error with a formatted message.
func PreconditionFailedf(format string, args ...any) *Error {
	return New(PreconditionFailed, fmt.Sprintf(format, args...))
}
