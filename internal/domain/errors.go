package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so transports can map them to status codes.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindAuthorization ErrorKind = "AUTHORIZATION"
	KindValidation    ErrorKind = "VALIDATION"
	KindConflict      ErrorKind = "CONFLICT"
	KindInternal      ErrorKind = "INTERNAL"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithDetails returns a copy of e carrying extra client-facing details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error      { return NewError(KindNotFound, message) }
func Unauthorized(message string) *Error  { return NewError(KindAuthorization, message) }
func Invalid(message string) *Error       { return NewError(KindValidation, message) }
func ConflictError(message string) *Error { return NewError(KindConflict, message) }

// IsKind reports whether err (or anything it wraps) is a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindInternal for non-domain errors.
func KindOf(err error) ErrorKind {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Kind
	}
	return KindInternal
}
