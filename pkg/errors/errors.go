// Package errors defines the coded error type shared by services and the
// HTTP layer. A Code decides the response status and how much of the error
// a client is allowed to see.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is rendered to clients.
type Metadata struct {
	Status    int
	Retryable bool
	// Fallback replaces the error message unless ExposeMessage is set.
	Fallback      string
	ExposeMessage bool
	ExposeDetails bool
}

func clientError(status int, fallback string) Metadata {
	return Metadata{Status: status, Fallback: fallback, ExposeMessage: true}
}

var registry = map[Code]Metadata{
	CodeValidation:   withDetails(clientError(http.StatusBadRequest, "validation failed")),
	CodeUnauthorized: clientError(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:    clientError(http.StatusForbidden, "access denied"),
	CodeNotFound:     clientError(http.StatusNotFound, "resource not found"),
	CodeConflict:     clientError(http.StatusConflict, "conflict detected"),
	CodeIdempotency:  withDetails(clientError(http.StatusConflict, "idempotency key reused")),
	// quota denials carry the exhausted dimension
	CodeRateLimit: withDetails(clientError(http.StatusTooManyRequests, "usage limit reached")),
	CodeInternal: {
		Status:    http.StatusInternalServerError,
		Retryable: true,
		Fallback:  "internal server error",
	},
	CodeDependency: {
		Status:        http.StatusServiceUnavailable,
		Retryable:     true,
		Fallback:      "dependency unavailable",
		ExposeDetails: true,
	},
}

func withDetails(m Metadata) Metadata {
	m.ExposeDetails = true
	return m
}

// MetadataFor returns the rendering rules for code. Unknown codes are
// treated as internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := registry[code]; ok {
		return meta
	}
	return registry[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// PublicMessage is the message a client may see for this error.
func (e *Error) PublicMessage() string {
	meta := MetadataFor(e.Code())
	if meta.ExposeMessage && e.Message() != "" {
		return e.Message()
	}
	return meta.Fallback
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return string(e.code) + ": " + e.message
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost coded error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
