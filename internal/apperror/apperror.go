// Package apperror defines the error taxonomy shared by services and HTTP
// handlers. Services return *Error for every failure a client can act on and
// wrap store or cache failures as CodeInternal; handlers translate the code
// into an HTTP status.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the class of a failure.
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeTokenExpired    Code = "TOKEN_EXPIRED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeTooManyRequests Code = "TOO_MANY_REQUESTS"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// Fields maps a request field to its validation messages.
type Fields map[string][]string

// Add appends a message for field.
func (f Fields) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Error is a classified application error.
type Error struct {
	Code    Code
	Message string
	Fields  Fields
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code, so callers can
// write errors.Is(err, apperror.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HTTPStatus returns the status code a handler should respond with.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthenticated, CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrValidation      = &Error{Code: CodeValidation}
	ErrBadRequest      = &Error{Code: CodeBadRequest}
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated}
	ErrTokenExpired    = &Error{Code: CodeTokenExpired}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrConflict        = &Error{Code: CodeConflict}
	ErrTooManyRequests = &Error{Code: CodeTooManyRequests}
	ErrInternal        = &Error{Code: CodeInternal}
)

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap classifies err under code. A nil err yields nil.
func Wrap(err error, code Code, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Cause: err}
}

// Validation builds a CodeValidation error carrying per-field messages.
func Validation(fields Fields) *Error {
	return &Error{Code: CodeValidation, Message: "validation failed", Fields: fields}
}

func NotFound(msg string) *Error { return New(CodeNotFound, msg) }

func Conflict(msg string) *Error { return New(CodeConflict, msg) }

func Unauthenticated(msg string) *Error { return New(CodeUnauthenticated, msg) }

func TokenExpired() *Error {
	return New(CodeTokenExpired, "token expired, please refresh the token")
}

// Internal wraps an infrastructure failure. The message is safe to return to
// clients; the cause is meant for logs only.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", Cause: err}
}

// From returns err as *Error, classifying anything unknown as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
