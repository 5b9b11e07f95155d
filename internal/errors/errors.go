// Package errors provides standardized domain errors with codes for the Tangle API.
//
// Usage:
//
//	// In services - return typed errors
//	if nameTaken {
//	    return errors.DuplicateName("tag name already in use")
//	}
//
//	// In handlers - check with errors.Is
//	if errors.Is(err, errors.ErrDuplicateName) {
//	    response conflict
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeDuplicateName:
//	        ...
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeDuplicateName       Code = "DUPLICATE_NAME"
	CodeInvalidParent       Code = "INVALID_PARENT"
	CodeSelfParent          Code = "SELF_PARENT"
	CodeCircularReference   Code = "CIRCULAR_REFERENCE"
	CodeInternalConsistency Code = "INTERNAL_CONSISTENCY"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeValidation          Code = "VALIDATION"
	CodeConflict            Code = "CONFLICT"
	CodeInternal            Code = "INTERNAL"
	CodeInvalidCredentials  Code = "INVALID_CREDENTIALS"
	CodeTokenExpired        Code = "TOKEN_EXPIRED"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateName, CodeCircularReference, CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized, CodeInvalidCredentials, CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation, CodeInvalidParent, CodeSelfParent:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrDuplicateName       = &Error{Code: CodeDuplicateName, Message: "duplicate name"}
	ErrInvalidParent       = &Error{Code: CodeInvalidParent, Message: "invalid parent"}
	ErrSelfParent          = &Error{Code: CodeSelfParent, Message: "tag cannot be its own parent"}
	ErrCircularReference   = &Error{Code: CodeCircularReference, Message: "circular reference"}
	ErrInternalConsistency = &Error{Code: CodeInternalConsistency, Message: "internal consistency violation"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden           = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal            = &Error{Code: CodeInternal, Message: "internal error"}
	ErrInvalidCredentials  = &Error{Code: CodeInvalidCredentials, Message: "invalid credentials"}
	ErrTokenExpired        = &Error{Code: CodeTokenExpired, Message: "token expired"}
)

// Constructor functions for creating errors with custom messages.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// DuplicateName creates a duplicate name error.
func DuplicateName(msg string) *Error {
	return &Error{Code: CodeDuplicateName, Message: msg}
}

// DuplicateNamef creates a duplicate name error with formatted message.
func DuplicateNamef(format string, args ...any) *Error {
	return &Error{Code: CodeDuplicateName, Message: fmt.Sprintf(format, args...)}
}

// InvalidParent creates an invalid parent error.
func InvalidParent(msg string) *Error {
	return &Error{Code: CodeInvalidParent, Message: msg}
}

// SelfParent creates a self parent error.
func SelfParent(msg string) *Error {
	return &Error{Code: CodeSelfParent, Message: msg}
}

// CircularReference creates a circular reference error.
func CircularReference(msg string) *Error {
	return &Error{Code: CodeCircularReference, Message: msg}
}

// InternalConsistency creates an internal consistency error.
// Indicates prior data corruption; callers fail fast rather than repair.
func InternalConsistency(msg string) *Error {
	return &Error{Code: CodeInternalConsistency, Message: msg}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// InvalidCredentials creates an invalid credentials error.
func InvalidCredentials(msg string) *Error {
	return &Error{Code: CodeInvalidCredentials, Message: msg}
}

// TokenExpired creates a token expired error.
func TokenExpired(msg string) *Error {
	return &Error{Code: CodeTokenExpired, Message: msg}
}

// Wrap wraps an error with a domain error code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}
