// Package errors provides structured application errors for the HAL orchestrator.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates a malformed request, unknown
	// provider/device, or out-of-range shots. Admission fails synchronously
	// with this code and persists nothing.
	ErrCodeInvalidRequest ErrorCode = "invalid_request"
	// ErrCodeNotFound indicates an unknown job id.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates an operation on a job in an incompatible
	// state, e.g. cancelling a terminal job.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeUnavailable indicates a provider outage or admission backpressure.
	ErrCodeUnavailable ErrorCode = "unavailable"
	// ErrCodeTransient indicates a retryable failure that left no state change.
	ErrCodeTransient ErrorCode = "transient"
	// ErrCodeSandbox indicates source-code execution was rejected by the sandbox.
	ErrCodeSandbox ErrorCode = "sandbox"
	// ErrCodeInternal indicates a persistent unexpected failure.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured application error with a code, message, and
// optional cause. It supports errors.Is and errors.As through Unwrap.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific request field that caused the error (optional)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// InvalidRequest creates a new InvalidRequest error.
func InvalidRequest(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidRequest, Message: message}
}

// InvalidRequestf creates a new InvalidRequest error with formatted message.
func InvalidRequestf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// InvalidRequestField creates a new InvalidRequest error for a specific field.
func InvalidRequestField(field, message string) *AppError {
	return &AppError{Code: ErrCodeInvalidRequest, Message: message, Field: field}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Unavailable creates a new Unavailable error.
func Unavailable(message string) *AppError {
	return &AppError{Code: ErrCodeUnavailable, Message: message}
}

// Unavailablef creates a new Unavailable error with formatted message.
func Unavailablef(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

// Transient creates a new Transient error.
func Transient(message string) *AppError {
	return &AppError{Code: ErrCodeTransient, Message: message}
}

// Transientf creates a new Transient error with formatted message.
func Transientf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeTransient, Message: fmt.Sprintf(format, args...)}
}

// TransientWrap wraps an underlying error as Transient.
func TransientWrap(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeTransient, Message: message, Cause: cause}
}

// Sandbox creates a new Sandbox error.
func Sandbox(message string) *AppError {
	return &AppError{Code: ErrCodeSandbox, Message: message}
}

// Sandboxf creates a new Sandbox error with formatted message.
func Sandboxf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeSandbox, Message: fmt.Sprintf(format, args...)}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// InternalWrap wraps an underlying error as Internal.
func InternalWrap(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Cause: cause}
}

// CodeOf extracts the ErrorCode from err, walking the wrap chain. Errors that
// are not AppErrors report ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsTransient reports whether err should leave job state unchanged.
func IsTransient(err error) bool {
	return HasCode(err, ErrCodeTransient) || HasCode(err, ErrCodeUnavailable)
}
