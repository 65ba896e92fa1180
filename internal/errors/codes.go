package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for reminder operations.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNoBackend indicates no recognition backend is registered for a locale.
	ErrCodeNoBackend ErrorCode = "NO_BACKEND"
	// ErrCodeStoreUnavailable indicates a reminder store read or write failure.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// ErrCodeDeliveryFailed indicates notification delivery exhausted its retries.
	ErrCodeDeliveryFailed ErrorCode = "DELIVERY_FAILED"
	// ErrCodeBadRecord indicates a stored record that cannot be interpreted
	// (unparseable due date or unknown timezone id).
	ErrCodeBadRecord ErrorCode = "BAD_RECORD"
)

// CoreError represents a structured error for reminder operations.
type CoreError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *CoreError) WithContext(key string, value interface{}) *CoreError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *CoreError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// NoBackend creates a no-backend error for the given locale.
func NoBackend(locale string) *CoreError {
	return &CoreError{
		Code:    ErrCodeNoBackend,
		Message: fmt.Sprintf("no recognition backend for locale: %s", locale),
	}
}

// StoreUnavailable creates a store unavailable error.
func StoreUnavailable(msg string, cause error) *CoreError {
	return &CoreError{Code: ErrCodeStoreUnavailable, Message: msg, Cause: cause}
}

// DeliveryFailed creates a delivery failed error.
func DeliveryFailed(msg string, cause error) *CoreError {
	return &CoreError{Code: ErrCodeDeliveryFailed, Message: msg, Cause: cause}
}

// BadRecord creates a bad record error.
func BadRecord(msg string, cause error) *CoreError {
	return &CoreError{Code: ErrCodeBadRecord, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if coreErr, ok := err.(*CoreError); ok {
		return coreErr.Code == code
	}
	return false
}
