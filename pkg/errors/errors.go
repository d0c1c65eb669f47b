// Package errors defines custom error types and error handling utilities for the
// apiguard admission-control service. Errors carry a machine-readable code, an HTTP
// status for the administrative API, and optional context metadata.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable classification of an error.
type ErrorCode string

const (
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeInvalidConfig   ErrorCode = "invalid_config"
	ErrCodeNotFound        ErrorCode = "not_found"
	ErrCodeInternal        ErrorCode = "internal_error"
	ErrCodeUnavailable     ErrorCode = "service_unavailable"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// GuardError represents a structured error with additional metadata
type GuardError interface {
	error

	// Code returns the machine-readable error code
	Code() ErrorCode

	// HTTPStatus returns the HTTP status code for the admin API
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) GuardError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) GuardError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

// baseError is the internal implementation of GuardError
type baseError struct {
	code        ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.description
}

// Code returns the machine-readable error code
func (e *baseError) Code() ErrorCode {
	return e.code
}

// HTTPStatus returns the HTTP status code
func (e *baseError) HTTPStatus() int {
	return e.httpStatus
}

// Description returns the error description
func (e *baseError) Description() string {
	return e.description
}

// Unwrap returns the underlying cause error
func (e *baseError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause error to the error chain
func (e *baseError) WithCause(cause error) GuardError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *baseError) WithMetadata(key string, value interface{}) GuardError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all metadata
func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructors
// ================================================================================

// NewError creates a new GuardError with the specified parameters
func NewError(code ErrorCode, httpStatus int, description string, message string) GuardError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ErrInvalidArgument creates an invalid_argument error
func ErrInvalidArgument(message string) GuardError {
	return NewError(
		ErrCodeInvalidArgument,
		http.StatusBadRequest,
		"The request is missing a required parameter or includes an invalid parameter value.",
		message,
	)
}

// ErrInvalidConfig creates an invalid_config error
func ErrInvalidConfig(message string) GuardError {
	return NewError(
		ErrCodeInvalidConfig,
		http.StatusInternalServerError,
		"The supplied configuration is invalid.",
		message,
	)
}

// ErrNotFound creates a not_found error
func ErrNotFound(message string) GuardError {
	return NewError(
		ErrCodeNotFound,
		http.StatusNotFound,
		"The requested resource was not found.",
		message,
	)
}

// ErrInternal creates an internal_error error
func ErrInternal(message string) GuardError {
	return NewError(
		ErrCodeInternal,
		http.StatusInternalServerError,
		"The service encountered an unexpected condition.",
		message,
	)
}

// ================================================================================
// Domain-Specific Error Constructors
// ================================================================================

// ErrUnknownBlockType creates an error for an unrecognized blocklist type
func ErrUnknownBlockType(blockType string) GuardError {
	return ErrInvalidArgument(fmt.Sprintf("unknown block type: %q (want \"ip\" or \"user\")", blockType)).
		WithMetadata("block_type", blockType)
}

// ErrEmptyIdentifier creates an error for a missing blocklist identifier
func ErrEmptyIdentifier() GuardError {
	return ErrInvalidArgument("identifier must not be empty")
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// IsGuardError checks if an error is a GuardError
func IsGuardError(err error) bool {
	_, ok := err.(GuardError)
	return ok
}

// AsGuardError attempts to cast an error to GuardError
func AsGuardError(err error) (GuardError, bool) {
	guardErr, ok := err.(GuardError)
	return guardErr, ok
}

// WrapError wraps a generic error into a GuardError
func WrapError(err error, code ErrorCode, message string) GuardError {
	var httpStatus int

	switch code {
	case ErrCodeInvalidArgument, ErrCodeInvalidConfig:
		httpStatus = http.StatusBadRequest
	case ErrCodeNotFound:
		httpStatus = http.StatusNotFound
	case ErrCodeUnavailable:
		httpStatus = http.StatusServiceUnavailable
	default:
		httpStatus = http.StatusInternalServerError
	}

	return NewError(code, httpStatus, err.Error(), message).WithCause(err)
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for admin API error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts a GuardError to an ErrorResponse
func ToErrorResponse(err GuardError) *ErrorResponse {
	return &ErrorResponse{
		Error:            string(err.Code()),
		ErrorDescription: err.Description(),
		Metadata:         err.Metadata(),
	}
}

// ToGenericErrorResponse converts any error to an ErrorResponse
func ToGenericErrorResponse(err error) *ErrorResponse {
	if guardErr, ok := AsGuardError(err); ok {
		return ToErrorResponse(guardErr)
	}

	// Fallback to generic server error
	return &ErrorResponse{
		Error:            string(ErrCodeInternal),
		ErrorDescription: "An unexpected error occurred",
	}
}
