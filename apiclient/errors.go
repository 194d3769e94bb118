package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable symbolic identifier for a failure category.
type Code string

// Codes produced by the backend.
const (
	CodeConfiguration   Code = "CONFIGURATION_ERROR"
	CodeExternalService Code = "EXTERNAL_SERVICE_ERROR"
	CodeRateLimit       Code = "RATE_LIMIT_ERROR"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeAIGeneration    Code = "AI_GENERATION_ERROR"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// Codes produced by the client itself.
const (
	CodeTimeout Code = "TIMEOUT_ERROR"
	CodeNetwork Code = "NETWORK_ERROR"
	CodeUnknown Code = "UNKNOWN_ERROR"
)

// Status codes used for client-side classifications.
const (
	StatusTimeout = http.StatusRequestTimeout
	StatusNetwork = 0
)

// ErrorResponse is the structured error envelope returned by the backend
// on non-2xx responses.
type ErrorResponse struct {
	Error     bool           `json:"error"`
	ErrorCode Code           `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Error is the only error type returned by Do. Callers distinguish failure
// kinds by Code.
type Error struct {
	Message   string
	Code      Code
	Status    int
	Details   map[string]any
	RequestID string
	Err       error // underlying cause, if any

	retryable bool
}

// NewError creates an Error. Retryable is fixed here from the status and
// never recomputed.
func NewError(message string, code Code, status int, details map[string]any) *Error {
	return &Error{
		Message:   message,
		Code:      code,
		Status:    status,
		Details:   details,
		retryable: status >= 500 || status == http.StatusTooManyRequests,
	}
}

// fromResponse builds an Error from a decoded envelope.
func fromResponse(resp ErrorResponse, status int) *Error {
	code := resp.ErrorCode
	if code == "" {
		code = CodeUnknown
	}
	return NewError(resp.Message, code, status, resp.Details)
}

func wrapError(message string, code Code, status int, cause error) *Error {
	e := NewError(message, code, status, nil)
	e.Err = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the status marks the error as transient
// (5xx or 429).
func (e *Error) Retryable() bool {
	return e.retryable
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: CodeNotFound})
// works as a code check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// IsRetryable checks if err is an *Error marked retryable.
func IsRetryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// CodeOf returns the error code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsNotFound reports whether err is NOT_FOUND or any error with status 404.
// Routes that raise plain HTTP exceptions answer 404 without an envelope.
func IsNotFound(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeNotFound || apiErr.Status == http.StatusNotFound
}
