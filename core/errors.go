package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification.
var (
	ErrValidation       = errors.New("validation error")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRateLimited      = errors.New("rate limited")
	ErrAPI              = errors.New("api error")
	ErrServer           = errors.New("server error")
	ErrNetwork          = errors.New("network error")
	ErrDecode           = errors.New("decode error")
	ErrStream           = errors.New("stream error")
	ErrJobFailed        = errors.New("job failed")
	ErrTimeout          = errors.New("timeout")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// APIError represents a failed call to the service with full context.
// Status is zero when no response was received.
type APIError struct {
	Status    int
	RequestID string
	Code      string
	Message   string
	Body      string
	Err       error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status == 0 {
		return "onething: " + e.Message
	}
	if e.RequestID != "" {
		return fmt.Sprintf("onething: HTTP %d: %s (request_id=%s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("onething: HTTP %d: %s", e.Status, e.Message)
}

// Unwrap returns the classification sentinel.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrAPI for any error that carries a status code.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI && e.Status != 0
}

// RetryError is returned when every attempt of a logical request failed
// with a retryable error. It unwraps to the last observed failure.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error {
	return e.Last
}

func (e *RetryError) Is(target error) bool {
	return target == ErrRetriesExhausted || target == ErrAPI
}

// ValidationError reports a local precondition failure. It is raised
// before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// StreamError reports a malformed or failed event stream.
// Payload holds the raw data line that could not be decoded, Detail the
// error object of an error-typed event.
type StreamError struct {
	Message string
	Payload string
	Detail  any
	Err     error
}

func (e *StreamError) Error() string {
	msg := "stream error: " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func (e *StreamError) Is(target error) bool {
	return target == ErrStream
}

// JobError reports a job that reached the failed state.
type JobError struct {
	JobID  string
	Detail any
}

func (e *JobError) Error() string {
	if e.Detail == nil {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %v", e.JobID, e.Detail)
}

func (e *JobError) Is(target error) bool {
	return target == ErrJobFailed
}

// TimeoutError reports that a polling bound was exceeded.
// Bound is "attempts" or "time".
type TimeoutError struct {
	JobID    string
	Bound    string
	Attempts int
	Limit    string
}

func (e *TimeoutError) Error() string {
	if e.Bound == "attempts" {
		return fmt.Sprintf("job %s: max polling attempts (%s) exceeded", e.JobID, e.Limit)
	}
	return fmt.Sprintf("job %s: polling timeout (%s) exceeded after %d attempts", e.JobID, e.Limit, e.Attempts)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// RequestIDOf returns the server correlation id carried by err, if any.
func RequestIDOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.RequestID
	}
	return ""
}
