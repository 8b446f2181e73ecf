package core

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy determines retry behavior for failed requests.
type RetryPolicy interface {
	// NextDelay returns the delay before the next retry attempt and whether to retry.
	// If ok is false, no more retries should be attempted.
	// attempt starts at 0 for the first retry after the initial failure.
	NextDelay(attempt int, err error) (delay time.Duration, ok bool)
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts; 0 disables retries
	BaseDelay  time.Duration // Delay unit multiplied by the attempt number (default: 1s)
	MaxDelay   time.Duration // Maximum delay cap (default: 30s)
}

// DefaultRetryConfig returns the configuration used by DefaultRetryPolicy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// DefaultRetryPolicy returns a linear backoff policy with max 3 retries,
// 1s base delay and 30s max delay.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(DefaultRetryConfig())
}

// NewRetryPolicy creates a linear backoff policy with the given configuration.
func NewRetryPolicy(cfg RetryConfig) RetryPolicy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &linearBackoff{cfg: cfg}
}

type linearBackoff struct {
	cfg RetryConfig
}

func (l *linearBackoff) NextDelay(attempt int, err error) (time.Duration, bool) {
	if !IsRetryable(err) {
		return 0, false
	}
	if !ShouldRetry(attempt, StatusCode(err), l.cfg.MaxRetries) {
		return 0, false
	}
	return LinearDelay(attempt, l.cfg.BaseDelay, l.cfg.MaxDelay), true
}

// ShouldRetry is the retry decision for a failed attempt. status is 0 when
// no response was received. Only connectivity faults, 429 and 5xx are
// eligible, and only while attempt < maxRetries.
func ShouldRetry(attempt, status, maxRetries int) bool {
	if attempt >= maxRetries {
		return false
	}
	return isRetryableStatus(status)
}

// LinearDelay returns (attempt+1)*base, capped at max.
func LinearDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(attempt+1) * base
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

// IsRetryable determines if an error may succeed on replay.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation is not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Local and protocol failures never change on replay
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrDecode) || errors.Is(err, ErrStream) {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return false
	}

	var ae *APIError
	if errors.As(err, &ae) {
		return isRetryableStatus(ae.Status)
	}

	return errors.Is(err, ErrNetwork)
}

// isRetryableStatus checks if an HTTP status code indicates a retryable error.
// Zero means no response was received.
func isRetryableStatus(status int) bool {
	switch {
	case status == 0:
		return true
	case status == 429:
		return true
	case status >= 500 && status < 600:
		return true
	default:
		return false
	}
}
