package onething

import (
	"errors"

	"github.com/petal-labs/onething/providers/internal/normalize"
)

// errMissingJob is returned when a job envelope has no recognizable job.
var errMissingJob = errors.New("response carries no job")

// normalizeError converts an HTTP error response to a *core.APIError with the
// appropriate sentinel.
func normalizeError(status int, body []byte, requestID string) error {
	return normalize.APIError(status, body, requestID)
}

// newNetworkError creates an error for failures where no response arrived.
func newNetworkError(err error) error {
	return normalize.NetworkError(err)
}

// newDecodeError creates an error for JSON decode failures.
func newDecodeError(err error, requestID string) error {
	return normalize.DecodeError(err, requestID)
}
