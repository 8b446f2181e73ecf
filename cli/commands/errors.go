package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/petal-labs/onething/core"
)

// Exit codes
const (
	ExitSuccess    = 0
	ExitValidation = 1
	ExitProvider   = 2
	ExitNetwork    = 3
	ExitJob        = 4
	ExitTimeout    = 5
)

// exitError wraps an error with an exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func (e *exitError) ExitCode() int {
	return e.code
}

func exitWithCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func validationf(format string, args ...any) error {
	return exitWithCode(ExitValidation, fmt.Errorf(format, args...))
}

// exitCodeFor maps an SDK error to a process exit code.
func exitCodeFor(err error) int {
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, core.ErrValidation):
		return ExitValidation
	case errors.Is(err, core.ErrJobFailed):
		return ExitJob
	case errors.Is(err, core.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.Is(err, core.ErrNetwork):
		return ExitNetwork
	default:
		return ExitProvider
	}
}

// errorType names the error class in JSON output.
func errorType(err error) string {
	switch {
	case errors.Is(err, core.ErrValidation):
		return "validation_error"
	case errors.Is(err, core.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, core.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, core.ErrJobFailed):
		return "job_failed"
	case errors.Is(err, core.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, core.ErrNetwork):
		return "network_error"
	case errors.Is(err, core.ErrStream):
		return "stream_error"
	case errors.Is(err, core.ErrDecode):
		return "decode_error"
	case errors.Is(err, core.ErrServer):
		return "server_error"
	default:
		return "api_error"
	}
}

// handleError reports err on stderr and returns it wrapped with its exit code.
func (a *App) handleError(err error) error {
	if err == nil {
		return nil
	}
	code := exitCodeFor(err)
	requestID := core.RequestIDOf(err)

	if a.jsonOutput {
		body := map[string]any{
			"type":    errorType(err),
			"message": err.Error(),
		}
		if requestID != "" {
			body["request_id"] = requestID
		}
		if status := core.StatusCode(err); status != 0 {
			body["status"] = status
		}
		var je *core.JobError
		if errors.As(err, &je) {
			body["job_id"] = je.JobID
			body["detail"] = je.Detail
		}
		_ = writeJSON(a.stderr, map[string]any{"error": body})
	} else {
		p := a.palette(a.stderr)
		fmt.Fprintf(a.stderr, "%s %v\n", p.err.Sprint("Error:"), err)
		if requestID != "" {
			fmt.Fprintf(a.stderr, "  request id: %s\n", requestID)
		}
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee
	}
	return exitWithCode(code, err)
}
