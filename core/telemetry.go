package core

import "time"

// TelemetryHook receives notifications about every HTTP attempt made against
// the service. Implementations can use this for logging, metrics, tracing, etc.
//
// Events never include the API key, request bodies or response bodies; only
// operational metadata (path, attempt, status, timing, correlation ids).
// New fields must keep that property.
type TelemetryHook interface {
	// OnRequestStart is called before an attempt is sent.
	OnRequestStart(e RequestStartEvent)

	// OnRequestEnd is called when an attempt completes or fails.
	OnRequestEnd(e RequestEndEvent)
}

// RequestStartEvent contains metadata about a starting attempt.
type RequestStartEvent struct {
	Method          string    // HTTP method
	Path            string    // Path relative to the base URL
	ClientRequestID string    // Stable across the retries of one logical request
	Attempt         int       // 0 for the first attempt
	Stream          bool      // Whether this is a streaming handshake
	Start           time.Time // When the attempt started
}

// RequestEndEvent contains metadata about a finished attempt.
type RequestEndEvent struct {
	Method          string
	Path            string
	ClientRequestID string
	Attempt         int
	Stream          bool
	Status          int       // 0 when no response was received
	RequestID       string    // Server X-Request-Id, if any
	Start           time.Time // When the attempt started
	End             time.Time // When the attempt completed
	Err             error     // Error if the attempt failed, nil on success
}

// Duration returns the elapsed time for the attempt.
func (e RequestEndEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// NoopTelemetryHook is a no-op implementation of TelemetryHook.
type NoopTelemetryHook struct{}

// OnRequestStart does nothing.
func (NoopTelemetryHook) OnRequestStart(RequestStartEvent) {}

// OnRequestEnd does nothing.
func (NoopTelemetryHook) OnRequestEnd(RequestEndEvent) {}

// Compile-time check that NoopTelemetryHook implements TelemetryHook.
var _ TelemetryHook = NoopTelemetryHook{}
