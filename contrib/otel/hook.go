// Package otel exports onething request telemetry as OpenTelemetry spans.
//
// Each HTTP attempt becomes one client span. Retries of the same logical
// request share the onething.client_request_id attribute.
package otel

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/onething/core"
)

// Attribute keys set on every span.
const (
	AttrClientRequestID = attribute.Key("onething.client_request_id")
	AttrAttempt         = attribute.Key("onething.attempt")
	AttrStream          = attribute.Key("onething.stream")
	AttrRequestID       = attribute.Key("onething.request_id")
	AttrMethod          = attribute.Key("http.request.method")
	AttrPath            = attribute.Key("url.path")
	AttrStatusCode      = attribute.Key("http.response.status_code")
)

// Hook implements core.TelemetryHook on top of a tracer.
type Hook struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

var _ core.TelemetryHook = (*Hook)(nil)

// NewHook returns a hook that records spans with tracer.
func NewHook(tracer trace.Tracer) *Hook {
	return &Hook{
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

func spanKey(clientRequestID string, attempt int) string {
	return clientRequestID + "/" + strconv.Itoa(attempt)
}

// OnRequestStart opens the span for an attempt.
func (h *Hook) OnRequestStart(e core.RequestStartEvent) {
	span := h.start(e.Method, e.Path, e.ClientRequestID, e.Attempt, e.Stream, e.Start)

	h.mu.Lock()
	h.spans[spanKey(e.ClientRequestID, e.Attempt)] = span
	h.mu.Unlock()
}

// OnRequestEnd records the outcome of an attempt and ends its span. An end
// event without a matching start gets a span of its own.
func (h *Hook) OnRequestEnd(e core.RequestEndEvent) {
	key := spanKey(e.ClientRequestID, e.Attempt)

	h.mu.Lock()
	span, ok := h.spans[key]
	delete(h.spans, key)
	h.mu.Unlock()

	if !ok {
		span = h.start(e.Method, e.Path, e.ClientRequestID, e.Attempt, e.Stream, e.Start)
	}

	if e.Status != 0 {
		span.SetAttributes(AttrStatusCode.Int(e.Status))
	}
	if e.RequestID != "" {
		span.SetAttributes(AttrRequestID.String(e.RequestID))
	}
	switch {
	case e.Err != nil:
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	case e.Status >= 400:
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(e.Status))
	default:
		span.SetStatus(codes.Ok, "")
	}
	if e.End.IsZero() {
		span.End()
		return
	}
	span.End(trace.WithTimestamp(e.End))
}

func (h *Hook) start(method, path, clientRequestID string, attempt int, stream bool, at time.Time) trace.Span {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrMethod.String(method),
			AttrPath.String(path),
			AttrClientRequestID.String(clientRequestID),
			AttrAttempt.Int(attempt),
			AttrStream.Bool(stream),
		),
	}
	if !at.IsZero() {
		opts = append(opts, trace.WithTimestamp(at))
	}
	_, span := h.tracer.Start(context.Background(), "onething "+method+" "+path, opts...)
	return span
}
