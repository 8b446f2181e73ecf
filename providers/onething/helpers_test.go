package onething

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/petal-labs/onething/core"
)

// recordingClock never sleeps; it records requested delays.
type recordingClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

func newRecordingClock() *recordingClock {
	return &recordingClock{now: time.Unix(1700000000, 0)}
}

func (c *recordingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *recordingClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *recordingClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// newTestClient starts server with handler and returns a client pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *recordingClock) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	clock := newRecordingClock()
	all := append([]Option{WithBaseURL(server.URL), WithClock(clock)}, opts...)
	c, err := New("test-key", all...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, clock
}

// writeEnvelope writes a success envelope around data.
func writeEnvelope(t *testing.T, w http.ResponseWriter, requestID string, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"code":       0,
		"request_id": requestID,
		"message":    "success",
		"data":       data,
	}); err != nil {
		t.Errorf("encode envelope: %v", err)
	}
}

func jobData(id string, status core.Status, progress float64) map[string]any {
	data := map[string]any{
		"job_id":   id,
		"status":   string(status),
		"progress": progress,
		"created":  1700000000,
	}
	switch status {
	case core.StatusSuccess:
		data["result"] = map[string]any{"data": []map[string]any{
			{"index": 0, "url": "https://cdn.example/" + id + "-0.png"},
			{"index": 1, "url": "https://cdn.example/" + id + "-1.png"},
		}}
	case core.StatusFailed:
		data["error"] = map[string]any{"code": "content_policy", "message": "prompt rejected"}
	}
	return data
}

// testTelemetryHook records events for verification.
type testTelemetryHook struct {
	mu     sync.Mutex
	starts []core.RequestStartEvent
	ends   []core.RequestEndEvent
}

func (h *testTelemetryHook) OnRequestStart(e core.RequestStartEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts = append(h.starts, e)
}

func (h *testTelemetryHook) OnRequestEnd(e core.RequestEndEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends = append(h.ends, e)
}
