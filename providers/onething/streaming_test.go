package onething

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petal-labs/onething/core"
)

func sseHandler(t *testing.T, lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q, want text/event-stream", got)
		}
		if got := r.Header.Get("Cache-Control"); got != "no-cache" {
			t.Errorf("Cache-Control = %q, want no-cache", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Request-Id", "req-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func TestStreamImage(t *testing.T) {
	var body map[string]any
	handler := sseHandler(t,
		": keep-alive",
		`data: {"type":"progress"}`,
		"",
		`data: {"type":"partial_result","data":{"index":0,"url":"https://cdn.example/p.png"}}`,
		"",
		`data: {"type":"done"}`,
		"data: [DONE]",
	)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		handler(w, r)
	})

	reader, err := c.StreamImage(context.Background(), &ImageRequest{Model: "flux-dev", Prompt: "fox"})
	if err != nil {
		t.Fatalf("StreamImage() error = %v", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[1].Type != core.EventPartialResult || events[1].Data.URL != "https://cdn.example/p.png" {
		t.Errorf("partial event = %+v", events[1])
	}
	if !events[2].IsDone() {
		t.Error("last event should be done")
	}

	if body["stream"] != true || body["sync_mode"] != "sync" {
		t.Errorf("request body = %v, want stream=true sync_mode=sync", body)
	}
}

func TestStreamMalformedPayloadStops(t *testing.T) {
	c, _ := newTestClient(t, sseHandler(t,
		`data: {"type":"progress"}`,
		"data: {not json}",
		`data: {"type":"done"}`,
	))

	reader, err := c.StreamImage(context.Background(), &ImageRequest{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("StreamImage() error = %v", err)
	}

	if _, err := reader.Next(); err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	_, err = reader.Next()
	var se *core.StreamError
	if !errors.As(err, &se) {
		t.Fatalf("second Next() error = %v, want *core.StreamError", err)
	}
	if se.Payload != "{not json}" {
		t.Errorf("Payload = %q, want {not json}", se.Payload)
	}
	if _, err := reader.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after failure = %v, want io.EOF", err)
	}
}

func TestStreamHandshakeErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	c, clock := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("X-Request-Id", "req-503")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	})

	_, err := c.StreamImage(context.Background(), &ImageRequest{Model: "m", Prompt: "p"})
	if hits.Load() != 1 {
		t.Errorf("attempts = %d, want 1", hits.Load())
	}
	if len(clock.Delays()) != 0 {
		t.Errorf("delays = %v, want none", clock.Delays())
	}
	if !errors.Is(err, core.ErrServer) {
		t.Errorf("error = %v, want ErrServer", err)
	}
	if core.RequestIDOf(err) != "req-503" {
		t.Errorf("RequestIDOf() = %q, want req-503", core.RequestIDOf(err))
	}
}

func TestStreamOutlivesTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < 6; i++ {
			fmt.Fprintf(w, "data: {\"type\":\"progress\",\"progress\":%d}\n\n", i*10)
			flusher.Flush()
			time.Sleep(50 * time.Millisecond)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, WithTimeout(100*time.Millisecond))

	reader, err := c.StreamImage(context.Background(), &ImageRequest{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("StreamImage() error = %v", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(events) < 6 {
		t.Errorf("events = %d, want at least 6", len(events))
	}
}

func TestStreamHandshakeTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, WithTimeout(50*time.Millisecond))

	_, err := c.StreamImage(context.Background(), &ImageRequest{Model: "m", Prompt: "p"})
	if !errors.Is(err, core.ErrNetwork) {
		t.Errorf("error = %v, want ErrNetwork", err)
	}
}

func TestLineStreamLines(t *testing.T) {
	c, _ := newTestClient(t, sseHandler(t, "a", "", "b"))

	stream, err := c.StreamRequest(context.Background(), http.MethodPost, "/generation", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("StreamRequest() error = %v", err)
	}
	defer stream.Close()

	if stream.RequestID() != "req-stream" {
		t.Errorf("RequestID() = %q, want req-stream", stream.RequestID())
	}
	if stream.StatusCode() != http.StatusOK {
		t.Errorf("StatusCode() = %d, want 200", stream.StatusCode())
	}

	var got []string
	for line, err := range stream.Lines() {
		if err != nil {
			t.Fatalf("Lines() error = %v", err)
		}
		got = append(got, line)
	}
	if strings.Join(got, "|") != "a||b" {
		t.Errorf("lines = %q, want [a  b]", got)
	}

	if err := stream.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	stream.Close()
}

func TestStreamText(t *testing.T) {
	var body map[string]any
	handler := sseHandler(t,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		"",
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		"",
		"data: [DONE]",
	)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		handler(w, r)
	})

	reader, err := c.StreamText(context.Background(), &TextRequest{
		Model:    "qwen",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamText() error = %v", err)
	}
	defer reader.Close()

	var chunks int
	for {
		_, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		chunks++
	}
	if chunks != 2 {
		t.Errorf("chunks = %d, want 2", chunks)
	}
	if body["job_type"] != "chat/completions" || body["stream"] != true {
		t.Errorf("request body = %v", body)
	}
}
