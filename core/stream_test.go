package core

import (
	"errors"
	"io"
	"testing"
)

// sliceSource is a LineSource over fixed lines.
type sliceSource struct {
	lines  []string
	pos    int
	err    error
	closed int
}

func (s *sliceSource) NextLine() (string, error) {
	if s.pos >= len(s.lines) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	line := s.lines[s.pos]
	s.pos++
	return line, nil
}

func (s *sliceSource) Close() error {
	s.closed++
	return nil
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line        string
		wantPayload string
		wantKind    LineKind
	}{
		{"", "", LineSkip},
		{"   ", "", LineSkip},
		{": keep-alive", "", LineSkip},
		{"event: progress", "", LineSkip},
		{"data: [DONE]", "", LineDone},
		{"  data: [DONE]  ", "", LineDone},
		{`data: {"type":"progress"}`, `{"type":"progress"}`, LineData},
		{"data: {not json}", "{not json}", LineData},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			payload, kind := ParseLine(tt.line)
			if kind != tt.wantKind {
				t.Errorf("ParseLine(%q) kind = %v, want %v", tt.line, kind, tt.wantKind)
			}
			if payload != tt.wantPayload {
				t.Errorf("ParseLine(%q) payload = %q, want %q", tt.line, payload, tt.wantPayload)
			}
		})
	}
}

func TestEventReaderSkipsKeepAliveAndStopsAtDone(t *testing.T) {
	src := &sliceSource{lines: []string{
		": keep-alive",
		`data: {"type":"progress"}`,
		"",
		"data: [DONE]",
		`data: {"type":"progress"}`,
	}}
	r := NewEventReader[ImageResult](src)

	events, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Type != EventProgress {
		t.Errorf("Type = %q, want progress", events[0].Type)
	}
	if src.pos != 4 {
		t.Errorf("lines consumed = %d, want 4 (nothing after [DONE])", src.pos)
	}
	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
}

func TestEventReaderMalformedPayload(t *testing.T) {
	src := &sliceSource{lines: []string{"data: {not json}"}}
	r := NewEventReader[ImageResult](src)

	_, err := r.Next()
	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("Next() error = %v, want *StreamError", err)
	}
	if se.Payload != "{not json}" {
		t.Errorf("Payload = %q, want {not json}", se.Payload)
	}
	if src.closed != 1 {
		t.Error("source should be closed after a decode error")
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after failure = %v, want io.EOF", err)
	}
}

func TestEventReaderNonObjectPayload(t *testing.T) {
	for _, payload := range []string{"null", "42", `"text"`, "[1,2]"} {
		t.Run(payload, func(t *testing.T) {
			r := NewEventReader[ImageResult](&sliceSource{lines: []string{"data: " + payload}})
			_, err := r.Next()
			if !errors.Is(err, ErrStream) {
				t.Errorf("Next() error = %v, want ErrStream", err)
			}
		})
	}
}

func TestEventReaderDefaultsToProgress(t *testing.T) {
	r := NewEventReader[ImageResult](&sliceSource{lines: []string{`data: {"progress":0.3}`}})
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ev.Type != EventProgress {
		t.Errorf("Type = %q, want progress", ev.Type)
	}
}

func TestEventReaderUnknownType(t *testing.T) {
	r := NewEventReader[ImageResult](&sliceSource{lines: []string{`data: {"type":"heartbeat"}`}})
	_, err := r.Next()
	if !errors.Is(err, ErrStream) {
		t.Errorf("Next() error = %v, want ErrStream", err)
	}
}

func TestEventReaderPartialResult(t *testing.T) {
	src := &sliceSource{lines: []string{
		`data: {"type":"partial_result","data":{"index":0,"url":"https://cdn.example/a.png"}}`,
		`data: {"type":"done"}`,
	}}
	r := NewEventReader[ImageResult](src)

	var events []*StreamEvent[ImageResult]
	for ev, err := range r.All() {
		if err != nil {
			t.Fatalf("All() error = %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Data == nil || events[0].Data.URL != "https://cdn.example/a.png" {
		t.Errorf("partial data = %+v", events[0].Data)
	}
	if !events[1].IsDone() {
		t.Error("second event should be done")
	}
	if events[1].Data != nil {
		t.Error("done event should carry no data")
	}
}

func TestEventReaderPropagatesSourceError(t *testing.T) {
	boom := errors.New("connection reset")
	src := &sliceSource{lines: []string{`data: {"type":"progress"}`}, err: boom}
	r := NewEventReader[VideoResult](src)

	if _, err := r.Next(); err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, boom) {
		t.Errorf("second Next() error = %v, want %v", err, boom)
	}
	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
}

func TestEventReaderCloseIdempotent(t *testing.T) {
	src := &sliceSource{}
	r := NewEventReader[ImageResult](src)
	r.Close()
	r.Close()
	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
}

func TestConsumeErrorEvent(t *testing.T) {
	src := &sliceSource{lines: []string{
		`data: {"type":"progress"}`,
		`data: {"type":"error","error":{"code":"content_filter","message":"blocked"}}`,
		`data: {"type":"done"}`,
	}}

	var seen int
	err := Consume(NewEventReader[ImageResult](src), func(ev *StreamEvent[ImageResult]) error {
		seen++
		return nil
	})

	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("Consume() error = %v, want *StreamError", err)
	}
	detail, ok := se.Detail.(map[string]any)
	if !ok || detail["code"] != "content_filter" {
		t.Errorf("Detail = %v", se.Detail)
	}
	if seen != 2 {
		t.Errorf("callback invoked %d times, want 2", seen)
	}
}

func TestConsumeCallbackError(t *testing.T) {
	stop := errors.New("stop")
	src := &sliceSource{lines: []string{`data: {"type":"progress"}`, `data: {"type":"progress"}`}}

	err := Consume(NewEventReader[ImageResult](src), func(*StreamEvent[ImageResult]) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("Consume() error = %v, want %v", err, stop)
	}
	if src.closed != 1 {
		t.Error("source should be closed")
	}
}

func TestTextReader(t *testing.T) {
	src := &sliceSource{lines: []string{
		": ping",
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		"",
		`data: {"choices":`,
		`data: [{"delta":{"content":"lo"}}]}`,
		"",
		"data: [DONE]",
	}}
	r := NewTextReader(src)

	first, err := r.Next()
	if err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	if _, ok := first["choices"]; !ok {
		t.Errorf("first chunk = %v, want choices", first)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("second Next() error = %v", err)
	}
	if _, ok := second["choices"]; !ok {
		t.Errorf("second chunk = %v, want choices", second)
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("third Next() = %v, want io.EOF", err)
	}
	if src.closed != 1 {
		t.Errorf("source closed %d times, want 1", src.closed)
	}
}

func TestTextReaderFlushesAtEOF(t *testing.T) {
	r := NewTextReader(&sliceSource{lines: []string{`data: {"text":"tail"}`}})

	chunk, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if chunk["text"] != "tail" {
		t.Errorf("chunk = %v", chunk)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() = %v, want io.EOF", err)
	}
}

func TestTextReaderMalformed(t *testing.T) {
	r := NewTextReader(&sliceSource{lines: []string{"data: oops", ""}})
	_, err := r.Next()
	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("Next() error = %v, want *StreamError", err)
	}
	if se.Payload != "oops" {
		t.Errorf("Payload = %q, want oops", se.Payload)
	}
}
