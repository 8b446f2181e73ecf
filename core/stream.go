package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"strings"
)

// LineSource yields the raw lines of an event stream as the network
// delivers them. NextLine returns io.EOF when the stream ends naturally.
type LineSource interface {
	NextLine() (string, error)
	Close() error
}

// LineKind classifies one line of an SSE stream.
type LineKind int

const (
	// LineSkip is a blank line, a comment, or a field this decoder ignores.
	LineSkip LineKind = iota
	// LineData carries a payload.
	LineData
	// LineDone is the [DONE] sentinel.
	LineDone
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// ParseLine classifies a raw line and returns its payload for LineData.
func ParseLine(line string) (string, LineKind) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return "", LineSkip
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", LineSkip
	}
	payload := strings.TrimPrefix(line, dataPrefix)
	if payload == doneSentinel {
		return "", LineDone
	}
	return payload, LineData
}

type wireEvent struct {
	Type  StreamEventType `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error any             `json:"error"`
}

// DecodeEvent decodes one data payload into a typed event.
// A payload that is not a JSON object is a *StreamError carrying the payload.
func DecodeEvent[T any](payload string) (*StreamEvent[T], error) {
	if !strings.HasPrefix(strings.TrimSpace(payload), "{") {
		return nil, &StreamError{Message: "stream event is not a JSON object", Payload: payload}
	}
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, &StreamError{Message: "failed to parse stream event", Payload: payload, Err: err}
	}
	if w.Type == "" {
		w.Type = EventProgress
	}
	if !w.Type.valid() {
		return nil, &StreamError{Message: "unknown event type " + string(w.Type), Payload: payload}
	}

	ev := &StreamEvent[T]{Type: w.Type, Error: w.Error}
	if len(w.Data) > 0 && !bytes.Equal(w.Data, []byte("null")) {
		var data T
		if err := json.Unmarshal(w.Data, &data); err != nil {
			return nil, &StreamError{Message: "failed to parse event data", Payload: payload, Err: err}
		}
		ev.Data = &data
	}
	return ev, nil
}

// EventReader decodes a typed job stream one event at a time.
//
// The reader is lazy: each call to Next reads only as many lines as needed
// to produce one event. It terminates on [DONE], at the end of the source, or
// on the first error, closes the source, and cannot be restarted.
type EventReader[T any] struct {
	src    LineSource
	closed bool
}

// NewEventReader creates a reader over src.
func NewEventReader[T any](src LineSource) *EventReader[T] {
	return &EventReader[T]{src: src}
}

// Next returns the next event, or io.EOF once the stream is finished.
func (r *EventReader[T]) Next() (*StreamEvent[T], error) {
	if r.closed {
		return nil, io.EOF
	}

	for {
		line, err := r.src.NextLine()
		if err != nil {
			r.Close()
			return nil, err
		}

		payload, kind := ParseLine(line)
		switch kind {
		case LineSkip:
			continue
		case LineDone:
			r.Close()
			return nil, io.EOF
		}

		ev, err := DecodeEvent[T](payload)
		if err != nil {
			r.Close()
			return nil, err
		}
		return ev, nil
	}
}

// All returns an iterator over the remaining events. A failure is yielded
// once with a nil event and ends the sequence.
func (r *EventReader[T]) All() iter.Seq2[*StreamEvent[T], error] {
	return func(yield func(*StreamEvent[T], error) bool) {
		for {
			ev, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// ReadAll collects events until a done event or the end of the stream.
// On error the events read so far are returned with it.
func (r *EventReader[T]) ReadAll() ([]StreamEvent[T], error) {
	var events []StreamEvent[T]
	for ev, err := range r.All() {
		if err != nil {
			return events, err
		}
		events = append(events, *ev)
		if ev.IsDone() {
			r.Close()
			break
		}
	}
	return events, nil
}

// Close releases the underlying source. It is safe to call more than once.
func (r *EventReader[T]) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.Close()
}

// Consume passes each event to fn until the job stream is done.
// An error event stops consumption with a *StreamError carrying its payload.
func Consume[T any](r *EventReader[T], fn func(*StreamEvent[T]) error) error {
	defer r.Close()

	for ev, err := range r.All() {
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
		if ev.IsDone() {
			return nil
		}
		if ev.IsError() {
			return &StreamError{Message: "server reported an error", Detail: ev.Error}
		}
	}
	return nil
}

// TextReader decodes completion-style text streams, where a payload may
// span several data lines and a blank line ends it.
type TextReader struct {
	src    LineSource
	buf    strings.Builder
	closed bool
}

// NewTextReader creates a text reader over src.
func NewTextReader(src LineSource) *TextReader {
	return &TextReader{src: src}
}

// Next returns the next decoded chunk, or io.EOF once the stream is finished.
func (r *TextReader) Next() (TextChunk, error) {
	if r.closed {
		return nil, io.EOF
	}

	for {
		line, err := r.src.NextLine()
		if errors.Is(err, io.EOF) && r.buf.Len() > 0 {
			chunk, derr := r.flush()
			r.Close()
			return chunk, derr
		}
		if err != nil {
			r.Close()
			return nil, err
		}

		if strings.TrimSpace(line) == "" {
			if r.buf.Len() == 0 {
				continue
			}
			chunk, err := r.flush()
			if err != nil {
				r.Close()
			}
			return chunk, err
		}

		payload, kind := ParseLine(line)
		switch kind {
		case LineDone:
			r.Close()
			return nil, io.EOF
		case LineData:
			if r.buf.Len() > 0 {
				r.buf.WriteByte('\n')
			}
			r.buf.WriteString(payload)
		}
	}
}

func (r *TextReader) flush() (TextChunk, error) {
	payload := r.buf.String()
	r.buf.Reset()

	var chunk TextChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil, &StreamError{Message: "failed to parse stream data", Payload: payload, Err: err}
	}
	return chunk, nil
}

// Close releases the underlying source. It is safe to call more than once.
func (r *TextReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.Close()
}
