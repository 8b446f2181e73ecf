package onething

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/petal-labs/onething/core"
)

// maxLineSize bounds a single SSE line. Base64 artifacts can be several MB.
const maxLineSize = 10 * 1024 * 1024

// StreamRequest opens a server-sent event stream. Streams are never retried:
// a failed handshake returns its error immediately.
//
// The returned LineStream must be closed by the caller, directly or through
// a core.EventReader or core.TextReader built on it.
func (c *Client) StreamRequest(ctx context.Context, method, path string, body any) (*LineStream, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	resp, _, err := c.attempt(ctx, method, path, payload, uuid.NewString(), 0, true)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	return &LineStream{
		ctx:     ctx,
		resp:    resp,
		scanner: scanner,
	}, nil
}

// LineStream yields the raw lines of a streaming response body one at a
// time. It implements core.LineSource.
type LineStream struct {
	ctx       context.Context
	resp      *http.Response
	scanner   *bufio.Scanner
	closeOnce sync.Once
	closeErr  error
}

var _ core.LineSource = (*LineStream)(nil)

// NextLine returns the next line, or io.EOF when the server ends the stream.
// Read faults are reported as network errors.
func (s *LineStream) NextLine() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}

	err := s.scanner.Err()
	if err == nil {
		return "", io.EOF
	}
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if errors.Is(err, bufio.ErrTooLong) {
		return "", &core.StreamError{Message: fmt.Sprintf("line exceeds %d bytes", maxLineSize), Err: err}
	}
	return "", newNetworkError(fmt.Errorf("stream read: %w", err))
}

// Lines returns an iterator over the remaining lines. A read fault is
// yielded once and ends the sequence.
func (s *LineStream) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := s.NextLine()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// RequestID returns the server correlation id of the handshake.
func (s *LineStream) RequestID() string {
	return s.resp.Header.Get(requestIDHeader)
}

// StatusCode returns the handshake status.
func (s *LineStream) StatusCode() int {
	return s.resp.StatusCode
}

// Close releases the connection. It is safe to call more than once.
func (s *LineStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.resp.Body.Close()
	})
	return s.closeErr
}
