package onething

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petal-labs/onething/core"
)

// Header names used for request correlation.
const (
	requestIDHeader       = "X-Request-Id"
	clientRequestIDHeader = "X-Client-Request-Id"
)

// Response is a completed HTTP exchange with a 2xx/3xx status.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// RequestID returns the server correlation id, if any.
func (r *Response) RequestID() string {
	return r.Header.Get(requestIDHeader)
}

// Request sends one logical request, replaying it according to the retry
// policy. The body is encoded once and reused across attempts, and every
// attempt carries the same X-Client-Request-Id.
//
// When a retryable failure outlives the policy the last failure is returned
// wrapped in a *core.RetryError. Non-retryable failures are returned as is.
func (c *Client) Request(ctx context.Context, method, path string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	clientID := uuid.NewString()

	for attempt := 0; ; attempt++ {
		resp, respBody, err := c.attempt(ctx, method, path, payload, clientID, attempt, false)
		if err == nil {
			return &Response{
				StatusCode: resp.StatusCode,
				Body:       respBody,
				Header:     resp.Header,
			}, nil
		}

		delay, ok := c.config.Retry.NextDelay(attempt, err)
		if !ok {
			if core.IsRetryable(err) {
				return nil, &core.RetryError{Attempts: attempt + 1, Last: err}
			}
			return nil, err
		}

		c.log.Warn("retrying request",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_request_id", clientID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := c.config.Clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// Do sends a request and decodes the JSON response body into out.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (*Response, error) {
	resp, err := c.Request(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, newDecodeError(err, resp.RequestID())
		}
	}
	return resp, nil
}

// attempt performs a single exchange and reports it to telemetry and logs.
// For non-streaming requests the response body is fully read and closed.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, clientID string, n int, stream bool) (*http.Response, []byte, error) {
	start := time.Now()
	c.config.Telemetry.OnRequestStart(core.RequestStartEvent{
		Method:          method,
		Path:            path,
		ClientRequestID: clientID,
		Attempt:         n,
		Stream:          stream,
		Start:           start,
	})

	resp, body, err := c.exchange(ctx, method, path, payload, clientID, stream)

	var status int
	var requestID string
	if resp != nil {
		status = resp.StatusCode
		requestID = resp.Header.Get(requestIDHeader)
	}
	end := time.Now()
	c.config.Telemetry.OnRequestEnd(core.RequestEndEvent{
		Method:          method,
		Path:            path,
		ClientRequestID: clientID,
		Attempt:         n,
		Stream:          stream,
		Status:          status,
		RequestID:       requestID,
		Start:           start,
		End:             end,
		Err:             err,
	})

	c.log.Debug("request attempt",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("attempt", n),
		zap.Bool("stream", stream),
		zap.Int("status", status),
		zap.String("request_id", requestID),
		zap.String("client_request_id", clientID),
		zap.Duration("duration", end.Sub(start)),
		zap.Error(err),
	)

	return resp, body, err
}

// exchange runs one HTTP round trip. Config.Timeout bounds the whole
// exchange for plain requests but only the handshake for streams, so a
// stream may run as long as the server keeps it open.
func (c *Client) exchange(parent context.Context, method, path string, payload []byte, clientID string, stream bool) (*http.Response, []byte, error) {
	var ctx context.Context
	var cancel context.CancelFunc
	if c.config.Timeout > 0 && !stream {
		ctx, cancel = context.WithTimeout(parent, c.config.Timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	var handshake *time.Timer
	if c.config.Timeout > 0 && stream {
		handshake = time.AfterFunc(c.config.Timeout, cancel)
	}
	handedOff := false
	defer func() {
		if !handedOff {
			cancel()
		}
	}()

	if c.config.RateLimiter != nil {
		if err := c.config.RateLimiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, nil, core.NewValidationError("base_url", err.Error())
	}

	req.Header = c.buildHeaders()
	req.Header.Set(clientRequestIDHeader, clientID)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Connection", "keep-alive")
	}

	resp, err := c.http.Do(req)
	if handshake != nil && !handshake.Stop() && err == nil {
		resp.Body.Close()
		err = context.DeadlineExceeded
	}
	if err != nil {
		if ctxErr := parent.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, newNetworkError(err)
	}

	if stream && resp.StatusCode < 400 {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		handedOff = true
		return resp, nil, nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := parent.Err(); ctxErr != nil {
			return resp, nil, ctxErr
		}
		return resp, nil, newNetworkError(err)
	}

	if resp.StatusCode >= 400 {
		return resp, body, normalizeError(resp.StatusCode, body, resp.Header.Get(requestIDHeader))
	}
	return resp, body, nil
}

// cancelOnClose releases a stream's request context with its body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// encodeBody serializes a request body once. Raw JSON is passed through.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		if !json.Valid(b) {
			return nil, core.NewValidationError("body", "request body is not valid JSON")
		}
		return b, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		var ute *json.UnsupportedTypeError
		if errors.As(err, &ute) {
			return nil, core.NewValidationError("body", "unsupported type "+ute.Type.String())
		}
		return nil, core.NewValidationError("body", err.Error())
	}
	return data, nil
}
