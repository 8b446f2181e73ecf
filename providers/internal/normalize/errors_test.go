package normalize

import (
	"errors"
	"net/http"
	"testing"

	"github.com/petal-labs/onething/core"
)

func TestAPIError(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         []byte
		requestID    string
		wantCode     string
		wantMsg      string
		wantSentinel error
	}{
		{
			name:         "nested error envelope",
			status:       http.StatusBadRequest,
			body:         []byte(`{"error":{"message":"Invalid model","code":"invalid_model"}}`),
			requestID:    "req-123",
			wantCode:     "invalid_model",
			wantMsg:      "Invalid model",
			wantSentinel: core.ErrAPI,
		},
		{
			name:         "nested error falls back to type",
			status:       http.StatusUnauthorized,
			body:         []byte(`{"error":{"message":"Invalid API key","type":"authentication_error"}}`),
			requestID:    "req-456",
			wantCode:     "authentication_error",
			wantMsg:      "Invalid API key",
			wantSentinel: core.ErrUnauthorized,
		},
		{
			name:         "flat message envelope with numeric code",
			status:       http.StatusForbidden,
			body:         []byte(`{"code":40301,"message":"key disabled"}`),
			wantCode:     "40301",
			wantMsg:      "key disabled",
			wantSentinel: core.ErrUnauthorized,
		},
		{
			name:         "string error",
			status:       http.StatusTooManyRequests,
			body:         []byte(`{"error":"slow down"}`),
			wantMsg:      "slow down",
			wantSentinel: core.ErrRateLimited,
		},
		{
			name:         "raw body fallback",
			status:       http.StatusBadGateway,
			body:         []byte("upstream unavailable\n"),
			wantMsg:      "upstream unavailable",
			wantSentinel: core.ErrServer,
		},
		{
			name:         "status text fallback",
			status:       http.StatusServiceUnavailable,
			body:         nil,
			wantMsg:      "Service Unavailable",
			wantSentinel: core.ErrServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := APIError(tt.status, tt.body, tt.requestID)

			var apiErr *core.APIError
			if !errors.As(err, &apiErr) {
				t.Fatal("expected *core.APIError")
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.RequestID != tt.requestID {
				t.Errorf("RequestID = %q, want %q", apiErr.RequestID, tt.requestID)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
			if apiErr.Body != string(tt.body) {
				t.Errorf("Body = %q, want %q", apiErr.Body, tt.body)
			}
			if !errors.Is(err, tt.wantSentinel) {
				t.Errorf("error should wrap %v", tt.wantSentinel)
			}
			if !errors.Is(err, core.ErrAPI) {
				t.Error("every status error should match core.ErrAPI")
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	err := NetworkError(errors.New("connection refused"))

	var apiErr *core.APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("expected *core.APIError")
	}
	if apiErr.Status != 0 {
		t.Errorf("Status = %d, want 0", apiErr.Status)
	}
	if apiErr.Message != "connection refused" {
		t.Errorf("Message = %q, want connection refused", apiErr.Message)
	}
	if !errors.Is(err, core.ErrNetwork) {
		t.Error("error should wrap core.ErrNetwork")
	}
	if !core.IsRetryable(err) {
		t.Error("network errors should be retryable")
	}
}

func TestDecodeError(t *testing.T) {
	err := DecodeError(errors.New("unexpected end of JSON input"), "req-1")

	if !errors.Is(err, core.ErrDecode) {
		t.Error("error should wrap core.ErrDecode")
	}
	if core.RequestIDOf(err) != "req-1" {
		t.Errorf("RequestIDOf() = %q, want req-1", core.RequestIDOf(err))
	}
	if core.IsRetryable(err) {
		t.Error("decode errors should not be retryable")
	}
}

func TestSentinelForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{400, core.ErrAPI},
		{401, core.ErrUnauthorized},
		{403, core.ErrUnauthorized},
		{404, core.ErrAPI},
		{422, core.ErrAPI},
		{429, core.ErrRateLimited},
		{500, core.ErrServer},
		{503, core.ErrServer},
	}
	for _, tt := range tests {
		if got := SentinelForStatus(tt.status); got != tt.want {
			t.Errorf("SentinelForStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
