// Package normalize provides shared error normalization helpers for the
// service's HTTP responses.
package normalize

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/petal-labs/onething/core"
)

// errorEnvelope covers both error shapes the service returns:
// {"error":{"message":"...","code":"..."}} and {"message":"...","code":...}.
type errorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Code    json.RawMessage `json:"code"`
}

type nestedError struct {
	Message string          `json:"message"`
	Code    json.RawMessage `json:"code"`
	Type    string          `json:"type"`
}

// APIError normalizes a non-2xx response into a *core.APIError.
//
// The message is taken from error.message, then message, then the raw body,
// then the HTTP status text.
func APIError(status int, body []byte, requestID string) error {
	message, code := parseEnvelope(body)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	return New(status, requestID, code, message, string(body), nil)
}

func parseEnvelope(body []byte) (message, code string) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", ""
	}

	if len(env.Error) > 0 {
		var nested nestedError
		if err := json.Unmarshal(env.Error, &nested); err == nil {
			message = nested.Message
			code = rawCode(nested.Code)
			if code == "" {
				code = nested.Type
			}
		} else {
			// "error" may be a bare string
			var s string
			if json.Unmarshal(env.Error, &s) == nil {
				message = s
			}
		}
	}
	if message == "" {
		message = env.Message
	}
	if code == "" {
		code = rawCode(env.Code)
	}
	return message, code
}

// rawCode renders a JSON string or number code as text.
func rawCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// New constructs a normalized *core.APIError.
// If message is empty, HTTP status text is used.
// If sentinel is nil, default status-based mapping is applied.
func New(status int, requestID, code, message, body string, sentinel error) error {
	if message == "" {
		message = http.StatusText(status)
	}
	if sentinel == nil {
		sentinel = SentinelForStatus(status)
	}
	return &core.APIError{
		Status:    status,
		RequestID: requestID,
		Code:      code,
		Message:   message,
		Body:      body,
		Err:       sentinel,
	}
}

// NetworkError wraps transport failures where no response was received.
func NetworkError(err error) error {
	return &core.APIError{
		Message: err.Error(),
		Err:     core.ErrNetwork,
	}
}

// DecodeError wraps failures to parse a successful response body.
func DecodeError(err error, requestID string) error {
	return &core.APIError{
		RequestID: requestID,
		Message:   "failed to decode response: " + err.Error(),
		Err:       core.ErrDecode,
	}
}

// SentinelForStatus maps an HTTP status code to a core sentinel error.
func SentinelForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimited
	case status >= 500:
		return core.ErrServer
	default:
		return core.ErrAPI
	}
}
