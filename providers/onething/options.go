package onething

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/petal-labs/onething/core"
)

// Config holds configuration for the onething client.
type Config struct {
	// APIKey is the service API key (required).
	APIKey core.Secret

	// BaseURL is the API base URL. Defaults to https://api-model.onethingai.com/v2
	BaseURL string

	// HTTPClient is the HTTP client to use. A client-level Timeout on it
	// also cuts off long streams, so leave that unset and use Timeout here.
	HTTPClient *http.Client

	// Timeout bounds each attempt of a plain request, body included. For
	// streams it bounds only the handshake; events may then arrive for as
	// long as the server keeps the connection open. Zero disables it.
	Timeout time.Duration

	// Headers contains optional extra headers to include in requests.
	Headers http.Header

	// Retry decides whether and when a failed attempt is replayed.
	Retry core.RetryPolicy

	// Logger receives debug logs for each attempt. Defaults to a no-op logger.
	Logger *zap.Logger

	// Telemetry receives start/end events for each attempt.
	Telemetry core.TelemetryHook

	// RateLimiter, if set, is waited on before every attempt.
	RateLimiter *rate.Limiter

	// Clock is the wait primitive for retry backoff and polling.
	Clock core.Clock

	// UserAgent overrides the User-Agent header.
	UserAgent string
}

// Defaults.
const (
	DefaultBaseURL = "https://api-model.onethingai.com/v2"
	DefaultTimeout = 60 * time.Second
)

// Version is the SDK version reported in the User-Agent header.
const Version = "0.1.0"

// Option configures the client.
type Option func(*Config)

// WithBaseURL sets the API base URL. Trailing slashes are dropped.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithHeader adds an extra header to include in requests.
func WithHeader(key, value string) Option {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = make(http.Header)
		}
		c.Headers.Set(key, value)
	}
}

// WithTimeout sets the per-attempt timeout. See Config.Timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p core.RetryPolicy) Option {
	return func(c *Config) {
		c.Retry = p
	}
}

// WithMaxRetries keeps the default linear delays but changes the retry count.
// Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		cfg := core.DefaultRetryConfig()
		cfg.MaxRetries = n
		c.Retry = core.NewRetryPolicy(cfg)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithTelemetry sets the telemetry hook.
func WithTelemetry(h core.TelemetryHook) Option {
	return func(c *Config) {
		c.Telemetry = h
	}
}

// WithRateLimit limits outgoing attempts to rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) {
		if burst < 1 {
			burst = 1
		}
		c.RateLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithClock overrides the wait primitive.
func WithClock(clock core.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.UserAgent = ua
	}
}
