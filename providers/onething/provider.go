// Package onething is the HTTP client for the onething generation service.
//
// It submits text, image and video generation jobs, decodes SSE job streams
// and waits for asynchronous jobs:
//
//	client, err := onething.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	job, err := client.SubmitImage(ctx, &onething.ImageRequest{
//	    Model:  "flux-dev",
//	    Prompt: "a lighthouse at dusk",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	done, err := client.WaitForImage(ctx, job.ID, core.DefaultPollOptions())
//
// A Client is safe for concurrent use. Each logical request carries its own
// retry state; only the connection pool is shared.
package onething

import (
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/petal-labs/onething/core"
)

// Environment variables read by NewFromEnv.
const (
	APIKeyEnvVar  = "ONETHING_API_KEY"
	BaseURLEnvVar = "ONETHING_BASE_URL"
)

// Client talks to the generation service.
type Client struct {
	config Config
	http   *http.Client
	log    *zap.Logger
}

// NewFromEnv creates a client using ONETHING_API_KEY and, if set,
// ONETHING_BASE_URL. Options are applied after the environment.
func NewFromEnv(opts ...Option) (*Client, error) {
	apiKey := os.Getenv(APIKeyEnvVar)
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", APIKeyEnvVar+" environment variable not set")
	}
	if base := os.Getenv(BaseURLEnvVar); base != "" {
		opts = append([]Option{WithBaseURL(base)}, opts...)
	}
	return New(apiKey, opts...)
}

// New creates a client with the given API key and options.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "API key is required")
	}

	cfg := Config{
		APIKey:  core.NewSecret(apiKey),
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Retry == nil {
		cfg.Retry = core.DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = core.NoopTelemetryHook{}
	}
	if cfg.Clock == nil {
		cfg.Clock = core.SystemClock{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "onething-go/" + Version
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.Timeout
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		config: cfg,
		http:   httpClient,
		log:    cfg.Logger.Named("onething"),
	}, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// buildHeaders constructs the HTTP headers for an API request.
func (c *Client) buildHeaders() http.Header {
	headers := make(http.Header)

	headers.Set("Authorization", "Bearer "+c.config.APIKey.Expose())
	headers.Set("Content-Type", "application/json")
	headers.Set("User-Agent", c.config.UserAgent)

	for key, values := range c.config.Headers {
		for _, v := range values {
			headers.Add(key, v)
		}
	}

	return headers
}

// Close releases idle pooled connections. It is safe to call while requests
// are in flight; those requests finish normally.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
