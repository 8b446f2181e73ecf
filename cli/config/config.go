// Package config handles CLI configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/petal-labs/onething/core"
)

// Environment variables that override file settings.
const (
	EnvBaseURL = "ONETHING_BASE_URL"
	EnvModel   = "ONETHING_MODEL"
	EnvTimeout = "ONETHING_TIMEOUT"
	EnvJobsDB  = "ONETHING_JOBS_DB"
)

// DefaultKeyName is the keystore entry holding the API key.
const DefaultKeyName = "onething"

// Config represents the CLI configuration.
type Config struct {
	DefaultModel string   `yaml:"default_model" toml:"default_model"`
	BaseURL      string   `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	APIKeyRef    string   `yaml:"api_key_ref,omitempty" toml:"api_key_ref,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	MaxRetries   *int     `yaml:"max_retries,omitempty" toml:"max_retries,omitempty"`
	RateLimit    float64  `yaml:"rate_limit,omitempty" toml:"rate_limit,omitempty"`
	RateBurst    int      `yaml:"rate_burst,omitempty" toml:"rate_burst,omitempty"`
	JobsDB       string   `yaml:"jobs_db,omitempty" toml:"jobs_db,omitempty"`
	Poll         Poll     `yaml:"poll" toml:"poll"`
}

// Poll configures how the CLI waits on jobs.
type Poll struct {
	Interval    Duration `yaml:"interval,omitempty" toml:"interval,omitempty"`
	MaxAttempts int      `yaml:"max_attempts,omitempty" toml:"max_attempts,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// Duration is a time.Duration that reads from strings like "90s" or "2m".
// Bare integer strings such as "30" are taken as seconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultDir returns the directory holding CLI state.
// - macOS/Linux: ~/.onething
// - Windows: %USERPROFILE%\.onething
func DefaultDir() string {
	var homeDir string

	if runtime.GOOS == "windows" {
		homeDir = os.Getenv("USERPROFILE")
	} else {
		homeDir = os.Getenv("HOME")
	}

	if homeDir == "" {
		return "."
	}

	return filepath.Join(homeDir, ".onething")
}

// DefaultConfigPath returns the default configuration file path for the current platform.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// LoadConfig loads configuration from the specified path. Files ending in
// .toml are decoded as TOML, anything else as YAML.
// If the file doesn't exist, returns an empty config without error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides file settings with environment values. getenv is
// usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := getenv(EnvModel); v != "" {
		c.DefaultModel = v
	}
	if v := getenv(EnvJobsDB); v != "" {
		c.JobsDB = v
	}
	if v := getenv(EnvTimeout); v != "" {
		if err := c.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
	}
	return nil
}

// KeyName returns the keystore entry that holds the API key.
func (c *Config) KeyName() string {
	if c.APIKeyRef != "" {
		return c.APIKeyRef
	}
	return DefaultKeyName
}

// JobsPath returns the job ledger database path.
func (c *Config) JobsPath() string {
	if c.JobsDB != "" {
		return c.JobsDB
	}
	return filepath.Join(DefaultDir(), "jobs.db")
}

// PollOptions converts the poll section into poller options, keeping the
// poller defaults for unset fields.
func (c *Config) PollOptions() core.PollOptions {
	opts := core.DefaultPollOptions()
	if c.Poll.Interval > 0 {
		opts.Interval = c.Poll.Interval.Std()
	}
	if c.Poll.MaxAttempts > 0 {
		opts.MaxAttempts = c.Poll.MaxAttempts
	}
	if c.Poll.Timeout > 0 {
		opts.Timeout = c.Poll.Timeout.Std()
	}
	return opts
}
