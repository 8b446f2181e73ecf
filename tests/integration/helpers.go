//go:build integration

// Package integration runs the SDK and CLI against a live service.
package integration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/petal-labs/onething/providers/onething"
)

// isCI returns true if running in a CI environment.
func isCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "TRAVIS", "JENKINS_URL"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// skipOrFail skips a test whose prerequisite env var is missing. In CI it
// fails loudly unless ONETHING_SKIP_INTEGRATION is set.
func skipOrFail(t *testing.T, name string) {
	t.Helper()
	if isCI() && os.Getenv("ONETHING_SKIP_INTEGRATION") == "" {
		t.Fatalf("%s not set (CI environment detected; set ONETHING_SKIP_INTEGRATION=1 to skip)", name)
	}
	t.Skipf("%s not set", name)
}

// requireEnv returns the value of name or skips the test.
func requireEnv(t *testing.T, name string) string {
	t.Helper()
	v := os.Getenv(name)
	if v == "" {
		skipOrFail(t, name)
	}
	return v
}

func apiKey(t *testing.T) string {
	t.Helper()
	return requireEnv(t, onething.APIKeyEnvVar)
}

func imageModel(t *testing.T) string { t.Helper(); return requireEnv(t, "ONETHING_TEST_IMAGE_MODEL") }
func videoModel(t *testing.T) string { t.Helper(); return requireEnv(t, "ONETHING_TEST_VIDEO_MODEL") }
func textModel(t *testing.T) string  { t.Helper(); return requireEnv(t, "ONETHING_TEST_TEXT_MODEL") }

// newClient builds a client from ONETHING_API_KEY and ONETHING_BASE_URL.
func newClient(t *testing.T, opts ...onething.Option) *onething.Client {
	t.Helper()
	apiKey(t)

	c, err := onething.NewFromEnv(opts...)
	if err != nil {
		t.Fatalf("NewFromEnv() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// cliResult holds the result of running a CLI command.
type cliResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// cliEnv isolates the CLI from the user's home directory: config, keystore
// and job ledger all live under a temporary HOME.
func cliEnv(t *testing.T, extra ...string) []string {
	t.Helper()
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, ".onething"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	env := []string{
		"HOME=" + home,
		"PATH=" + os.Getenv("PATH"),
		"ONETHING_MASTER_KEY=integration-master-key",
	}
	if base := os.Getenv(onething.BaseURLEnvVar); base != "" {
		env = append(env, onething.BaseURLEnvVar+"="+base)
	}
	return append(env, extra...)
}
