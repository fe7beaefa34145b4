package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Client.Timeout)
	assert.Empty(t, cfg.Client.BaseURL)
	assert.Zero(t, cfg.Retry.Max)
	assert.Equal(t, time.Second, cfg.Retry.Delay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, "exponential", cfg.Retry.Strategy)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 0.2, cfg.Retry.Jitter)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1024, cfg.Log.MaxPayloadBytes)
	assert.Equal(t, "X-CSRF-Token", cfg.CSRF.Header)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadYAMLFile(t *testing.T) {
	payload := []byte(`
client:
  baseurl: https://api.example.com
  timeout: 5s
  ratelimit: 10
  rateburst: 3
  dedupe: true
retry:
  max: 4
  strategy: fixed
log:
  level: debug
  payloads: true
csrf:
  enabled: true
  token: secret-token
`)
	path := filepath.Join(t.TempDir(), "fetch.yaml")
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Client.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Client.Timeout)
	assert.Equal(t, 10.0, cfg.Client.RateLimit)
	assert.Equal(t, 3, cfg.Client.RateBurst)
	assert.True(t, cfg.Client.Dedupe)
	assert.Equal(t, 4, cfg.Retry.Max)
	assert.Equal(t, "fixed", cfg.Retry.Strategy)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Payloads)
	assert.True(t, cfg.CSRF.Enabled)
	assert.Equal(t, "secret-token", cfg.CSRF.Token)
}

func TestLoadMissingFileIsSkipped(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Client.Timeout)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("FETCH_CLIENT_BASEURL", "https://env.example.com")
	t.Setenv("FETCH_CLIENT_TIMEOUT", "12s")
	t.Setenv("FETCH_RETRY_MAX", "7")
	t.Setenv("FETCH_RETRY_MAXDELAY", "90s")
	t.Setenv("FETCH_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Client.BaseURL)
	assert.Equal(t, 12*time.Second, cfg.Client.Timeout)
	assert.Equal(t, 7, cfg.Retry.Max)
	assert.Equal(t, 90*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestEnvironmentBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  timeout: 5s\n"), 0o600))
	t.Setenv("FETCH_CLIENT_TIMEOUT", "9s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, cfg.Client.Timeout)
}

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadBytes([]byte("retry:\n  max: 2\n  jitter: 0.5\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Retry.Max)
	assert.Equal(t, 0.5, cfg.Retry.Jitter)
	assert.Equal(t, "exponential", cfg.Retry.Strategy, "defaults survive partial overlays")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"malformed base URL", "client:\n  baseurl: not-a-url\n", "url"},
		{"unknown retry strategy", "retry:\n  strategy: quadratic\n", "oneof"},
		{"jitter out of range", "retry:\n  jitter: 1.5\n", "max"},
		{"unknown log level", "log:\n  level: loud\n", "oneof"},
		{"negative retries", "retry:\n  max: -1\n", "min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.payload))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
