package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-fetch/config"
)

func TestBuilderDefaults(t *testing.T) {
	c, ok := NewBuilder(&fakeLogger{}).Build().(*client)
	require.True(t, ok)

	assert.Equal(t, DefaultTimeout, c.config.Timeout)
	assert.Equal(t, DefaultMaxPayloadLogBytes, c.config.MaxPayloadLogBytes)
	assert.NotNil(t, c.transport)
	assert.Same(t, DefaultRegistry(), c.registry)
	assert.NotNil(t, c.sanitizer)
	assert.Nil(t, c.config.Retry)
	assert.Nil(t, c.limiter)
	assert.Nil(t, c.dedupe)
	assert.Nil(t, c.metrics)
}

func TestBuilderOptions(t *testing.T) {
	registry := NewRegistry()
	transport := DoerFunc(func(*http.Request) (*http.Response, error) { return nil, nil })

	built := NewBuilder(&fakeLogger{}).
		WithBaseURL("https://api.example.com").
		WithTimeout(5 * time.Second).
		WithRetries(3, 100*time.Millisecond).
		WithTransport(transport).
		WithRegistry(registry).
		WithDefaultHeader("X-Api-Version", "v1").
		WithBasicAuth("svc", "pw").
		WithRateLimit(10, 2).
		WithDeduplication().
		WithPayloadLogging(256).
		Build()

	c, ok := built.(*client)
	require.True(t, ok)

	assert.Equal(t, "https://api.example.com", c.config.BaseURL)
	assert.Equal(t, 5*time.Second, c.config.Timeout)
	require.NotNil(t, c.config.Retry)
	assert.Equal(t, 3, c.config.Retry.Retries)
	assert.Equal(t, 100*time.Millisecond, c.config.Retry.Delay)
	assert.Same(t, registry, c.registry)
	assert.Equal(t, "v1", c.config.DefaultHeaders["X-Api-Version"])
	require.NotNil(t, c.config.BasicAuth)
	assert.Equal(t, "svc", c.config.BasicAuth.Username)
	assert.NotNil(t, c.limiter)
	assert.NotNil(t, c.dedupe)
	assert.True(t, c.config.LogPayloads)
	assert.Equal(t, 256, c.config.MaxPayloadLogBytes)
}

func TestBuilderBackoff(t *testing.T) {
	built := NewBuilder(&fakeLogger{}).
		WithRetries(2, 0).
		WithBackoff("exponential", 100*time.Millisecond, time.Second, 2.0, 0).
		Build()

	c := built.(*client)
	require.NotNil(t, c.config.Retry)
	require.NotNil(t, c.config.Retry.DelayFunc)
	assert.Equal(t, 100*time.Millisecond, c.config.Retry.DelayFunc(1, nil))
	assert.Equal(t, 200*time.Millisecond, c.config.Retry.DelayFunc(2, nil))
}

func TestBuilderTraceHeader(t *testing.T) {
	var gotRequestID, gotTraceParent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get(HeaderXRequestID)
		gotTraceParent = r.Header.Get(HeaderTraceParent)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewBuilder(&fakeLogger{}).
		WithRegistry(NewRegistry()).
		WithTraceHeader("").
		WithW3CTrace().
		Build()

	_, err := c.Get(context.Background(), &Request{URL: server.URL})
	require.NoError(t, err)
	assert.NotEmpty(t, gotRequestID)
	assert.NotEmpty(t, gotTraceParent)
}

func TestBuilderFromConfig(t *testing.T) {
	cfg := &config.Config{
		Client: config.ClientConfig{
			BaseURL:     "https://api.example.com",
			Timeout:     10 * time.Second,
			RateLimit:   5,
			RateBurst:   2,
			Dedupe:      true,
			TraceHeader: "X-Correlation-ID",
			W3CTrace:    true,
		},
		Retry: config.RetryConfig{
			Max:        2,
			Delay:      50 * time.Millisecond,
			MaxDelay:   time.Second,
			Strategy:   "exponential",
			Multiplier: 2.0,
		},
		Log:     config.LogConfig{Payloads: true, MaxPayloadBytes: 512},
		Metrics: config.MetricsConfig{Enabled: true},
	}

	built := NewBuilder(&fakeLogger{}).WithRegistry(NewRegistry()).FromConfig(cfg).Build()
	c := built.(*client)

	assert.Equal(t, "https://api.example.com", c.config.BaseURL)
	assert.Equal(t, 10*time.Second, c.config.Timeout)
	assert.NotNil(t, c.limiter)
	assert.NotNil(t, c.dedupe)
	assert.NotNil(t, c.metrics)
	require.NotNil(t, c.config.Retry)
	assert.Equal(t, 2, c.config.Retry.Retries)
	assert.NotNil(t, c.config.Retry.DelayFunc)
	assert.True(t, c.config.LogPayloads)
	assert.Equal(t, 512, c.config.MaxPayloadLogBytes)
	assert.Len(t, c.config.RequestInterceptors, 2, "trace and W3C interceptors are wired in")
}

func TestBuilderFromConfigNil(t *testing.T) {
	c := NewBuilder(&fakeLogger{}).FromConfig(nil).Build().(*client)
	assert.Equal(t, DefaultTimeout, c.config.Timeout)
}

func TestNewRegistryFromConfig(t *testing.T) {
	t.Run("CSRF enabled with a token", func(t *testing.T) {
		registry := NewRegistryFromConfig(&config.Config{
			CSRF: config.CSRFConfig{Enabled: true, Header: "X-My-CSRF", Token: "tok-1"},
		})

		snap := registry.csrfSnapshot()
		assert.True(t, snap.enabled)
		assert.Equal(t, "X-My-CSRF", snap.header)
	})

	t.Run("disabled or empty token stays off", func(t *testing.T) {
		registry := NewRegistryFromConfig(&config.Config{
			CSRF: config.CSRFConfig{Enabled: true},
		})
		assert.False(t, registry.csrfSnapshot().enabled)

		registry = NewRegistryFromConfig(nil)
		assert.False(t, registry.csrfSnapshot().enabled)
	})
}
