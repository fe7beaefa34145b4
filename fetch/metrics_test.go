package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestClientMetricsRecording(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	c := newTestClient(t, func(b *Builder) { b.WithMetrics(provider) })

	status = http.StatusOK
	_, err := c.Get(context.Background(), &Request{URL: server.URL})
	require.NoError(t, err)

	status = http.StatusBadGateway
	_, err = c.Get(context.Background(), &Request{
		URL:   server.URL,
		Retry: &RetryPolicy{Retries: 1, Delay: time.Millisecond},
	})
	require.Error(t, err)

	metrics := collectMetrics(t, reader)

	t.Run("request duration histogram", func(t *testing.T) {
		m, ok := metrics["http.client.request.duration"]
		require.True(t, ok)
		hist, ok := m.Data.(metricdata.Histogram[float64])
		require.True(t, ok)

		var success, failure bool
		for _, dp := range hist.DataPoints {
			if v, found := dp.Attributes.Value(attribute.Key("http.response.status_code")); found && v.AsInt64() == 200 {
				success = true
				assert.Equal(t, uint64(1), dp.Count)
			}
			if v, found := dp.Attributes.Value(attribute.Key("error.type")); found {
				failure = true
				assert.Equal(t, "http", v.AsString())
			}
		}
		assert.True(t, success, "a datapoint records the successful call")
		assert.True(t, failure, "a datapoint records the failed call with its error type")
	})

	t.Run("retry counter", func(t *testing.T) {
		m, ok := metrics["http.client.request.retries"]
		require.True(t, ok)
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	})

	t.Run("active requests settle back to zero", func(t *testing.T) {
		m, ok := metrics["http.client.active_requests"]
		require.True(t, ok)
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		var total int64
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
		assert.Zero(t, total)
	})
}

func TestClientMetricsDisabled(t *testing.T) {
	var m *clientMetrics

	// Nil receivers are noops; a client built without metrics must not panic.
	m.recordRequest(context.Background(), "GET", 200, "", time.Second)
	m.addInFlight(context.Background(), 1)
	m.recordRetry(context.Background(), "GET")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t)
	_, err := c.Get(context.Background(), &Request{URL: server.URL})
	require.NoError(t, err)
}
