package fetch

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Meter name for HTTP client metrics instrumentation
	clientMeterName = "go-fetch/http-client"

	// Metric names following OpenTelemetry semantic conventions
	metricRequestDuration = "http.client.request.duration" // Histogram in seconds
	metricActiveRequests  = "http.client.active_requests"  // UpDownCounter
	metricRetries         = "http.client.request.retries"  // Counter

	// Attribute keys per OTel semantic conventions
	attrRequestMethod  = "http.request.method"
	attrResponseStatus = "http.response.status_code"
	attrErrorType      = "error.type"
)

// HTTP request duration histogram buckets per OTel semantic conventions
var clientDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
}

// clientMetrics holds the per-client OTel instruments. A nil receiver is a
// noop, so disabled metrics cost one branch per call site.
type clientMetrics struct {
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
	retries  metric.Int64Counter
}

// newClientMetrics initializes instruments from the given provider, falling
// back to the global one. Metrics failures never break the client; failed
// instruments are simply skipped.
func newClientMetrics(provider metric.MeterProvider) *clientMetrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(clientMeterName)
	m := &clientMetrics{}

	var err error
	m.duration, err = meter.Float64Histogram(
		metricRequestDuration,
		metric.WithDescription("Duration of HTTP client requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(clientDurationBuckets...),
	)
	logMetricError(metricRequestDuration, err)

	m.active, err = meter.Int64UpDownCounter(
		metricActiveRequests,
		metric.WithDescription("Number of in-flight HTTP client requests"),
		metric.WithUnit("{request}"),
	)
	logMetricError(metricActiveRequests, err)

	m.retries, err = meter.Int64Counter(
		metricRetries,
		metric.WithDescription("Number of HTTP client retry attempts"),
		metric.WithUnit("{retry}"),
	)
	logMetricError(metricRetries, err)

	return m
}

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize HTTP client metric %s: %v\n", metricName, err)
	}
}

func (m *clientMetrics) recordRequest(ctx context.Context, method string, status int, errType string, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, 3)
	attrs = append(attrs, attribute.String(attrRequestMethod, method))
	if status > 0 {
		attrs = append(attrs, attribute.Int(attrResponseStatus, status))
	}
	if errType != "" {
		attrs = append(attrs, attribute.String(attrErrorType, errType))
	}
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func (m *clientMetrics) addInFlight(ctx context.Context, delta int64) {
	if m == nil || m.active == nil {
		return
	}
	m.active.Add(ctx, delta)
}

func (m *clientMetrics) recordRetry(ctx context.Context, method string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String(attrRequestMethod, method)))
}
