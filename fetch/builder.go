package fetch

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/gaborage/go-fetch/config"
	"github.com/gaborage/go-fetch/logger"
)

// Builder assembles a preconfigured Client. Every With* method appends one
// typed modification; Build applies them in order, so later calls win.
type Builder struct {
	config        *Config
	logger        logger.Logger
	sanitizer     *logger.Sanitizer
	registry      *Registry
	transport     Doer
	meterProvider metric.MeterProvider
	metricsOn     bool
	defaultRetry  RetryPolicy
	retrySet      bool
	traceHeader   string
	traceOn       bool
	w3cTrace      bool
}

// NewBuilder creates a client builder with default configuration.
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		config: &Config{
			Timeout:            DefaultTimeout,
			MaxPayloadLogBytes: DefaultMaxPayloadLogBytes,
			DefaultHeaders:     make(map[string]string),
		},
		logger: log,
	}
}

// WithBaseURL sets the base URL that relative request URLs resolve against.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithTimeout sets the default per-attempt timeout.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithRetries sets the default retry count and fixed inter-attempt delay.
func (b *Builder) WithRetries(retries int, delay time.Duration) *Builder {
	b.defaultRetry.Retries = retries
	b.defaultRetry.Delay = delay
	b.retrySet = true
	return b
}

// WithRetryDelayFunc sets a computed inter-attempt delay on the default
// retry policy.
func (b *Builder) WithRetryDelayFunc(fn func(attempt int, err error) time.Duration) *Builder {
	b.defaultRetry.DelayFunc = fn
	b.retrySet = true
	return b
}

// WithBackoff sets a named backoff strategy ("fixed", "exponential",
// "decorrelated") as the default delay rule.
func (b *Builder) WithBackoff(strategy string, initial, maximum time.Duration, multiplier, jitter float64) *Builder {
	return b.WithRetryDelayFunc(BackoffDelayFunc(strategy, initial, maximum, multiplier, jitter))
}

// WithRetryPolicy replaces the whole default retry policy.
func (b *Builder) WithRetryPolicy(policy *RetryPolicy) *Builder {
	if policy != nil {
		b.defaultRetry = *policy
		b.retrySet = true
	}
	return b
}

// WithTransport injects the transport primitive. Defaults to an *http.Client
// without its own timeout; attempt deadlines come from the signal composer.
func (b *Builder) WithTransport(transport Doer) *Builder {
	b.transport = transport
	return b
}

// WithDefaultHeader adds a header sent with every request.
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithBasicAuth sets default basic authentication credentials.
func (b *Builder) WithBasicAuth(username, password string) *Builder {
	b.config.BasicAuth = &BasicAuth{Username: username, Password: password}
	return b
}

// WithRequestInterceptor adds a client-local request interceptor, ordered
// after the globals and before descriptor-local ones.
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a client-local response interceptor.
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// WithErrorInterceptor adds a client-local error interceptor.
func (b *Builder) WithErrorInterceptor(interceptor ErrorInterceptor) *Builder {
	b.config.ErrorInterceptors = append(b.config.ErrorInterceptors, interceptor)
	return b
}

// WithRegistry attaches an explicit global interceptor registry instead of
// the process-wide default.
func (b *Builder) WithRegistry(registry *Registry) *Builder {
	b.registry = registry
	return b
}

// WithRateLimit throttles transport calls to the given rate client-side.
func (b *Builder) WithRateLimit(limit rate.Limit, burst int) *Builder {
	b.config.RateLimit = limit
	b.config.RateBurst = burst
	return b
}

// WithDeduplication coalesces concurrent identical GET/HEAD calls into one
// transport round trip.
func (b *Builder) WithDeduplication() *Builder {
	b.config.DedupeIdempotent = true
	return b
}

// WithPayloadLogging enables debug-level payload logging with the given
// preview cap (zero selects the default).
func (b *Builder) WithPayloadLogging(maxBytes int) *Builder {
	b.config.LogPayloads = true
	if maxBytes > 0 {
		b.config.MaxPayloadLogBytes = maxBytes
	}
	return b
}

// WithSanitizer replaces the sanitizer used for payload logging.
func (b *Builder) WithSanitizer(s *logger.Sanitizer) *Builder {
	b.sanitizer = s
	return b
}

// WithTraceHeader stamps outbound requests with a correlation ID under the
// given header name (empty selects the standard X-Request-ID).
func (b *Builder) WithTraceHeader(header string) *Builder {
	b.traceHeader = header
	b.traceOn = true
	return b
}

// WithW3CTrace enables W3C Trace Context (traceparent/tracestate) propagation.
func (b *Builder) WithW3CTrace() *Builder {
	b.w3cTrace = true
	return b
}

// WithMetrics enables OTel metrics, optionally from a specific provider
// (nil selects the global one).
func (b *Builder) WithMetrics(provider metric.MeterProvider) *Builder {
	b.metricsOn = true
	b.meterProvider = provider
	return b
}

// FromConfig applies loaded configuration to the builder. Explicit With*
// calls after FromConfig override it.
func (b *Builder) FromConfig(cfg *config.Config) *Builder {
	if cfg == nil {
		return b
	}
	b.config.BaseURL = cfg.Client.BaseURL
	if cfg.Client.Timeout > 0 {
		b.config.Timeout = cfg.Client.Timeout
	}
	if cfg.Client.RateLimit > 0 {
		b.WithRateLimit(rate.Limit(cfg.Client.RateLimit), cfg.Client.RateBurst)
	}
	if cfg.Client.Dedupe {
		b.WithDeduplication()
	}
	if cfg.Client.TraceHeader != "" {
		b.WithTraceHeader(cfg.Client.TraceHeader)
	}
	if cfg.Client.W3CTrace {
		b.WithW3CTrace()
	}
	if cfg.Retry.Max > 0 {
		b.defaultRetry.Retries = cfg.Retry.Max
		b.defaultRetry.DelayFunc = BackoffDelayFunc(
			cfg.Retry.Strategy, cfg.Retry.Delay, cfg.Retry.MaxDelay, cfg.Retry.Multiplier, cfg.Retry.Jitter)
		b.retrySet = true
	}
	if cfg.Log.Payloads {
		b.WithPayloadLogging(cfg.Log.MaxPayloadBytes)
	}
	if cfg.Metrics.Enabled {
		b.WithMetrics(nil)
	}
	return b
}

// NewRegistryFromConfig builds a registry with the configured CSRF settings
// applied: a static token source when a token is configured, stamped under
// the configured header.
func NewRegistryFromConfig(cfg *config.Config) *Registry {
	registry := NewRegistry()
	if cfg != nil && cfg.CSRF.Enabled && cfg.CSRF.Token != "" {
		registry.SetCSRF(cfg.CSRF.Header, StaticCSRFToken(cfg.CSRF.Token))
	}
	return registry
}

// Build creates the client with the configured options.
func (b *Builder) Build() Client {
	c := &client{
		transport: b.transport,
		logger:    b.logger,
		sanitizer: b.sanitizer,
		registry:  b.registry,
		config:    b.config,
	}
	if c.transport == nil {
		c.transport = &http.Client{}
	}
	if c.registry == nil {
		c.registry = DefaultRegistry()
	}
	if c.sanitizer == nil {
		c.sanitizer = logger.NewSanitizer(nil)
	}
	if b.retrySet {
		policy := b.defaultRetry
		c.config.Retry = &policy
	}
	if b.config.RateLimit > 0 {
		burst := b.config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(b.config.RateLimit, burst)
	}
	if b.config.DedupeIdempotent {
		c.dedupe = newDedupeGroup()
	}
	if b.metricsOn {
		c.metrics = newClientMetrics(b.meterProvider)
	}
	if b.traceOn {
		c.config.RequestInterceptors = append([]RequestInterceptor{NewTraceIDInterceptorFor(b.traceHeader)}, c.config.RequestInterceptors...)
	}
	if b.w3cTrace {
		c.config.RequestInterceptors = append([]RequestInterceptor{NewW3CTraceInterceptor()}, c.config.RequestInterceptors...)
	}
	return c
}
