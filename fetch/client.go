package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaborage/go-fetch/logger"
	"github.com/gaborage/go-fetch/trace"
)

const (
	// DefaultTimeout is the default per-attempt timeout
	DefaultTimeout = 30 * time.Second

	// DefaultMaxPayloadLogBytes caps logged body previews
	DefaultMaxPayloadLogBytes = 1024
)

// Client is the request execution entry point. Every call yields exactly one
// settled outcome: a consumable *Response or a ClientError.
type Client interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method Method, req *Request) (*Response, error)
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Config holds the client-level defaults applied to every request the client
// executes. Descriptor fields override their Config counterparts per request.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	Retry              *RetryPolicy
	DefaultHeaders     map[string]string
	BasicAuth          *BasicAuth
	LogPayloads        bool
	MaxPayloadLogBytes int

	// Client-local interceptor chains, applied to every request this client
	// creates, ordered after the globals and before descriptor-local ones in
	// the request phase.
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	ErrorInterceptors    []ErrorInterceptor

	// RateLimit throttles transport calls client-side when positive; waiting
	// honors the attempt context.
	RateLimit rate.Limit
	RateBurst int

	// DedupeIdempotent coalesces concurrent identical GET/HEAD calls into a
	// single transport call shared by all waiters.
	DedupeIdempotent bool
}

// client implements the Client interface
type client struct {
	transport Doer
	logger    logger.Logger
	sanitizer *logger.Sanitizer
	registry  *Registry
	config    *Config
	limiter   *rate.Limiter
	dedupe    *dedupeGroup
	metrics   *clientMetrics
	callCount int64
}

// NewClient creates a client with default configuration, the default registry
// and the shared http transport.
func NewClient(log logger.Logger) Client {
	return NewBuilder(log).Build()
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, MethodGet, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, MethodPost, req)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, MethodPut, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, MethodPatch, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, MethodDelete, req)
}

// Do performs a request with the given method, overriding the descriptor's.
func (c *client) Do(ctx context.Context, method Method, req *Request) (*Response, error) {
	if req == nil {
		return nil, NewValidationError("request cannot be nil", "request")
	}
	req.Method = method
	return c.Execute(ctx, req)
}

// Execute drives the retry loop around the attempt pipeline and returns the
// single settled outcome of the request.
func (c *client) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	// Policy fields are read once per run; attempts never observe a
	// mid-flight change to the descriptor's retry configuration.
	policy := req.Retry
	if policy == nil {
		policy = c.config.Retry
	}
	budget := policy.attempts()
	method := c.methodOf(req)
	targetURL := c.resolveURL(req)

	start := time.Now()
	callNum := atomic.AddInt64(&c.callCount, 1)
	traceID := trace.EnsureID(ctx)

	c.metrics.addInFlight(ctx, 1)
	defer c.metrics.addInFlight(ctx, -1)

	var lastErr error
	for attempt := 0; attempt < budget; attempt++ {
		resp, err := c.attempt(ctx, req, attempt, method, targetURL, traceID)
		if err == nil {
			resp.Stats = Stats{ElapsedTime: time.Since(start), Attempts: attempt + 1, CallCount: callNum}
			c.logResponse(resp, traceID)
			c.metrics.recordRequest(ctx, string(method), resp.StatusCode(), "", time.Since(start))
			return resp, nil
		}
		lastErr = err

		// Configuration errors are programmer mistakes, never retried.
		if IsErrorType(err, ValidationError) {
			break
		}
		if attempt == budget-1 {
			break
		}

		retryNumber := attempt + 1
		if policy != nil && policy.OnRetry != nil {
			policy.OnRetry(ctx, retryNumber, err)
		}
		delay, delayErr := policy.delayFor(retryNumber, err)
		if delayErr != nil {
			lastErr = delayErr
			break
		}
		c.metrics.recordRetry(ctx, string(method))
		if sleepErr := sleepBeforeRetry(ctx, delay); sleepErr != nil {
			attachRequestContext(sleepErr, string(method), targetURL)
			lastErr = sleepErr
			break
		}
	}

	c.logFailure(string(method), targetURL, traceID, lastErr)
	c.metrics.recordRequest(ctx, string(method), 0, string(errorTypeOf(lastErr)), time.Since(start))
	return nil, lastErr
}

// attempt runs one full pipeline pass: request phase, transport (unless
// short-circuited), error phase with recovery, then response phase. The
// effective signal is settled on every exit path by the deferred teardown.
func (c *client) attempt(ctx context.Context, r *Request, attempt int, method Method, targetURL, traceID string) (*Response, error) {
	// Snapshot the global chains once per attempt; registry mutations
	// mid-flight affect only later attempts.
	requestChain := concatChains(c.registry.RequestInterceptors(), c.config.RequestInterceptors, r.RequestInterceptors)
	responseChain := concatChains(c.config.ResponseInterceptors, r.ResponseInterceptors, reverseChain(c.registry.ResponseInterceptors()))
	errorChain := concatChains(c.config.ErrorInterceptors, r.ErrorInterceptors, reverseChain(c.registry.ErrorInterceptors()))

	attemptCtx, settle, sig := composeSignal(ctx, c.timeoutFor(r))
	defer settle()

	httpReq, err := c.buildRequest(attemptCtx, r, attempt, method, targetURL)
	if err != nil {
		return nil, err
	}
	if err := c.applyCSRF(attemptCtx, httpReq); err != nil {
		return nil, err
	}

	c.logRequest(httpReq, r.Body.preview(), traceID)

	resp, err := c.performAttempt(attemptCtx, r, httpReq, sig, requestChain)
	if err != nil {
		resp, err = c.runErrorChain(attemptCtx, r, httpReq, err, errorChain)
		if err != nil {
			return nil, err
		}
	}

	if err := c.runResponseChain(attemptCtx, httpReq, resp, responseChain); err != nil {
		return nil, err
	}
	return resp, nil
}

// performAttempt runs the request phase and the transport call, producing a
// wrapped response or a classified error.
func (c *client) performAttempt(ctx context.Context, r *Request, httpReq *http.Request, sig *attemptSignal, chain []RequestInterceptor) (*Response, error) {
	method := httpReq.Method
	targetURL := httpReq.URL.String()

	for _, interceptor := range chain {
		short, err := interceptor(ctx, httpReq)
		if err != nil {
			ierr := NewInterceptorError("request interceptor failed", "request", err)
			attachRequestContext(ierr, httpReq.Method, httpReq.URL.String())
			return nil, ierr
		}
		if short != nil {
			// Short-circuit: the transport never runs for this attempt.
			c.adopt(short, r, method, targetURL)
			return c.checkStatus(short, method, targetURL)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, sig.classify(ctx.Err(), method, targetURL)
			}
			return nil, sig.classify(err, method, targetURL)
		}
	}

	logger.IncrementCallCounter(ctx)
	raw, err := c.roundTrip(r, httpReq)
	if err != nil {
		return nil, sig.classify(err, method, targetURL)
	}

	resp := wrapResponse(raw, method, targetURL)
	c.adopt(resp, r, method, targetURL)
	return c.checkStatus(resp, method, targetURL)
}

// roundTrip delegates to the transport, coalescing idempotent duplicates when
// deduplication is enabled.
func (c *client) roundTrip(r *Request, httpReq *http.Request) (*http.Response, error) {
	if c.dedupe != nil && r.Body == nil &&
		(httpReq.Method == http.MethodGet || httpReq.Method == http.MethodHead) {
		return c.dedupe.do(httpReq.Context(), c.transport, httpReq)
	}
	return c.transport.Do(httpReq)
}

// checkStatus classifies the response status: a 2xx passes through, a zero
// status (possible only on synthetic responses) is a network-level failure
// rather than an HTTP one, and anything >= 300 becomes an HTTP error with the
// response attached and still readable once.
func (c *client) checkStatus(resp *Response, method, targetURL string) (*Response, error) {
	status := resp.StatusCode()
	if status == 0 {
		nerr := NewNetworkError("response carries no HTTP status", nil)
		attachRequestContext(nerr, method, targetURL)
		return nil, nerr
	}
	if status >= 300 {
		herr := &httpError{
			message:    statusMessage(status),
			statusCode: status,
			response:   resp,
			method:     method,
			url:        targetURL,
			stack:      callers(),
		}
		return nil, herr
	}
	return resp, nil
}

// runErrorChain gives every error interceptor a chance to replace the current
// classified error or recover the attempt with a response. Recovery is final:
// once an interceptor returns a response, no later interceptor observes the
// original error.
func (c *client) runErrorChain(ctx context.Context, r *Request, httpReq *http.Request, cause error, chain []ErrorInterceptor) (*Response, error) {
	current := cause
	for _, interceptor := range chain {
		resp, err := interceptor(ctx, httpReq, current)
		if resp != nil {
			c.adopt(resp, r, httpReq.Method, httpReq.URL.String())
			return resp, nil
		}
		if err == nil {
			continue
		}
		if !isClientError(err) {
			ierr := NewInterceptorError("error interceptor returned an unclassified error", "error", err)
			attachRequestContext(ierr, httpReq.Method, httpReq.URL.String())
			err = ierr
		}
		current = err
	}
	return nil, current
}

// runResponseChain runs the response phase over successful, short-circuited
// and recovered responses alike.
func (c *client) runResponseChain(ctx context.Context, httpReq *http.Request, resp *Response, chain []ResponseInterceptor) error {
	for _, interceptor := range chain {
		if err := interceptor(ctx, httpReq, resp); err != nil {
			ierr := NewInterceptorError("response interceptor failed", "response", err)
			method, targetURL := resp.Method(), resp.URL()
			if method == "" && targetURL == "" {
				method, targetURL = httpReq.Method, httpReq.URL.String()
			}
			attachRequestContext(ierr, method, targetURL)
			return ierr
		}
	}
	return nil
}

// adopt stamps request diagnostics and GraphQL flags onto a response,
// including synthetic ones built by interceptors.
func (c *client) adopt(resp *Response, r *Request, method, targetURL string) {
	if resp.method == "" {
		resp.method = method
	}
	if resp.url == "" {
		resp.url = targetURL
	}
	resp.graphQL = r.GraphQL
	resp.graphQLRaise = r.GraphQL && !r.GraphQLKeepErrors
}

// buildRequest constructs the attempt's *http.Request with merged headers,
// body and auth applied.
func (c *client) buildRequest(ctx context.Context, r *Request, attempt int, method Method, targetURL string) (*http.Request, error) {
	bodyReader, err := r.Body.reader(attempt)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(method), targetURL, bodyReader)
	if err != nil {
		return nil, NewValidationError("failed to create HTTP request: "+err.Error(), "url")
	}

	// Client defaults first, then descriptor headers; http.Header.Set
	// canonicalizes keys so the merge is case-insensitive last-write-wins.
	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range r.Headers {
		httpReq.Header.Set(key, value)
	}
	if httpReq.Header.Get("Content-Type") == "" && r.Body != nil && r.Body.contentType != "" {
		httpReq.Header.Set("Content-Type", r.Body.contentType)
	}

	auth := r.Auth
	if auth == nil {
		auth = c.config.BasicAuth
	}
	if auth != nil {
		httpReq.SetBasicAuth(auth.Username, auth.Password)
	}
	return httpReq, nil
}

// applyCSRF stamps the registry's anti-CSRF header, reading the token source
// once per attempt. An existing header is never overwritten.
func (c *client) applyCSRF(ctx context.Context, httpReq *http.Request) error {
	settings := c.registry.csrfSnapshot()
	if !settings.enabled || settings.source == nil {
		return nil
	}
	if httpReq.Header.Get(settings.header) != "" {
		return nil
	}
	token, err := settings.source.Token(ctx)
	if err != nil {
		ierr := NewInterceptorError("CSRF token source failed", "request", err)
		attachRequestContext(ierr, httpReq.Method, httpReq.URL.String())
		return ierr
	}
	if token != "" {
		httpReq.Header.Set(settings.header, token)
	}
	return nil
}

// validateRequest validates the descriptor before the first attempt
func (c *client) validateRequest(req *Request) error {
	if req == nil {
		return NewValidationError("request cannot be nil", "request")
	}
	if req.URL == "" {
		return NewValidationError("URL cannot be empty", "url")
	}
	return nil
}

func (c *client) methodOf(r *Request) Method {
	if r.Method == "" {
		return MethodGet
	}
	return r.Method
}

func (c *client) timeoutFor(r *Request) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return c.config.Timeout
}

// resolveURL joins relative descriptor URLs onto the client base URL and
// appends the ordered query parameters.
func (c *client) resolveURL(r *Request) string {
	target := r.URL
	if c.config.BaseURL != "" && !strings.Contains(target, "://") {
		target = strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(target, "/")
	}
	if len(r.Query) > 0 {
		if parsed, err := url.Parse(target); err == nil {
			parsed.RawQuery = encodeQuery(parsed.RawQuery, r.Query)
			target = parsed.String()
		}
	}
	return target
}

func errorTypeOf(err error) ErrorType {
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type()
	}
	return ""
}

func concatChains[T any](chains ...[]T) []T {
	total := 0
	for _, chain := range chains {
		total += len(chain)
	}
	if total == 0 {
		return nil
	}
	out := make([]T, 0, total)
	for _, chain := range chains {
		out = append(out, chain...)
	}
	return out
}
