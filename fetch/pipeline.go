package fetch

import (
	"context"
	"net/http"
	"sync"
)

// Doer is the transport primitive the engine delegates to. *http.Client
// satisfies it; tests inject fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to the Doer interface.
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do implements Doer.
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// RequestInterceptor runs before the transport call. It may mutate req in
// place, return (nil, nil) to continue, return a non-nil Response to
// short-circuit the transport for this attempt (the remaining request
// interceptors are skipped, response interceptors still run), or return an
// error to stop the attempt with an interceptor classification.
type RequestInterceptor func(ctx context.Context, req *http.Request) (*Response, error)

// ResponseInterceptor runs over the wrapped response after a successful
// transport call, a short-circuit or a recovery. An error stops the chain and
// fails the attempt with an interceptor classification.
type ResponseInterceptor func(ctx context.Context, req *http.Request, resp *Response) error

// ErrorInterceptor runs over the classified error of a failed attempt. It may
// return a non-nil Response to recover the attempt (the chain halts
// immediately; no later error interceptor observes the original error),
// return an error to pass the same or a replacement error down the chain, or
// return (nil, nil) to pass the current error on unchanged.
type ErrorInterceptor func(ctx context.Context, req *http.Request, err error) (*Response, error)

// CSRFTokenSource supplies anti-CSRF tokens for outbound requests. It is an
// external collaborator; the engine reads it once per attempt.
type CSRFTokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticCSRFToken is a CSRFTokenSource returning a fixed token.
type StaticCSRFToken string

// Token implements CSRFTokenSource.
func (t StaticCSRFToken) Token(context.Context) (string, error) { return string(t), nil }

type registered[T any] struct {
	id int
	fn T
}

// csrfSettings is the registry's CSRF snapshot handed to the executor.
type csrfSettings struct {
	enabled bool
	header  string
	source  CSRFTokenSource
}

// DefaultCSRFHeader is the header stamped with the CSRF token when the
// registry enables CSRF and no custom header is configured.
const DefaultCSRFHeader = "X-CSRF-Token"

// Registry holds the global interceptor chains shared across every request
// that consults it, plus process-wide CSRF settings. It is an explicit value
// passed to clients rather than ambient global state; a package-level default
// exists for convenience. Registries are safe for concurrent use: each
// attempt snapshots the chains once, so a mutation mid-flight is observed
// only by later attempts.
type Registry struct {
	mu     sync.RWMutex
	nextID int

	request  []registered[RequestInterceptor]
	response []registered[ResponseInterceptor]
	errs     []registered[ErrorInterceptor]

	csrf csrfSettings
}

// NewRegistry creates an empty interceptor registry.
func NewRegistry() *Registry {
	return &Registry{csrf: csrfSettings{header: DefaultCSRFHeader}}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used by clients that were
// not given an explicit one.
func DefaultRegistry() *Registry { return defaultRegistry }

// AddRequestInterceptor registers a global request interceptor and returns a
// handle for removal. Global request interceptors run before local ones, in
// registration order.
func (r *Registry) AddRequestInterceptor(fn RequestInterceptor) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.request = append(r.request, registered[RequestInterceptor]{id: r.nextID, fn: fn})
	return r.nextID
}

// RemoveRequestInterceptor removes a previously registered request interceptor.
func (r *Registry) RemoveRequestInterceptor(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.request = removeByID(r.request, id)
}

// RequestInterceptors returns a snapshot of the global request chain in
// registration order.
func (r *Registry) RequestInterceptors() []RequestInterceptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotChain(r.request)
}

// AddResponseInterceptor registers a global response interceptor and returns
// a handle for removal. Global response interceptors run after local ones, in
// reverse registration order.
func (r *Registry) AddResponseInterceptor(fn ResponseInterceptor) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.response = append(r.response, registered[ResponseInterceptor]{id: r.nextID, fn: fn})
	return r.nextID
}

// RemoveResponseInterceptor removes a previously registered response interceptor.
func (r *Registry) RemoveResponseInterceptor(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.response = removeByID(r.response, id)
}

// ResponseInterceptors returns a snapshot of the global response chain in
// registration order.
func (r *Registry) ResponseInterceptors() []ResponseInterceptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotChain(r.response)
}

// AddErrorInterceptor registers a global error interceptor and returns a
// handle for removal. Global error interceptors run after local ones, in
// reverse registration order.
func (r *Registry) AddErrorInterceptor(fn ErrorInterceptor) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.errs = append(r.errs, registered[ErrorInterceptor]{id: r.nextID, fn: fn})
	return r.nextID
}

// RemoveErrorInterceptor removes a previously registered error interceptor.
func (r *Registry) RemoveErrorInterceptor(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = removeByID(r.errs, id)
}

// ErrorInterceptors returns a snapshot of the global error chain in
// registration order.
func (r *Registry) ErrorInterceptors() []ErrorInterceptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotChain(r.errs)
}

// SetCSRF configures the anti-CSRF header and token source and enables
// stamping. An empty header selects DefaultCSRFHeader.
func (r *Registry) SetCSRF(header string, source CSRFTokenSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if header == "" {
		header = DefaultCSRFHeader
	}
	r.csrf = csrfSettings{enabled: source != nil, header: header, source: source}
}

// DisableCSRF turns off CSRF stamping, keeping the configured header name.
func (r *Registry) DisableCSRF() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.csrf.enabled = false
}

func (r *Registry) csrfSnapshot() csrfSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.csrf
}

// Reset clears every chain and the CSRF settings. Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.request = nil
	r.response = nil
	r.errs = nil
	r.csrf = csrfSettings{header: DefaultCSRFHeader}
	r.nextID = 0
}

func removeByID[T any](chain []registered[T], id int) []registered[T] {
	for i, entry := range chain {
		if entry.id == id {
			return append(chain[:i:i], chain[i+1:]...)
		}
	}
	return chain
}

func snapshotChain[T any](chain []registered[T]) []T {
	if len(chain) == 0 {
		return nil
	}
	out := make([]T, len(chain))
	for i, entry := range chain {
		out[i] = entry.fn
	}
	return out
}

// reverseChain returns a reversed copy so global response/error interceptors
// can mirror the request phase as a stack.
func reverseChain[T any](chain []T) []T {
	if len(chain) == 0 {
		return nil
	}
	out := make([]T, len(chain))
	for i, fn := range chain {
		out[len(chain)-1-i] = fn
	}
	return out
}
