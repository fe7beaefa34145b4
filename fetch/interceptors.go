package fetch

import (
	"context"
	"net/http"

	"github.com/gaborage/go-fetch/trace"
)

const (
	// HeaderXRequestID is the standard header name for request correlation
	HeaderXRequestID = trace.HeaderRequestID
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = trace.HeaderTraceParent
	// HeaderTraceState is the W3C trace context "tracestate" header name
	HeaderTraceState = trace.HeaderTraceState
)

// NewTraceIDInterceptor creates a request interceptor that stamps the request
// correlation ID from context onto outbound requests, generating one when the
// context carries none. An already-set header is preserved.
func NewTraceIDInterceptor() RequestInterceptor {
	return NewTraceIDInterceptorFor(HeaderXRequestID)
}

// NewTraceIDInterceptorFor creates a trace ID interceptor using a custom
// header name.
func NewTraceIDInterceptorFor(header string) RequestInterceptor {
	if header == "" {
		header = HeaderXRequestID
	}
	return func(ctx context.Context, req *http.Request) (*Response, error) {
		if req.Header.Get(header) == "" {
			req.Header.Set(header, trace.EnsureID(ctx))
		}
		return nil, nil
	}
}

// NewW3CTraceInterceptor creates a request interceptor that propagates W3C
// Trace Context headers from the caller context, generating a traceparent
// when none is present.
func NewW3CTraceInterceptor() RequestInterceptor {
	return func(ctx context.Context, req *http.Request) (*Response, error) {
		if req.Header.Get(HeaderTraceParent) == "" {
			parent, ok := trace.ParentFrom(ctx)
			if !ok {
				parent = trace.NewParent()
			}
			req.Header.Set(HeaderTraceParent, parent)
		}
		if req.Header.Get(HeaderTraceState) == "" {
			if state, ok := trace.StateFrom(ctx); ok {
				req.Header.Set(HeaderTraceState, state)
			}
		}
		return nil, nil
	}
}
