// Package trace carries correlation identifiers across request boundaries. The
// engine stamps outbound requests with a request ID and, when enabled, W3C
// Trace Context headers sourced from these helpers.
package trace

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// contextKey is the type for context keys to avoid collisions.
type contextKey string

const (
	idKey     contextKey = "trace_id"
	parentKey contextKey = "traceparent"
	stateKey  contextKey = "tracestate"

	// HeaderRequestID is the conventional header for request correlation.
	HeaderRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header name.
	HeaderTraceParent = "traceparent"
	// HeaderTraceState is the W3C trace context "tracestate" header name.
	HeaderTraceState = "tracestate"
)

// WithID returns a context carrying the given trace ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// IDFrom returns the trace ID carried by ctx, if any.
func IDFrom(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(idKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureID returns the trace ID carried by ctx, generating a fresh one when
// none is present.
func EnsureID(ctx context.Context) string {
	if id, ok := IDFrom(ctx); ok {
		return id
	}
	return uuid.New().String()
}

// WithParent returns a context carrying a W3C traceparent value.
func WithParent(ctx context.Context, parent string) context.Context {
	return context.WithValue(ctx, parentKey, parent)
}

// ParentFrom returns the traceparent carried by ctx, if any.
func ParentFrom(ctx context.Context) (string, bool) {
	if tp, ok := ctx.Value(parentKey).(string); ok && tp != "" {
		return tp, true
	}
	return "", false
}

// WithState returns a context carrying a W3C tracestate value.
func WithState(ctx context.Context, state string) context.Context {
	return context.WithValue(ctx, stateKey, state)
}

// StateFrom returns the tracestate carried by ctx, if any.
func StateFrom(ctx context.Context) (string, bool) {
	if ts, ok := ctx.Value(stateKey).(string); ok && ts != "" {
		return ts, true
	}
	return "", false
}

// NewParent creates a minimal W3C traceparent header value:
// version(2)-trace-id(32)-span-id(16)-flags(2), e.g. "00-<32 hex>-<16 hex>-01".
// Trace and span IDs are random and never all-zero.
func NewParent() string {
	traceID := make([]byte, 16)
	spanID := make([]byte, 8)
	if _, err := crand.Read(traceID); err != nil {
		traceID = []byte(strings.Repeat("\x00", 16))
	}
	if _, err := crand.Read(spanID); err != nil {
		spanID = []byte(strings.Repeat("\x00", 8))
	}
	if allZero(traceID) {
		traceID[len(traceID)-1] = 0x01
	}
	if allZero(spanID) {
		spanID[len(spanID)-1] = 0x01
	}
	return "00-" + hex.EncodeToString(traceID) + "-" + hex.EncodeToString(spanID) + "-01"
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
