package logger

import (
	"context"
	"sync/atomic"
)

// contextKey is the type for context keys to avoid collisions.
type contextKey string

// callCounterKey tracks the number of outbound HTTP calls made under a caller
// context; the engine reports it as Stats.CallCount on every response.
const callCounterKey contextKey = "http_call_counter"

// WithCallCounter returns a context carrying an outbound-call counter. Calls
// made with a context that lacks a counter are simply not counted.
func WithCallCounter(ctx context.Context) context.Context {
	counter := int64(0)
	return context.WithValue(ctx, callCounterKey, &counter)
}

// IncrementCallCounter records one outbound HTTP call on the context counter.
func IncrementCallCounter(ctx context.Context) {
	if counter, ok := ctx.Value(callCounterKey).(*int64); ok && counter != nil {
		atomic.AddInt64(counter, 1)
	}
}

// GetCallCount returns the number of outbound HTTP calls recorded on ctx.
func GetCallCount(ctx context.Context) int64 {
	if counter, ok := ctx.Value(callCounterKey).(*int64); ok && counter != nil {
		return atomic.LoadInt64(counter)
	}
	return 0
}
