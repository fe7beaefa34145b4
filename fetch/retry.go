package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaborage/go-fetch/internal/backoff"
)

// RetryPolicy controls the attempt loop of one request. Retries counts the
// additional attempts beyond the first: zero (or a nil policy) means exactly
// one attempt, no retry, no delay. Negative values fail closed to zero rather
// than looping.
type RetryPolicy struct {
	// Retries is the number of additional attempts after the first.
	Retries int
	// Delay is the fixed wait between attempts. Ignored when DelayFunc is set.
	Delay time.Duration
	// DelayFunc computes the wait before a retry. Attempt is 1-indexed and
	// counts retries; err is the classified error of the failed attempt. A
	// negative result is a fatal misconfiguration that ends the sequence
	// immediately.
	DelayFunc func(attempt int, err error) time.Duration
	// OnRetry is invoked before each retry with the attempt number and the
	// classified error. It may block; the retry waits for it.
	OnRetry func(ctx context.Context, attempt int, err error)
}

// attempts returns the total attempt budget, failing closed on malformed
// retry counts.
func (p *RetryPolicy) attempts() int {
	if p == nil || p.Retries <= 0 {
		return 1
	}
	return 1 + p.Retries
}

// delayFor computes and validates the wait before the given retry.
func (p *RetryPolicy) delayFor(attempt int, err error) (time.Duration, error) {
	if p == nil {
		return 0, nil
	}
	if p.DelayFunc != nil {
		delay := p.DelayFunc(attempt, err)
		if delay < 0 {
			return 0, NewValidationError(
				fmt.Sprintf("retry delay function returned an invalid duration: %s", delay), "retryDelay")
		}
		return delay, nil
	}
	if p.Delay < 0 {
		return 0, NewValidationError(
			fmt.Sprintf("retry delay is negative: %s", p.Delay), "retryDelay")
	}
	return p.Delay, nil
}

// BackoffDelayFunc builds a RetryPolicy.DelayFunc from a named backoff
// strategy ("fixed", "exponential" or "decorrelated") with the given bounds.
func BackoffDelayFunc(strategy string, initial, maximum time.Duration, multiplier, jitter float64) func(attempt int, err error) time.Duration {
	s := backoff.ForName(strategy)
	if initial < 0 {
		initial = 0
	}
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	if multiplier < 1 {
		multiplier = 2.0
	}
	return func(attempt int, _ error) time.Duration {
		return s.Delay(attempt, initial, maximum, multiplier, jitter)
	}
}

// sleepBeforeRetry waits for the inter-attempt delay, racing the timer
// against the caller context so a cancellation during the wait settles the
// request immediately. The timer is released on every path.
func sleepBeforeRetry(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NewTimeoutError("caller deadline exceeded during retry wait", 0)
		}
		return NewAbortedError("request aborted during retry wait", context.Cause(ctx))
	}
}
