package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// signalMode identifies which cancellation sources are armed for one attempt.
type signalMode int

const (
	// signalNone: no timeout and an uncancellable caller context; the
	// transport cannot be cancelled by this layer.
	signalNone signalMode = iota
	// signalTimeout: only the per-attempt timeout is armed.
	signalTimeout
	// signalExternal: only the caller's cancellation is armed.
	signalExternal
	// signalCombined: both sources are armed; either firing cancels the
	// attempt and attribution decides which one did.
	signalCombined
)

// timeoutCause marks a cancellation as originating from the per-attempt
// timeout, so a deadline firing can be told apart from the caller cancelling
// even when both are armed.
type timeoutCause struct {
	timeout time.Duration
}

func (c *timeoutCause) Error() string {
	return fmt.Sprintf("attempt timed out after %s", c.timeout)
}

// attemptSignal is the effective cancellation signal of one attempt plus the
// state needed to attribute a failure to its cause afterwards.
type attemptSignal struct {
	mode    signalMode
	timeout time.Duration
	ctx     context.Context
	caller  context.Context
}

// composeSignal merges the caller context and the per-request timeout into
// the attempt context handed to the transport. The returned settle func must
// run on every exit path of the attempt; it releases the timeout timer so a
// deadline can never fire after the attempt settled. The composer never adds
// cancellation it was not given: without a timeout the caller context passes
// through untouched.
func composeSignal(ctx context.Context, timeout time.Duration) (context.Context, func(), *attemptSignal) {
	sig := &attemptSignal{caller: ctx, timeout: timeout}

	external := ctx.Done() != nil
	if timeout <= 0 {
		if external {
			sig.mode = signalExternal
		} else {
			sig.mode = signalNone
		}
		sig.ctx = ctx
		return ctx, func() {}, sig
	}

	if external {
		sig.mode = signalCombined
	} else {
		sig.mode = signalTimeout
	}
	attemptCtx, cancel := context.WithTimeoutCause(ctx, timeout, &timeoutCause{timeout: timeout})
	sig.ctx = attemptCtx
	return attemptCtx, func() { cancel() }, sig
}

// classify attributes a transport failure. The timeout sentinel wins over the
// caller's cancellation when both fired; failures unrelated to cancellation
// fall through to the heuristic classifier.
func (s *attemptSignal) classify(err error, method, url string) ClientError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		var tc *timeoutCause
		if errors.As(context.Cause(s.ctx), &tc) {
			terr := NewTimeoutError(fmt.Sprintf("request timed out after %s", tc.timeout), tc.timeout)
			attachRequestContext(terr, method, url)
			return terr
		}
		if callerErr := s.caller.Err(); callerErr != nil {
			if errors.Is(callerErr, context.DeadlineExceeded) {
				terr := NewTimeoutError("caller deadline exceeded", 0)
				attachRequestContext(terr, method, url)
				return terr
			}
			aerr := NewAbortedError("request aborted by caller", context.Cause(s.caller))
			attachRequestContext(aerr, method, url)
			return aerr
		}
	}
	return classifyTransportError(err, method, url)
}
