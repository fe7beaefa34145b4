// Package backoff computes inter-attempt retry delays. Strategies are pure
// functions of the attempt number and the configured bounds, so the retry
// controller can swap them without caring how a delay is derived.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry. Attempt is 1-indexed and counts
// retries, not the initial try.
type Strategy interface {
	Delay(attempt int, initial, maximum time.Duration, multiplier, jitter float64) time.Duration
}

// Fixed always returns the initial delay, ignoring attempt and bounds.
type Fixed struct{}

// Delay implements Strategy.
func (Fixed) Delay(_ int, initial, _ time.Duration, _, _ float64) time.Duration {
	if initial < 0 {
		return 0
	}
	return initial
}

// ExponentialJitter grows the delay geometrically and adds uniform jitter of
// up to jitter*delay on top, capped at maximum.
type ExponentialJitter struct{}

// Delay implements Strategy.
func (ExponentialJitter) Delay(attempt int, initial, maximum time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Exponent is capped so the float product cannot overflow a Duration.
	exp := attempt - 1
	if exp > 30 {
		exp = 30
	}

	delay := time.Duration(float64(initial) * pow(multiplier, exp))
	if delay < 0 || delay > maximum {
		delay = maximum
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+extra > maximum {
			delay = maximum
		} else {
			delay += extra
		}
	}
	return delay
}

// DecorrelatedJitter implements AWS-style decorrelated jitter: each delay is
// drawn uniformly from [initial, min(maximum, initial*3^attempt)]. Stateless,
// so the upper bound is derived from the attempt number rather than the
// previous delay.
type DecorrelatedJitter struct{}

// Delay implements Strategy.
func (DecorrelatedJitter) Delay(attempt int, initial, maximum time.Duration, _, _ float64) time.Duration {
	if attempt <= 1 {
		return initial
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initial)
	upper := base * pow(3.0, attempt-1)

	ceiling := float64(maximum)
	if upper > ceiling || upper < 0 {
		upper = ceiling
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > maximum {
		delay = maximum
	}
	return delay
}

// ForName maps a configuration string to a strategy, defaulting to
// exponential jitter for unknown names.
func ForName(name string) Strategy {
	switch name {
	case "fixed":
		return Fixed{}
	case "decorrelated":
		return DecorrelatedJitter{}
	default:
		return ExponentialJitter{}
	}
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
