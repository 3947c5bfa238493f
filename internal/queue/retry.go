package queue

import (
	"math"
	"math/rand"
	"time"

	"github.com/smilemakc/nodeflow/internal/domain"
)

// Delay computes the redelivery backoff for the given attempt (1-based: the
// attempt that just failed) under policy. It is jittered +/-25%, capped at
// MaxDelay, and zero when the strategy is None.
func Delay(policy domain.RetryPolicy, attempt int) time.Duration {
	if policy.Strategy == domain.RetryNone || attempt <= 0 {
		return 0
	}

	base := float64(policy.InitialDelayMs)
	switch policy.Strategy {
	case domain.RetryFixed:
		// base unchanged
	case domain.RetryLinear:
		base *= float64(attempt)
	case domain.RetryExponential:
		mult := policy.Multiplier
		if mult <= 0 {
			mult = 2.0
		}
		base *= math.Pow(mult, float64(attempt-1))
	}

	maxDelay := float64(policy.MaxDelayMs)
	if maxDelay > 0 && base > maxDelay {
		base = maxDelay
	}
	if base < 0 {
		base = 0
	}

	jitter := base * 0.25
	base += (rand.Float64()*2 - 1) * jitter
	if base < 0 {
		base = 0
	}
	return time.Duration(base) * time.Millisecond
}

// IsRetryable applies the policy's allow/deny lists against an error kind
// string. An empty RetryOn means "all kinds are retryable unless denied".
func IsRetryable(policy domain.RetryPolicy, errKind string) bool {
	for _, k := range policy.DoNotRetryOn {
		if k == errKind {
			return false
		}
	}
	if len(policy.RetryOn) == 0 {
		return true
	}
	for _, k := range policy.RetryOn {
		if k == errKind {
			return true
		}
	}
	return false
}
