// Package resilience guards calls into external script/expression evaluation
// backends (e.g. an LLM completion call from a Task node) so a failing
// backend doesn't get hammered by every retry a node's own RetryPolicy would
// otherwise issue.
package resilience

import (
	"time"

	"github.com/sony/gobreaker"

	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
)

type Config struct {
	FailureThreshold uint32
	SuccessThreshold uint32
	OpenTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: 30 * time.Second}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker with the node package's
// call signature: a zero-argument thunk returning a boxed result or error.
// It trips open once FailureThreshold consecutive calls fail, rejects calls
// while open, and after OpenTimeout admits up to SuccessThreshold half-open
// calls, closing again once that many succeed in a row.
type CircuitBreaker struct {
	inner *gobreaker.CircuitBreaker
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultConfig()
	}
	settings := gobreaker.Settings{
		Name:        "task-node-evaluator",
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &CircuitBreaker{inner: gobreaker.NewCircuitBreaker(settings)}
}

// Call runs fn if the breaker permits it, tracking the outcome.
func (cb *CircuitBreaker) Call(fn func() (any, error)) (any, error) {
	result, err := cb.inner.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, domainerrors.Runtime("", "circuit breaker is open, evaluator backend unavailable", err)
	}
	return result, err
}

// State reports the breaker's current state for diagnostics.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.inner.State()
}
