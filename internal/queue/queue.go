// Package queue implements the per-node mailbox: enqueue, lease with a
// visibility timeout, complete, and abandon-with-retry-budget semantics on
// top of the circular message buffer.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/smilemakc/nodeflow/internal/buffer"
	"github.com/smilemakc/nodeflow/internal/deadletter"
	"github.com/smilemakc/nodeflow/internal/domain"
	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
)

const (
	// DefaultVisibilityTimeout is how long a leased envelope stays invisible
	// before it's eligible for opportunistic reaping.
	DefaultVisibilityTimeout = 5 * time.Minute
	// leasePollInterval bounds how long Lease blocks between Checkout
	// attempts while waiting on the wake signal.
	leasePollInterval = 50 * time.Millisecond
)

// Queue wraps one circular buffer with a waiter so Lease can block
// efficiently instead of busy-polling.
type Queue struct {
	NodeID            string
	ring              *buffer.Ring
	visibilityTimeout time.Duration
	sink              *deadletter.Sink

	mu     sync.Mutex
	wakeCh chan struct{}
}

func New(nodeID string, capacity int, visibilityTimeout time.Duration, sink *deadletter.Sink) *Queue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = DefaultVisibilityTimeout
	}
	return &Queue{
		NodeID:            nodeID,
		ring:              buffer.New(capacity),
		visibilityTimeout: visibilityTimeout,
		sink:              sink,
		wakeCh:            make(chan struct{}, 1),
	}
}

// Enqueue inserts env and wakes one parked Lease call.
func (q *Queue) Enqueue(env *domain.Envelope) buffer.InsertResult {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	if env.EnqueueCount == 0 {
		env.EnqueueCount = 1
	}
	result := q.ring.Insert(env)
	q.wake()
	return result
}

func (q *Queue) wake() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

// Lease blocks until an envelope is available, ctx is cancelled, or maxWait
// elapses, whichever comes first.
func (q *Queue) Lease(ctx context.Context, maxWait time.Duration) (*domain.Lease, bool) {
	deadline := time.Now().Add(maxWait)
	for {
		if lease, ok := q.ring.Checkout(time.Now(), q.visibilityTimeout); ok {
			return lease, true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		wait := leasePollInterval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.wakeCh:
			// loop and retry checkout immediately
		case <-time.After(wait):
			// loop and retry, re-checking the deadline
		}
	}
}

// CompleteLease frees the leased slot.
func (q *Queue) CompleteLease(leaseID string) error {
	if !q.ring.Complete(leaseID) {
		return domainerrors.StaleLease("complete: lease " + leaseID + " not found")
	}
	return nil
}

// AbandonLease either schedules a redelivery (computing delay from policy)
// or, if the envelope's retry budget is exhausted, moves it to the dead
// letter sink and frees its slot.
func (q *Queue) AbandonLease(leaseID string, env *domain.Envelope, policy domain.RetryPolicy) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultRetryPolicy().MaxAttempts
	}

	if env.EnqueueCount >= maxAttempts {
		if !q.ring.Complete(leaseID) {
			return domainerrors.StaleLease("abandon: lease " + leaseID + " not found")
		}
		if q.sink != nil {
			q.sink.Add(q.NodeID, env, "max attempts exceeded")
		}
		return nil
	}

	delay := Delay(policy, env.EnqueueCount)
	nextVisible := time.Now().Add(delay)
	if !q.ring.Abandon(leaseID, nextVisible) {
		return domainerrors.StaleLease("abandon: lease " + leaseID + " not found")
	}
	q.wake()
	return nil
}

func (q *Queue) Len() int {
	return q.ring.Len()
}
