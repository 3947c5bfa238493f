// Package buffer implements the bounded, concurrent-safe ring of message
// envelopes every node message queue is built on.
package buffer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smilemakc/nodeflow/internal/domain"
)

// DefaultCapacity is the ring size used when a queue doesn't override it.
const DefaultCapacity = 1024

type slot struct {
	mu       sync.Mutex
	status   domain.SlotStatus
	envelope *domain.Envelope
}

// Ring is a fixed-capacity circular buffer of envelope slots. Every slot
// transition is made under that slot's own lock, which is what lets
// independent producers and consumers touch different slots without
// contending on a single buffer-wide lock.
type Ring struct {
	slots      []*slot
	capacity   int
	writeCursor int64
	readCursor  int64

	cursorMu sync.Mutex // guards writeCursor/readCursor advancement only
}

func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Ring{slots: make([]*slot, capacity), capacity: capacity}
	for i := range r.slots {
		r.slots[i] = &slot{status: domain.SlotEmpty}
	}
	return r
}

// InsertResult distinguishes a plain success from the oldest-Ready eviction
// path and the full-of-in-flight failure.
type InsertResult int

const (
	InsertOK InsertResult = iota
	InsertEvictedOldestReady
	InsertFullOfInFlight
)

// Insert places env in the first Empty slot found by a linear scan from the
// write cursor. If none is Empty, it evicts the oldest Ready slot instead;
// InFlight slots are never evicted.
func (r *Ring) Insert(env *domain.Envelope) InsertResult {
	r.cursorMu.Lock()
	start := int(r.writeCursor % int64(r.capacity))
	r.writeCursor++
	r.cursorMu.Unlock()

	for i := 0; i < r.capacity; i++ {
		idx := (start + i) % r.capacity
		s := r.slots[idx]
		s.mu.Lock()
		if s.status == domain.SlotEmpty {
			s.status = domain.SlotReady
			s.envelope = env
			s.mu.Unlock()
			return InsertOK
		}
		s.mu.Unlock()
	}

	oldestIdx := -1
	var oldestTS time.Time
	for i := 0; i < r.capacity; i++ {
		s := r.slots[i]
		s.mu.Lock()
		if s.status == domain.SlotReady {
			if oldestIdx == -1 || s.envelope.Timestamp.Before(oldestTS) {
				oldestIdx = i
				oldestTS = s.envelope.Timestamp
			}
		}
		s.mu.Unlock()
	}
	if oldestIdx == -1 {
		return InsertFullOfInFlight
	}
	s := r.slots[oldestIdx]
	s.mu.Lock()
	if s.status == domain.SlotReady {
		s.status = domain.SlotReady
		s.envelope = env
		s.mu.Unlock()
		return InsertEvictedOldestReady
	}
	s.mu.Unlock()
	// Lost the race to another inserter; fall back to a fresh scan.
	return r.Insert(env)
}

// Checkout scans from the read cursor for the first Ready slot whose
// VisibleAt has passed, leases it for visibilityTimeout, and returns its
// envelope. It also reaps any InFlight slot whose lease has expired before
// continuing the scan, which is the "handler crashed" redelivery path.
func (r *Ring) Checkout(now time.Time, visibilityTimeout time.Duration) (*domain.Lease, bool) {
	r.cursorMu.Lock()
	start := int(r.readCursor % int64(r.capacity))
	r.readCursor++
	r.cursorMu.Unlock()

	for i := 0; i < r.capacity; i++ {
		idx := (start + i) % r.capacity
		s := r.slots[idx]
		s.mu.Lock()

		if s.status == domain.SlotInFlight && !s.envelope.VisibleAt.After(now) {
			s.status = domain.SlotReady
			s.envelope.EnqueueCount++
			s.envelope.LeaseID = ""
		}

		if s.status == domain.SlotReady && !s.envelope.VisibleAt.After(now) {
			leaseID := uuid.NewString()
			s.envelope.LeaseID = leaseID
			s.envelope.VisibleAt = now.Add(visibilityTimeout)
			s.status = domain.SlotInFlight
			env := s.envelope
			s.mu.Unlock()
			return &domain.Lease{ID: leaseID, Envelope: env}, true
		}
		s.mu.Unlock()
	}
	return nil, false
}

// Complete transitions the InFlight slot matching leaseID to Empty, freeing
// it. Complete and Abandon are O(capacity) by design: they scan by lease id.
func (r *Ring) Complete(leaseID string) bool {
	for _, s := range r.slots {
		s.mu.Lock()
		if s.status == domain.SlotInFlight && s.envelope != nil && s.envelope.LeaseID == leaseID {
			s.status = domain.SlotEmpty
			s.envelope = nil
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()
	}
	return false
}

// Abandon transitions the InFlight slot matching leaseID back to Ready and
// increments its enqueue count, making it visible to the next Checkout
// once nextVisibleAt, which Abandon stores as the slot's VisibleAt, has passed.
func (r *Ring) Abandon(leaseID string, nextVisibleAt time.Time) bool {
	for _, s := range r.slots {
		s.mu.Lock()
		if s.status == domain.SlotInFlight && s.envelope != nil && s.envelope.LeaseID == leaseID {
			s.envelope.EnqueueCount++
			s.envelope.LeaseID = ""
			s.envelope.VisibleAt = nextVisibleAt
			s.status = domain.SlotReady
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()
	}
	return false
}

// Len reports how many slots are not Empty, for diagnostics/tests.
func (r *Ring) Len() int {
	n := 0
	for _, s := range r.slots {
		s.mu.Lock()
		if s.status != domain.SlotEmpty {
			n++
		}
		s.mu.Unlock()
	}
	return n
}
