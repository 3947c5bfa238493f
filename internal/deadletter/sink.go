// Package deadletter holds the process-wide collector for envelopes that
// exhausted their node's retry budget.
package deadletter

import (
	"sync"
	"time"

	"github.com/smilemakc/nodeflow/internal/domain"
)

// Entry is one dead-lettered envelope plus why it landed here.
type Entry struct {
	NodeID    string
	Envelope  *domain.Envelope
	Reason    string
	Timestamp time.Time
}

// Sink is an append-only, thread-safe collection. There is no retry path
// out of the sink in this package; it exists for enumeration and counting.
type Sink struct {
	mu      sync.RWMutex
	entries []Entry
}

func New() *Sink {
	return &Sink{}
}

func (s *Sink) Add(nodeID string, env *domain.Envelope, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{
		NodeID:    nodeID,
		Envelope:  env,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

func (s *Sink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a snapshot copy; mutating it does not affect the sink.
func (s *Sink) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ForNode filters the snapshot to one node id.
func (s *Sink) ForNode(nodeID string) []Entry {
	var out []Entry
	for _, e := range s.Entries() {
		if e.NodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}
