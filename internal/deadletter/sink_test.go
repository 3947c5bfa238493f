package deadletter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/nodeflow/internal/domain"
)

func TestSinkAddAndCount(t *testing.T) {
	s := New()
	env := &domain.Envelope{SourceID: "a", Timestamp: time.Now()}

	s.Add("node-1", env, "max attempts exceeded")
	s.Add("node-2", env, "max attempts exceeded")

	assert.Equal(t, 2, s.Count())
	assert.Len(t, s.ForNode("node-1"), 1)
	assert.Len(t, s.ForNode("node-3"), 0)
}

func TestSinkEntriesIsSnapshot(t *testing.T) {
	s := New()
	s.Add("node-1", &domain.Envelope{}, "reason")

	entries := s.Entries()
	entries[0].Reason = "mutated"

	assert.Equal(t, "reason", s.Entries()[0].Reason)
}
