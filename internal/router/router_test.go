package router

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/nodeflow/internal/domain"
	"github.com/smilemakc/nodeflow/internal/queue"
)

type fakeQueues struct {
	queues map[string]*queue.Queue
}

func (f fakeQueues) Get(id string) (*queue.Queue, bool) {
	q, ok := f.queues[id]
	return q, ok
}

func newTestQueues(ids ...string) fakeQueues {
	m := map[string]*queue.Queue{}
	for _, id := range ids {
		m[id] = queue.New(id, 8, time.Minute, nil)
	}
	return fakeQueues{queues: m}
}

func TestRouteBasicMatch(t *testing.T) {
	conns := []domain.Connection{
		{SourceID: "a", TargetID: "b", TriggerKind: domain.MessageComplete, Enabled: true},
	}
	r := New(conns, NewExprEvaluator(), zerolog.Nop())
	qs := newTestQueues("b")

	routed := r.Route("a", &domain.Envelope{Kind: domain.MessageComplete}, qs)
	assert.Equal(t, 1, routed)

	lease, ok := qs.queues["b"].Lease(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, domain.MessageComplete, lease.Envelope.Kind)
}

func TestRouteKindMismatchDoesNotFire(t *testing.T) {
	conns := []domain.Connection{
		{SourceID: "a", TargetID: "b", TriggerKind: domain.MessageFail, Enabled: true},
	}
	r := New(conns, NewExprEvaluator(), zerolog.Nop())
	qs := newTestQueues("b")

	routed := r.Route("a", &domain.Envelope{Kind: domain.MessageComplete}, qs)
	assert.Equal(t, 0, routed)
}

func TestRouteSourcePortMismatch(t *testing.T) {
	conns := []domain.Connection{
		{SourceID: "a", TargetID: "b", TriggerKind: domain.MessageComplete, SourcePort: "TrueBranch", Enabled: true},
	}
	r := New(conns, NewExprEvaluator(), zerolog.Nop())
	qs := newTestQueues("b")

	routed := r.Route("a", &domain.Envelope{Kind: domain.MessageComplete, SourcePort: "FalseBranch"}, qs)
	assert.Equal(t, 0, routed)
}

func TestRouteConditionFailSafe(t *testing.T) {
	conns := []domain.Connection{
		{SourceID: "a", TargetID: "b", TriggerKind: domain.MessageComplete, Condition: "undefinedFunc()", Enabled: true},
	}
	r := New(conns, NewExprEvaluator(), zerolog.Nop())
	qs := newTestQueues("b")

	routed := r.Route("a", &domain.Envelope{Kind: domain.MessageComplete, OutputData: map[string]any{}}, qs)
	assert.Equal(t, 0, routed, "a raising condition must gate the connection closed, not panic or fire")
}

func TestRouteConditionTruthy(t *testing.T) {
	conns := []domain.Connection{
		{SourceID: "a", TargetID: "b", TriggerKind: domain.MessageComplete, Condition: "count > 100", Enabled: true},
	}
	r := New(conns, NewExprEvaluator(), zerolog.Nop())
	qs := newTestQueues("b")

	routed := r.Route("a", &domain.Envelope{Kind: domain.MessageComplete, OutputData: map[string]any{"count": 150}}, qs)
	assert.Equal(t, 1, routed)
}

func TestRoutePriorityOrderDoesNotAffectFanOut(t *testing.T) {
	conns := []domain.Connection{
		{SourceID: "a", TargetID: "low", TriggerKind: domain.MessageComplete, Priority: 1, Enabled: true},
		{SourceID: "a", TargetID: "high", TriggerKind: domain.MessageComplete, Priority: 10, Enabled: true},
	}
	r := New(conns, NewExprEvaluator(), zerolog.Nop())
	qs := newTestQueues("low", "high")

	routed := r.Route("a", &domain.Envelope{Kind: domain.MessageComplete}, qs)
	assert.Equal(t, 2, routed, "priority only tie-breaks evaluation order, every matching connection still fires")
}

func TestRouteDisabledConnectionNeverFires(t *testing.T) {
	conns := []domain.Connection{
		{SourceID: "a", TargetID: "b", TriggerKind: domain.MessageComplete, Enabled: false},
	}
	r := New(conns, NewExprEvaluator(), zerolog.Nop())
	qs := newTestQueues("b")

	routed := r.Route("a", &domain.Envelope{Kind: domain.MessageComplete}, qs)
	assert.Equal(t, 0, routed)
}
