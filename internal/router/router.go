// Package router implements the message router: it maps an outgoing
// envelope from a source node to zero or more target queues, filtered by
// message kind, port labels and a boolean condition expression.
package router

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/nodeflow/internal/domain"
	"github.com/smilemakc/nodeflow/internal/queue"
)

// Queues is the minimal view of the engine's per-node mailboxes the router
// needs: enough to enqueue a freshly routed envelope.
type Queues interface {
	Get(nodeID string) (*queue.Queue, bool)
}

// Router is built once from a workflow's enabled connections and is
// read-mostly (and therefore safe for concurrent use) for the rest of the
// run.
type Router struct {
	bySource  map[string][]domain.Connection
	evaluator Evaluator
	log       zerolog.Logger
}

// New groups connections by source id, keeping only enabled ones, sorted by
// descending priority and then by original declaration order.
func New(connections []domain.Connection, evaluator Evaluator, log zerolog.Logger) *Router {
	bySource := make(map[string][]domain.Connection)
	for _, c := range connections {
		if !c.Enabled {
			continue
		}
		bySource[c.SourceID] = append(bySource[c.SourceID], c)
	}
	// Within each source, stable-sort by descending priority; ties keep
	// their original declaration order because the slice above was already
	// built in that order and sort.SliceStable preserves it.
	for src, conns := range bySource {
		sort.SliceStable(conns, func(i, j int) bool {
			return conns[i].Priority > conns[j].Priority
		})
		bySource[src] = conns
	}
	return &Router{bySource: bySource, evaluator: evaluator, log: log}
}

// Route evaluates every enabled connection from srcNodeID against env and,
// for each one that fires, enqueues a fresh envelope onto its target's
// queue. Routing to zero surviving targets is legal and silent.
func (r *Router) Route(srcNodeID string, env *domain.Envelope, queues Queues) int {
	connections := r.bySource[srcNodeID]
	routed := 0
	for _, c := range connections {
		if !r.gate(c, env) {
			continue
		}
		target, ok := queues.Get(c.TargetID)
		if !ok {
			r.log.Warn().Str("source", srcNodeID).Str("target", c.TargetID).Msg("connection targets unknown node, dropping")
			continue
		}
		fresh := &domain.Envelope{
			Kind:       c.EffectiveTriggerKind(),
			SourceID:   srcNodeID,
			SourcePort: env.SourcePort,
			OutputData: env.OutputData,
			Err:        env.Err,
			Timestamp:  time.Now(),
		}
		target.Enqueue(fresh)
		routed++
	}
	return routed
}

func (r *Router) gate(c domain.Connection, env *domain.Envelope) bool {
	if c.EffectiveTriggerKind() != env.Kind {
		return false
	}
	if c.SourcePort != "" && c.SourcePort != env.SourcePort {
		return false
	}
	// TargetPort labels which logical input of a multi-port control-flow
	// node this connection feeds; plain nodes have a single default port,
	// so an unset TargetPort always matches and a set one is accepted
	// as-is (the target node is responsible for port-specific behavior,
	// e.g. a While's feedback edge).
	if c.Condition == "" {
		return true
	}
	ok, err := r.evaluator.EvalBool(c.Condition, env.OutputData)
	if err != nil {
		// Fail-safe: a raising condition means the connection does not fire.
		r.log.Debug().Err(err).Str("condition", c.Condition).Msg("condition evaluation failed, gating connection closed")
		return false
	}
	return ok
}
