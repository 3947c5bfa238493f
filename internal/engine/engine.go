package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/smilemakc/nodeflow/internal/deadletter"
	"github.com/smilemakc/nodeflow/internal/domain"
	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
	"github.com/smilemakc/nodeflow/internal/infrastructure/monitoring"
	"github.com/smilemakc/nodeflow/internal/noderuntime"
	"github.com/smilemakc/nodeflow/internal/queue"
	"github.com/smilemakc/nodeflow/internal/router"
)

const (
	DefaultQueueCapacity     = 1024
	DefaultVisibilityTimeout = 5 * time.Minute
	DefaultIdleLeaseWait     = 200 * time.Millisecond
	DefaultIdleTriggerWait   = 10 * time.Second
	DefaultRunTimeout        = 30 * time.Second
)

// Config bundles everything a run needs that isn't part of the workflow
// definition itself.
type Config struct {
	QueueCapacity      int
	VisibilityTimeout  time.Duration
	IdleLeaseWait      time.Duration
	IdleTriggerTimeout time.Duration
	DefaultTimeout     time.Duration
	Evaluator          router.Evaluator
	Observers          *monitoring.ObserverManager
	Log                zerolog.Logger
	Tracer             trace.Tracer
	AIUsage            *monitoring.AIUsageTracker
}

func DefaultConfig() Config {
	return Config{
		QueueCapacity:      DefaultQueueCapacity,
		VisibilityTimeout:  DefaultVisibilityTimeout,
		IdleLeaseWait:      DefaultIdleLeaseWait,
		IdleTriggerTimeout: DefaultIdleTriggerWait,
		DefaultTimeout:     DefaultRunTimeout,
		Evaluator:          router.NewExprEvaluator(),
		Observers:          monitoring.NewObserverManager(),
		Log:                zerolog.Nop(),
		Tracer:             otel.Tracer("github.com/smilemakc/nodeflow"),
		AIUsage:            monitoring.NewAIUsageTracker(),
	}
}

// Engine executes WorkflowDefinitions. It is safe for concurrent use: each
// Start call owns its own queues, router and node instances, sharing only
// the Config and instance ledger.
type Engine struct {
	cfg Config

	instMu    sync.RWMutex
	instances map[string][]*domain.NodeInstance // runID -> every instance recorded
}

func New(cfg Config) *Engine {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if cfg.IdleLeaseWait <= 0 {
		cfg.IdleLeaseWait = DefaultIdleLeaseWait
	}
	if cfg.IdleTriggerTimeout <= 0 {
		cfg.IdleTriggerTimeout = DefaultIdleTriggerWait
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultRunTimeout
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = router.NewExprEvaluator()
	}
	if cfg.Observers == nil {
		cfg.Observers = monitoring.NewObserverManager()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/smilemakc/nodeflow")
	}
	if cfg.AIUsage == nil {
		cfg.AIUsage = monitoring.NewAIUsageTracker()
	}
	return &Engine{cfg: cfg, instances: make(map[string][]*domain.NodeInstance)}
}

// queueMap adapts a plain map to the router.Queues interface.
type queueMap map[string]*queue.Queue

func (m queueMap) Get(nodeID string) (*queue.Queue, bool) {
	q, ok := m[nodeID]
	return q, ok
}

// runCounter tracks outstanding work units across a run so Start knows when
// to stop waiting: every envelope in flight (leased, being processed, or
// sitting in a queue) holds one unit. A producer increments before handing
// an envelope to a consumer and the consumer decrements only once its own
// processing — including routing whatever it produced — is complete. The
// count can only reach zero once no envelope anywhere remains unaccounted
// for, so closing done exactly at that transition is race-free.
type runCounter struct {
	pending int64
	done    chan struct{}
	once    sync.Once
}

func newRunCounter() *runCounter {
	return &runCounter{done: make(chan struct{})}
}

func (r *runCounter) add(n int64) {
	if n == 0 {
		return
	}
	atomic.AddInt64(&r.pending, n)
}

func (r *runCounter) complete() {
	if atomic.AddInt64(&r.pending, -1) == 0 {
		r.once.Do(func() { close(r.done) })
	}
}

// Start instantiates def, seeds its entry points, and runs until every
// produced message has been fully processed, ctx is cancelled, or the
// effective timeout elapses.
func (e *Engine) Start(ctx context.Context, def domain.WorkflowDefinition, initialGlobals map[string]any, timeout time.Duration) (*domain.WorkflowContext, error) {
	if result := Validate(def); !result.OK() {
		return nil, domainerrors.Graph(fmt.Sprintf("workflow %q failed validation: %v", def.ID, result.Errors))
	}

	effectiveTimeout := def.Timeout
	if timeout > 0 {
		effectiveTimeout = timeout
	}
	if effectiveTimeout <= 0 {
		effectiveTimeout = e.cfg.DefaultTimeout
	}

	runCtx, span := e.cfg.Tracer.Start(ctx, "workflow.run")
	defer span.End()
	runCtx, cancel := context.WithTimeout(runCtx, effectiveTimeout)
	defer cancel()

	runID := uuid.NewString()
	globals := domain.NewGlobalsFrom(def.DefaultVariables)
	for k, v := range initialGlobals {
		globals.Set(k, v)
	}
	wfCtx := domain.NewWorkflowContext(runID, def.ID, globals)
	started := time.Now()
	e.cfg.Observers.NotifyRunStarted(wfCtx)

	nodes, queues, err := e.buildNodes(def, runID)
	if err != nil {
		wfCtx.Status = domain.RunStatusFailed
		e.cfg.Observers.NotifyRunFailed(wfCtx, err, time.Since(started))
		return wfCtx, err
	}

	rtr := router.New(def.Connections, e.cfg.Evaluator, e.cfg.Log)
	run := newRunCounter()

	var wg sync.WaitGroup
	for nodeID, node := range nodes {
		nodeID, node := nodeID, node
		policy := retryPolicyFor(def, nodeID)
		deps := e.depsFor(nodeID, rtr, queues, run, wfCtx)
		wg.Add(1)
		go e.consumeLoop(runCtx, &wg, nodeID, node, queues[nodeID], rtr, queues, wfCtx, run, policy, deps)
	}

	entries := def.EntryPoints()
	for _, entryID := range entries {
		q, ok := queues[entryID]
		if !ok {
			continue
		}
		run.add(1)
		q.Enqueue(&domain.Envelope{
			Kind:       domain.MessageComplete,
			SourceID:   "__trigger__",
			OutputData: map[string]any{},
			Timestamp:  time.Now(),
		})
	}
	if len(entries) == 0 {
		run.once.Do(func() { close(run.done) }) // nothing seeded, trivially quiescent
	}

	select {
	case <-run.done:
	case <-runCtx.Done():
	}
	cancel()
	wg.Wait()

	wfCtx.EndTime = time.Now()
	wfCtx.NodeErrors = e.nodeErrors(runID)
	switch {
	case len(wfCtx.NodeErrors) > 0:
		// A failed node always wins, even under external cancellation or timeout.
		wfCtx.Status = domain.RunStatusFailed
	case ctx.Err() != nil:
		wfCtx.Status = domain.RunStatusCancelled
	case runCtx.Err() != nil:
		wfCtx.Status = domain.RunStatusFailed
		wfCtx.PendingOrRunning = e.pendingNodes(runID)
	default:
		wfCtx.Status = domain.RunStatusCompleted
	}
	if len(wfCtx.NodeErrors) > 0 {
		globals.Set("__node_errors", strings.Join(wfCtx.NodeErrors, "; "))
	}

	if wfCtx.Status == domain.RunStatusCompleted {
		e.cfg.Observers.NotifyRunCompleted(wfCtx, time.Since(started))
	} else {
		e.cfg.Observers.NotifyRunFailed(wfCtx, domainerrors.Runtime("", "run did not complete successfully", nil), time.Since(started))
	}
	return wfCtx, nil
}

func (e *Engine) buildNodes(def domain.WorkflowDefinition, runID string) (map[string]noderuntime.Node, queueMap, error) {
	sink := deadletter.New()
	nodes := make(map[string]noderuntime.Node, len(def.Nodes))
	queues := make(queueMap, len(def.Nodes))
	for _, nd := range def.Nodes {
		node, err := noderuntime.Factory(nd.RuntimeKind)
		if err != nil {
			return nil, nil, err
		}
		if err := node.Initialize(nd); err != nil {
			return nil, nil, err
		}
		nodes[nd.ID] = node
		queues[nd.ID] = queue.New(nd.ID, e.cfg.QueueCapacity, e.cfg.VisibilityTimeout, sink)
	}
	return nodes, queues, nil
}

func retryPolicyFor(def domain.WorkflowDefinition, nodeID string) domain.RetryPolicy {
	nd, ok := def.NodeByID(nodeID)
	if !ok || nd.RetryPolicy == nil {
		return domain.DefaultRetryPolicy()
	}
	return *nd.RetryPolicy
}

func (e *Engine) depsFor(nodeID string, rtr *router.Router, queues queueMap, run *runCounter, wfCtx *domain.WorkflowContext) noderuntime.Deps {
	return noderuntime.Deps{
		Evaluator: e.cfg.Evaluator,
		Log:       e.cfg.Log,
		Runner:    e,
		AIUsage:   e.cfg.AIUsage,
		Emit: func(env *domain.Envelope) {
			if env.SourceID == "" {
				env.SourceID = nodeID
			}
			if env.Timestamp.IsZero() {
				env.Timestamp = time.Now()
			}
			routed := rtr.Route(nodeID, env, queues)
			run.add(int64(routed))
		},
	}
}

// consumeLoop drives one node for the lifetime of a run. A node that never
// receives a single message before either ctx is cancelled or its own idle
// deadline elapses is recorded Cancelled ("never triggered"), e.g. the
// untaken branch of an IfElse.
func (e *Engine) consumeLoop(ctx context.Context, wg *sync.WaitGroup, nodeID string, node noderuntime.Node, q *queue.Queue, rtr *router.Router, queues queueMap, wfCtx *domain.WorkflowContext, run *runCounter, policy domain.RetryPolicy, deps noderuntime.Deps) {
	defer wg.Done()
	executed := false
	deadline := time.Now().Add(e.cfg.IdleTriggerTimeout)
	for {
		select {
		case <-ctx.Done():
			if !executed {
				e.recordNeverTriggered(wfCtx, nodeID)
			}
			return
		default:
		}
		if !executed && time.Now().After(deadline) {
			e.recordNeverTriggered(wfCtx, nodeID)
			return
		}
		lease, ok := q.Lease(ctx, e.cfg.IdleLeaseWait)
		if !ok {
			continue
		}
		executed = true
		e.processLease(ctx, nodeID, node, q, rtr, queues, wfCtx, run, policy, deps, lease)
	}
}

// recordNeverTriggered records the terminal state of a node that sat idle
// for its whole run: not an error, just a graph shape the engine tolerates
// (e.g. the false branch of an IfElse with no incoming edge ever firing).
func (e *Engine) recordNeverTriggered(wfCtx *domain.WorkflowContext, nodeID string) {
	now := time.Now()
	instance := &domain.NodeInstance{
		InstanceID: uuid.NewString(),
		NodeID:     nodeID,
		RunID:      wfCtx.RunID,
		Status:     domain.NodeStatusCancelled,
		StartTime:  now,
		EndTime:    now,
		Context:    domain.NewNodeExecutionContext(nil),
	}
	e.recordInstance(wfCtx.RunID, instance)
	e.cfg.Log.Debug().Str("run_id", wfCtx.RunID).Str("node_id", nodeID).Msg("node never triggered")
}

// processLease executes one leased envelope against node and routes its
// outcome. The returned bool is true once this invocation is final for the
// envelope (completed, or failed with no further retry scheduled); it is
// false when the node failed but AbandonLease scheduled a redelivery.
func (e *Engine) processLease(ctx context.Context, nodeID string, node noderuntime.Node, q *queue.Queue, rtr *router.Router, queues queueMap, wfCtx *domain.WorkflowContext, run *runCounter, policy domain.RetryPolicy, deps noderuntime.Deps, lease *domain.Lease) (*domain.NodeInstance, bool) {
	env := lease.Envelope
	execCtx := domain.NewNodeExecutionContext(env.OutputData)
	execCtx.SourcePort = env.SourcePort

	instance := &domain.NodeInstance{
		InstanceID: uuid.NewString(),
		NodeID:     nodeID,
		RunID:      wfCtx.RunID,
		Status:     domain.NodeStatusRunning,
		StartTime:  time.Now(),
		Context:    execCtx,
	}
	e.recordInstance(wfCtx.RunID, instance)
	e.cfg.Observers.NotifyNodeStarted(instance)

	nodeCtx, span := e.cfg.Tracer.Start(ctx, "node.execute")
	status, err := node.Execute(nodeCtx, wfCtx, execCtx, deps)
	span.End()

	instance.EndTime = time.Now()
	instance.Status = status
	duration := instance.EndTime.Sub(instance.StartTime)

	switch status {
	case domain.NodeStatusCompleted:
		if cErr := q.CompleteLease(lease.ID); cErr != nil {
			e.cfg.Log.Warn().Err(cErr).Str("node_id", nodeID).Msg("complete on stale lease")
		}
		e.cfg.Observers.NotifyNodeCompleted(instance, duration)

		out := &domain.Envelope{
			Kind:       domain.MessageComplete,
			SourceID:   nodeID,
			SourcePort: execCtx.SourcePort,
			OutputData: execCtx.OutputData,
			Timestamp:  time.Now(),
		}
		routed := rtr.Route(nodeID, out, queues)
		run.add(int64(routed))
		run.complete()

	case domain.NodeStatusCancelled:
		// Cancelled never produces a Fail message: it is the node's own
		// "I was aborted" outcome (context cancellation), not a raised
		// error. The lease is still abandoned subject to the node's retry
		// policy, exactly as a Failed lease would be.
		instance.ErrorCause = err
		if err != nil {
			instance.ErrorMessage = err.Error()
		}

		kind := domainerrors.KindCancelled
		if de, ok := err.(*domainerrors.Error); ok {
			kind = de.Kind
		}
		maxAttempts := policy.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = domain.DefaultRetryPolicy().MaxAttempts
		}
		willRetry := queueIsRetryable(policy, string(kind)) && env.EnqueueCount < maxAttempts

		if !willRetry {
			env.EnqueueCount = maxAttempts // force AbandonLease straight to the dead-letter path
		}
		if abErr := q.AbandonLease(lease.ID, env, policy); abErr != nil {
			e.cfg.Log.Warn().Err(abErr).Str("node_id", nodeID).Msg("abandon on stale lease")
		}

		if willRetry {
			e.cfg.Observers.NotifyNodeRetrying(instance, env.EnqueueCount, 0)
			return instance, false
		}
		run.complete()

	default: // Failed, or Execute itself raised
		instance.ErrorCause = err
		if err != nil {
			instance.ErrorMessage = err.Error()
		}

		kind := domainerrors.KindRuntime
		if de, ok := err.(*domainerrors.Error); ok {
			kind = de.Kind
		}
		retryable := queueIsRetryable(policy, string(kind))
		maxAttempts := policy.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = domain.DefaultRetryPolicy().MaxAttempts
		}
		willRetry := retryable && env.EnqueueCount < maxAttempts

		if !retryable {
			env.EnqueueCount = maxAttempts // force AbandonLease straight to the dead-letter path
		}
		if abErr := q.AbandonLease(lease.ID, env, policy); abErr != nil {
			e.cfg.Log.Warn().Err(abErr).Str("node_id", nodeID).Msg("abandon on stale lease")
		}

		if willRetry {
			e.cfg.Observers.NotifyNodeRetrying(instance, env.EnqueueCount, 0)
			return instance, false
		}

		e.cfg.Observers.NotifyNodeFailed(instance, duration, false)
		failEnv := &domain.Envelope{
			Kind:      domain.MessageFail,
			SourceID:  nodeID,
			Err:       err,
			Timestamp: time.Now(),
		}
		routed := rtr.Route(nodeID, failEnv, queues)
		run.add(int64(routed))
		run.complete()
	}
	return instance, true
}

func queueIsRetryable(policy domain.RetryPolicy, kind string) bool {
	for _, k := range policy.DoNotRetryOn {
		if k == kind {
			return false
		}
	}
	if len(policy.RetryOn) == 0 {
		return policy.Strategy != domain.RetryNone
	}
	for _, k := range policy.RetryOn {
		if k == kind {
			return true
		}
	}
	return false
}

func (e *Engine) recordInstance(runID string, instance *domain.NodeInstance) {
	e.instMu.Lock()
	defer e.instMu.Unlock()
	e.instances[runID] = append(e.instances[runID], instance)
}

// GetNodeInstances returns every node instance recorded for runID, in the
// order they were started.
func (e *Engine) GetNodeInstances(runID string) []domain.NodeInstance {
	e.instMu.RLock()
	defer e.instMu.RUnlock()
	src := e.instances[runID]
	out := make([]domain.NodeInstance, len(src))
	for i, inst := range src {
		out[i] = *inst
	}
	return out
}

// AIUsage returns the accumulated token/cost totals across every
// OpenAI-backed Task node this Engine has executed.
func (e *Engine) AIUsage() monitoring.AIMetrics {
	return e.cfg.AIUsage.Snapshot()
}

func (e *Engine) nodeErrors(runID string) []string {
	var out []string
	for _, inst := range e.GetNodeInstances(runID) {
		if inst.Status == domain.NodeStatusFailed {
			out = append(out, inst.NodeID+": "+inst.ErrorMessage)
		}
	}
	return out
}

func (e *Engine) pendingNodes(runID string) []string {
	var out []string
	for _, inst := range e.GetNodeInstances(runID) {
		if !inst.Status.IsTerminal() {
			out = append(out, inst.NodeID)
		}
	}
	return out
}

// RunSubflow satisfies noderuntime.Runner: a subflow is just a nested,
// fully isolated Start call with its own run id and globals.
func (e *Engine) RunSubflow(ctx context.Context, def domain.WorkflowDefinition, initialGlobals map[string]any, timeout time.Duration) (*domain.WorkflowContext, error) {
	return e.Start(ctx, def, initialGlobals, timeout)
}

// RunContainer satisfies noderuntime.Runner: an inline sub-graph sharing the
// parent's globals and run id, failing fast on the first child failure.
func (e *Engine) RunContainer(ctx context.Context, nodeDefs []domain.NodeDefinition, connections []domain.Connection, globals *domain.Globals, runID string) (*noderuntime.ContainerResult, error) {
	inline := domain.WorkflowDefinition{ID: runID + ":container", Nodes: nodeDefs, Connections: connections}
	nodes, queues, err := e.buildNodes(inline, runID)
	if err != nil {
		return nil, err
	}

	wfCtx := domain.NewWorkflowContext(runID, inline.ID, globals)
	rtr := router.New(connections, e.cfg.Evaluator, e.cfg.Log)
	run := newRunCounter()

	containerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var failedOnce sync.Once
	result := &noderuntime.ContainerResult{Completed: true, ChildResults: map[string]map[string]any{}}
	var resultMu sync.Mutex

	var wg sync.WaitGroup
	for nodeID, node := range nodes {
		nodeID, node := nodeID, node
		policy := retryPolicyFor(inline, nodeID)
		deps := e.depsFor(nodeID, rtr, queues, run, wfCtx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			executed := false
			deadline := time.Now().Add(e.cfg.IdleTriggerTimeout)
			for {
				select {
				case <-containerCtx.Done():
					if !executed {
						e.recordNeverTriggered(wfCtx, nodeID)
					}
					return
				default:
				}
				if !executed && time.Now().After(deadline) {
					e.recordNeverTriggered(wfCtx, nodeID)
					return
				}
				lease, ok := queues[nodeID].Lease(containerCtx, e.cfg.IdleLeaseWait)
				if !ok {
					continue
				}
				executed = true
				last, final := e.processLease(containerCtx, nodeID, node, queues[nodeID], rtr, queues, wfCtx, run, policy, deps, lease)
				if !final {
					continue // retried, not yet a final result for this pass
				}

				resultMu.Lock()
				result.ChildResults[nodeID] = last.Context.OutputData
				resultMu.Unlock()
				if last.Status == domain.NodeStatusFailed || last.Status == domain.NodeStatusCancelled {
					failedOnce.Do(func() {
						resultMu.Lock()
						result.Completed = false
						result.FailedChildID = nodeID
						result.FailedError = last.ErrorMessage
						resultMu.Unlock()
						cancel()
					})
				}
			}
		}()
	}

	for _, entryID := range inline.EntryPoints() {
		run.add(1)
		queues[entryID].Enqueue(&domain.Envelope{Kind: domain.MessageComplete, SourceID: "__container_trigger__", OutputData: map[string]any{}, Timestamp: time.Now()})
	}

	select {
	case <-run.done:
	case <-containerCtx.Done():
	}
	cancel()
	wg.Wait()

	return result, nil
}
