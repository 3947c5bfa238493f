// Package nodeflow is a concurrent, in-process workflow execution engine: a
// user-supplied directed graph of nodes connected by typed message edges,
// run with at-least-once delivery, lease-based redelivery and a small set
// of built-in control-flow nodes (IfElse, Switch, ForEach, While, Subflow,
// Container).
//
// Construct an Engine, describe a graph as a WorkflowDefinition, and call
// Start:
//
//	eng := nodeflow.New(nodeflow.DefaultConfig())
//	runCtx, err := eng.Start(ctx, def, nil, 0)
//	instances := eng.GetNodeInstances(runCtx.RunID)
package nodeflow

import (
	"context"
	"time"

	"github.com/smilemakc/nodeflow/internal/domain"
	"github.com/smilemakc/nodeflow/internal/engine"
	"github.com/smilemakc/nodeflow/internal/infrastructure/monitoring"
)

// Re-exported domain types. These are the vocabulary callers build workflow
// definitions and read run results with; everything else is an
// implementation detail behind internal/.
type (
	WorkflowDefinition   = domain.WorkflowDefinition
	NodeDefinition       = domain.NodeDefinition
	Connection           = domain.Connection
	RetryPolicy          = domain.RetryPolicy
	RuntimeKind          = domain.RuntimeKind
	MessageKind          = domain.MessageKind
	NodeStatus           = domain.NodeStatus
	RunStatus            = domain.RunStatus
	NodeInstance         = domain.NodeInstance
	NodeExecutionContext = domain.NodeExecutionContext
	WorkflowContext      = domain.WorkflowContext
)

// Runtime kinds a NodeDefinition.RuntimeKind may declare.
const (
	RuntimeScript    = domain.RuntimeScript
	RuntimeTask      = domain.RuntimeTask
	RuntimeIfElse    = domain.RuntimeIfElse
	RuntimeSwitch    = domain.RuntimeSwitch
	RuntimeForEach   = domain.RuntimeForEach
	RuntimeWhile     = domain.RuntimeWhile
	RuntimeSubflow   = domain.RuntimeSubflow
	RuntimeContainer = domain.RuntimeContainer
	RuntimeTimer     = domain.RuntimeTimer
)

// Message kinds a Connection.TriggerKind may declare.
const (
	MessageComplete = domain.MessageComplete
	MessageFail     = domain.MessageFail
	MessageNext     = domain.MessageNext
	MessageProgress = domain.MessageProgress
)

// Terminal node statuses.
const (
	NodeStatusCompleted = domain.NodeStatusCompleted
	NodeStatusFailed    = domain.NodeStatusFailed
	NodeStatusCancelled = domain.NodeStatusCancelled
)

// Terminal run statuses.
const (
	RunStatusCompleted = domain.RunStatusCompleted
	RunStatusFailed    = domain.RunStatusFailed
	RunStatusCancelled = domain.RunStatusCancelled
)

// Config and ValidationResult are re-exported so callers never need to
// import internal/engine directly.
type (
	Config           = engine.Config
	ValidationResult = engine.ValidationResult
)

// DefaultConfig returns the engine's default runtime limits: queue capacity
// 1024, visibility timeout 5 minutes, idle-trigger timeout 10 seconds,
// default workflow wait 30 seconds.
func DefaultConfig() Config {
	return engine.DefaultConfig()
}

// Validate runs the workflow validator against def without executing it.
func Validate(def WorkflowDefinition) ValidationResult {
	return engine.Validate(def)
}

// Engine executes WorkflowDefinitions. The zero value is not usable; build
// one with New.
type Engine struct {
	inner *engine.Engine
}

// New builds an Engine from cfg. Pass DefaultConfig() for the engine's
// built-in defaults, or a zero Config to get the same defaults applied
// automatically.
func New(cfg Config) *Engine {
	return &Engine{inner: engine.New(cfg)}
}

// Start instantiates def, seeds its entry points and runs until every
// produced message has been fully processed, ctx is cancelled, or the
// effective timeout elapses (the timeout argument if positive, otherwise
// the definition's Timeout, otherwise the engine's configured default).
//
// It returns the run's terminal WorkflowContext even on failure or
// cancellation; callers inspect WorkflowContext.Status and
// WorkflowContext.NodeErrors rather than treating a non-nil error as the
// sole failure signal. A non-nil error means def failed validation, or a
// node failed to initialize, before any node ran.
func (e *Engine) Start(ctx context.Context, def WorkflowDefinition, initialGlobals map[string]any, timeout time.Duration) (*WorkflowContext, error) {
	return e.inner.Start(ctx, def, initialGlobals, timeout)
}

// GetNodeInstances returns every node instance recorded for runID, in the
// order recorded (one per leased message, plus a Cancelled record for each
// node never triggered), for post-run inspection.
func (e *Engine) GetNodeInstances(runID string) []NodeInstance {
	return e.inner.GetNodeInstances(runID)
}

// AIUsage returns accumulated token counts and cost estimates across every
// OpenAI-backed Task node this Engine has executed, for any workflow.
func (e *Engine) AIUsage() monitoring.AIMetrics {
	return e.inner.AIUsage()
}
