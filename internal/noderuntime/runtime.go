// Package noderuntime implements the polymorphic node contract and the
// built-in control-flow nodes (IfElse, Switch, ForEach, While, Subflow,
// Container) plus the Script/Task leaf node.
package noderuntime

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/nodeflow/internal/domain"
	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
	"github.com/smilemakc/nodeflow/internal/infrastructure/monitoring"
	"github.com/smilemakc/nodeflow/internal/router"
)

// Node is the two-method contract every runtime kind implements.
// Initialize is called once per node instantiation and must not have side
// effects on shared state; Execute must be re-entrant, since a single Node
// object is invoked once per leased message and control-flow nodes like
// While are re-entered many times across a run via feedback edges.
//
// Execute's return value maps onto a node instance's terminal status:
// (Completed, nil), (Failed, err) or (Cancelled, err) with err a
// domainerrors KindCancelled error. The node is responsible for populating
// execCtx.OutputData and execCtx.SourcePort before returning.
type Node interface {
	Initialize(def domain.NodeDefinition) error
	Execute(ctx context.Context, wfCtx *domain.WorkflowContext, execCtx *domain.NodeExecutionContext, deps Deps) (domain.NodeStatus, error)
}

// ContainerResult is what RunContainer reports back to the Container node.
type ContainerResult struct {
	Completed     bool
	FailedChildID string
	FailedError   string
	ChildResults  map[string]map[string]any
}

// Runner is the capability Subflow and Container nodes need from the
// workflow engine without importing it directly (the engine imports this
// package to build nodes, so the dependency can't run the other way).
type Runner interface {
	// RunSubflow executes def as a brand new, fully isolated run and returns
	// its terminal context.
	RunSubflow(ctx context.Context, def domain.WorkflowDefinition, initialGlobals map[string]any, timeout time.Duration) (*domain.WorkflowContext, error)
	// RunContainer executes an inline sub-graph sharing the parent's globals
	// and run id.
	RunContainer(ctx context.Context, nodes []domain.NodeDefinition, connections []domain.Connection, globals *domain.Globals, runID string) (*ContainerResult, error)
}

// Deps bundles everything a node needs from its host engine for one
// invocation: the expression evaluator, a way to emit side-channel messages
// (used by ForEach's per-item fan-out and While's loop-body trigger), the
// Runner for nested execution, a logger, and an optional AI usage tracker
// consulted only by Task nodes configured with Executor: "openai".
type Deps struct {
	Evaluator router.Evaluator
	Emit      func(env *domain.Envelope)
	Runner    Runner
	Log       zerolog.Logger
	AIUsage   *monitoring.AIUsageTracker
}

// Factory instantiates a Node for the given runtime kind.
func Factory(kind domain.RuntimeKind) (Node, error) {
	switch kind {
	case domain.RuntimeScript, domain.RuntimeTask:
		return &TaskNode{}, nil
	case domain.RuntimeIfElse:
		return &IfElseNode{}, nil
	case domain.RuntimeSwitch:
		return &SwitchNode{}, nil
	case domain.RuntimeForEach:
		return &ForEachNode{}, nil
	case domain.RuntimeWhile:
		return &WhileNode{}, nil
	case domain.RuntimeSubflow:
		return &SubflowNode{}, nil
	case domain.RuntimeContainer:
		return &ContainerNode{}, nil
	case domain.RuntimeTimer:
		return &TaskNode{}, nil
	default:
		return nil, domainerrors.Configuration("", "unknown runtime kind: "+string(kind))
	}
}

func requireString(def domain.NodeDefinition, key string) (string, error) {
	v, ok := def.ConfigString(key)
	if !ok || v == "" {
		return "", domainerrors.Configuration(def.ID, "missing required configuration field: "+key)
	}
	return v, nil
}
