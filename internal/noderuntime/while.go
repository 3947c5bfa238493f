package noderuntime

import (
	"context"
	"fmt"

	"github.com/smilemakc/nodeflow/internal/domain"
	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
)

const defaultMaxIterations = 1000

// WhileNode implements the feedback-loop control node. It is re-entered once
// per pass: each invocation evaluates Condition. While true it emits a Next
// envelope to the loop body on port "LoopBody" and completes itself on the
// sentinel port "IterationCheck" (the validator rejects any Complete
// connection whose source port is "IterationCheck", so this completion
// routes nowhere). Once false it
// completes on port "LoopBody" so whatever follows the loop in the graph
// runs next. The per-run iteration counter lives in workflow globals, keyed
// by node id, since a single WhileNode value is shared across every pass of
// one run.
type WhileNode struct {
	id            string
	condition     string
	maxIterations int
}

func (n *WhileNode) Initialize(def domain.NodeDefinition) error {
	n.id = def.ID
	condition, err := requireString(def, "Condition")
	if err != nil {
		return err
	}
	n.condition = condition

	n.maxIterations = defaultMaxIterations
	if raw, ok := def.Configuration["MaxIterations"]; ok {
		if f, ok := raw.(float64); ok && f > 0 {
			n.maxIterations = int(f)
		} else if i, ok := raw.(int); ok && i > 0 {
			n.maxIterations = i
		}
	}
	return nil
}

func (n *WhileNode) counterKey() string {
	return "__while_" + n.id + "_iterations"
}

func (n *WhileNode) Execute(ctx context.Context, wfCtx *domain.WorkflowContext, execCtx *domain.NodeExecutionContext, deps Deps) (domain.NodeStatus, error) {
	// Step 1: read the current pass count for this node in this run.
	count := 0
	if raw, ok := wfCtx.Globals.Get(n.counterKey()); ok {
		if c, ok := raw.(int); ok {
			count = c
		}
	}

	// Step 2: a node that has already reached its budget fails rather than
	// looping forever on a condition that never goes false.
	if count >= n.maxIterations {
		return domain.NodeStatusFailed, domainerrors.Runtime(n.id, fmt.Sprintf("maximum iterations exceeded (%d)", n.maxIterations), nil)
	}

	// Step 3: evaluate the loop condition against the current state.
	vars := map[string]any{
		"input":  execCtx.InputData,
		"local":  execCtx.LocalVariables,
		"global": wfCtx.Globals.Snapshot(),
	}
	result, err := deps.Evaluator.EvalBool(n.condition, vars)
	if err != nil {
		return domain.NodeStatusFailed, err
	}

	execCtx.OutputData["ConditionResult"] = result

	// Step 4: condition is false, the loop exits. The exit is reported on
	// port "LoopBody" so a downstream node wired to that Complete edge runs
	// after the loop, distinct from the Next envelope the true branch emits
	// on the same port name.
	if !result {
		execCtx.OutputData["IterationCount"] = count
		wfCtx.Globals.Delete(n.counterKey())
		execCtx.SourcePort = "LoopBody"
		return domain.NodeStatusCompleted, nil
	}

	// Step 5: condition is true, drive one more pass: emit the loop body and
	// report own completion on the "IterationCheck" sentinel port, from which
	// the validator allows no Complete connection.
	iterationIndex := count
	count++
	wfCtx.Globals.Set(n.counterKey(), count)
	deps.Emit(&domain.Envelope{
		Kind:       domain.MessageNext,
		SourceID:   n.id,
		SourcePort: "LoopBody",
		OutputData: map[string]any{"iterationIndex": iterationIndex},
	})
	execCtx.SourcePort = "IterationCheck"
	return domain.NodeStatusCompleted, nil
}
