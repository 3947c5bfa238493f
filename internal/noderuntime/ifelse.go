package noderuntime

import (
	"context"

	"github.com/smilemakc/nodeflow/internal/domain"
)

// IfElseNode evaluates a single boolean expression once per invocation and
// routes to one of two source ports accordingly. It never fails on a false
// result — only a missing Condition or a raising expression is a failure.
type IfElseNode struct {
	id        string
	condition string
}

func (n *IfElseNode) Initialize(def domain.NodeDefinition) error {
	n.id = def.ID
	condition, err := requireString(def, "Condition")
	if err != nil {
		return err
	}
	n.condition = condition
	return nil
}

func (n *IfElseNode) Execute(ctx context.Context, wfCtx *domain.WorkflowContext, execCtx *domain.NodeExecutionContext, deps Deps) (domain.NodeStatus, error) {
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
	if result {
		execCtx.OutputData["BranchTaken"] = "TrueBranch"
		execCtx.SourcePort = "TrueBranch"
	} else {
		execCtx.OutputData["BranchTaken"] = "FalseBranch"
		execCtx.SourcePort = "FalseBranch"
	}
	return domain.NodeStatusCompleted, nil
}
