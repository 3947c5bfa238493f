package noderuntime

import (
	"context"
	"fmt"

	"github.com/smilemakc/nodeflow/internal/domain"
	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
)

// SwitchNode evaluates Expression once, stringifies the result, and looks it
// up in Cases (a map of match value -> port name). No match routes to the
// "Default" port rather than failing.
type SwitchNode struct {
	id         string
	expression string
	cases      map[string]string
}

func (n *SwitchNode) Initialize(def domain.NodeDefinition) error {
	n.id = def.ID
	expression, err := requireString(def, "Expression")
	if err != nil {
		return err
	}
	n.expression = expression

	raw, ok := def.ConfigMap("Cases")
	if !ok || len(raw) == 0 {
		return domainerrors.Configuration(def.ID, "missing required configuration field: Cases")
	}
	n.cases = make(map[string]string, len(raw))
	for k, v := range raw {
		port, ok := v.(string)
		if !ok || port == "" {
			return domainerrors.Configuration(def.ID, fmt.Sprintf("Cases entry %q must map to a non-empty port name", k))
		}
		n.cases[k] = port
	}
	return nil
}

func (n *SwitchNode) Execute(ctx context.Context, wfCtx *domain.WorkflowContext, execCtx *domain.NodeExecutionContext, deps Deps) (domain.NodeStatus, error) {
	vars := map[string]any{
		"input":  execCtx.InputData,
		"local":  execCtx.LocalVariables,
		"global": wfCtx.Globals.Snapshot(),
	}
	result, err := deps.Evaluator.Eval(n.expression, vars)
	if err != nil {
		return domain.NodeStatusFailed, err
	}

	key := fmt.Sprintf("%v", result)
	port, matched := n.cases[key]
	if !matched {
		port = "Default"
	}

	execCtx.OutputData["ExpressionResult"] = result
	execCtx.OutputData["MatchedCase"] = matched
	execCtx.OutputData["PortSelected"] = port
	execCtx.SourcePort = port
	return domain.NodeStatusCompleted, nil
}
