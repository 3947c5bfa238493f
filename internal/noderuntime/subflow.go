package noderuntime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smilemakc/nodeflow/internal/domain"
	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
)

// SubflowNode runs a nested workflow as a brand new, fully isolated run: its
// globals start empty except for whatever InputMappings copies in from the
// parent, and only OutputMappings copies anything back out. A failed
// subflow fails the Subflow node itself rather than being silently absorbed.
type SubflowNode struct {
	id             string
	workflow       domain.WorkflowDefinition
	inputMappings  map[string]string // child global key -> parent global key
	outputMappings map[string]string // parent output key -> child global key
	timeout        time.Duration
}

func (n *SubflowNode) Initialize(def domain.NodeDefinition) error {
	n.id = def.ID

	raw, ok := def.Configuration["Workflow"]
	if !ok {
		return domainerrors.Configuration(def.ID, "missing required configuration field: Workflow")
	}
	wf, ok := raw.(domain.WorkflowDefinition)
	if !ok {
		return domainerrors.Configuration(def.ID, "Workflow configuration must be a workflow definition")
	}
	n.workflow = wf

	n.inputMappings = stringMap(def, "InputMappings")
	n.outputMappings = stringMap(def, "OutputMappings")

	if raw, ok := def.Configuration["TimeoutSeconds"]; ok {
		if f, ok := raw.(float64); ok && f > 0 {
			n.timeout = time.Duration(f) * time.Second
		}
	}
	return nil
}

func stringMap(def domain.NodeDefinition, key string) map[string]string {
	raw, ok := def.ConfigMap(key)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func (n *SubflowNode) Execute(ctx context.Context, wfCtx *domain.WorkflowContext, execCtx *domain.NodeExecutionContext, deps Deps) (domain.NodeStatus, error) {
	parentGlobals := wfCtx.Globals.Snapshot()
	initial := make(map[string]any, len(n.inputMappings))
	for childKey, parentKey := range n.inputMappings {
		if v, ok := parentGlobals[parentKey]; ok {
			initial[childKey] = v
		}
	}

	childCtx, err := deps.Runner.RunSubflow(ctx, n.workflow, initial, n.timeout)
	if err != nil {
		return domain.NodeStatusFailed, err
	}

	execCtx.OutputData["SubflowRunID"] = childCtx.RunID
	execCtx.OutputData["SubflowStatus"] = string(childCtx.Status)

	switch childCtx.Status {
	case domain.RunStatusCompleted:
		// fall through to output mapping below
	case domain.RunStatusCancelled:
		return domain.NodeStatusCancelled, domainerrors.Cancelled(n.id, fmt.Sprintf("subflow run %s was cancelled", childCtx.RunID))
	default:
		detail := strings.Join(childCtx.NodeErrors, "; ")
		if detail == "" {
			detail = fmt.Sprintf("subflow run %s ended with status %s", childCtx.RunID, childCtx.Status)
		}
		return domain.NodeStatusFailed, domainerrors.Runtime(n.id, detail, nil)
	}

	for parentKey, childKey := range n.outputMappings {
		if v, ok := childCtx.Globals.Get(childKey); ok {
			execCtx.OutputData[parentKey] = v
		}
	}
	return domain.NodeStatusCompleted, nil
}
