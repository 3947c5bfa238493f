package noderuntime

import (
	"context"
	"reflect"

	"github.com/smilemakc/nodeflow/internal/domain"
	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
	"github.com/smilemakc/nodeflow/internal/utils"
)

// ForEachNode evaluates CollectionExpression once, then emits one Next
// envelope per item on the "LoopBody" source port via deps.Emit rather than
// returning a single result — the loop body is a subgraph reached through
// ordinary routing, not a call ForEachNode makes itself.
type ForEachNode struct {
	id                   string
	collectionExpression string
	itemVariableName     string
}

func (n *ForEachNode) Initialize(def domain.NodeDefinition) error {
	n.id = def.ID
	expr, err := requireString(def, "CollectionExpression")
	if err != nil {
		return err
	}
	n.collectionExpression = expr

	itemVar, _ := def.ConfigString("ItemVariableName")
	n.itemVariableName = utils.DefaultValue(itemVar, "item")
	return nil
}

func (n *ForEachNode) Execute(ctx context.Context, wfCtx *domain.WorkflowContext, execCtx *domain.NodeExecutionContext, deps Deps) (domain.NodeStatus, error) {
	vars := map[string]any{
		"input":  execCtx.InputData,
		"local":  execCtx.LocalVariables,
		"global": wfCtx.Globals.Snapshot(),
	}
	result, err := deps.Evaluator.Eval(n.collectionExpression, vars)
	if err != nil {
		return domain.NodeStatusFailed, err
	}

	items, err := toSlice(result)
	if err != nil {
		return domain.NodeStatusFailed, domainerrors.Runtime(n.id, "CollectionExpression did not yield an iterable value", err)
	}

	indexKey := n.itemVariableName + "Index"
	for i, item := range items {
		select {
		case <-ctx.Done():
			return domain.NodeStatusCancelled, domainerrors.Cancelled(n.id, "execution cancelled mid-iteration")
		default:
		}
		wfCtx.Globals.Set(n.itemVariableName, item)
		wfCtx.Globals.Set(indexKey, i)
		deps.Emit(&domain.Envelope{
			Kind:       domain.MessageNext,
			SourceID:   n.id,
			SourcePort: "LoopBody",
			OutputData: map[string]any{
				n.itemVariableName: item,
				indexKey:           i,
			},
		})
	}

	execCtx.OutputData["ItemsProcessed"] = len(items)
	execCtx.OutputData["TotalItems"] = len(items)
	return domain.NodeStatusCompleted, nil
}

// toSlice reflects result into a []any, accepting any slice or array type
// (including []any itself). A nil or non-iterable result is an error: a
// ForEach with nothing to iterate is a configuration mistake, not a
// zero-iteration no-op.
func toSlice(result any) ([]any, error) {
	if result == nil {
		return nil, domainerrors.Runtime("", "value is nil", nil)
	}
	v := reflect.ValueOf(result)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = v.Index(i).Interface()
		}
		return out, nil
	default:
		return nil, domainerrors.Runtime("", "value is not a slice or array", nil)
	}
}
