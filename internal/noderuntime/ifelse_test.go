package noderuntime

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/nodeflow/internal/domain"
	"github.com/smilemakc/nodeflow/internal/router"
)

func testDeps() Deps {
	return Deps{
		Evaluator: router.NewExprEvaluator(),
		Emit:      func(*domain.Envelope) {},
		Log:       zerolog.Nop(),
	}
}

func TestIfElseTrueBranch(t *testing.T) {
	n := &IfElseNode{}
	require.NoError(t, n.Initialize(domain.NodeDefinition{ID: "if1", Configuration: map[string]any{"Condition": "input.count > 10"}}))

	wfCtx := domain.NewWorkflowContext("r1", "w1", domain.NewGlobals())
	execCtx := domain.NewNodeExecutionContext(map[string]any{"count": 20})

	status, err := n.Execute(context.Background(), wfCtx, execCtx, testDeps())
	require.NoError(t, err)
	assert.Equal(t, domain.NodeStatusCompleted, status)
	assert.Equal(t, "TrueBranch", execCtx.SourcePort)
	assert.Equal(t, true, execCtx.OutputData["ConditionResult"])
}

func TestIfElseFalseBranch(t *testing.T) {
	n := &IfElseNode{}
	require.NoError(t, n.Initialize(domain.NodeDefinition{ID: "if1", Configuration: map[string]any{"Condition": "input.count > 10"}}))

	wfCtx := domain.NewWorkflowContext("r1", "w1", domain.NewGlobals())
	execCtx := domain.NewNodeExecutionContext(map[string]any{"count": 1})

	status, err := n.Execute(context.Background(), wfCtx, execCtx, testDeps())
	require.NoError(t, err)
	assert.Equal(t, domain.NodeStatusCompleted, status)
	assert.Equal(t, "FalseBranch", execCtx.SourcePort)
}

func TestIfElseMissingConditionFailsInitialize(t *testing.T) {
	n := &IfElseNode{}
	err := n.Initialize(domain.NodeDefinition{ID: "if1"})
	assert.Error(t, err)
}

func TestIfElseRaisingConditionFails(t *testing.T) {
	n := &IfElseNode{}
	require.NoError(t, n.Initialize(domain.NodeDefinition{ID: "if1", Configuration: map[string]any{"Condition": "undefinedFn()"}}))

	wfCtx := domain.NewWorkflowContext("r1", "w1", domain.NewGlobals())
	execCtx := domain.NewNodeExecutionContext(nil)

	status, err := n.Execute(context.Background(), wfCtx, execCtx, testDeps())
	assert.Error(t, err)
	assert.Equal(t, domain.NodeStatusFailed, status)
}
