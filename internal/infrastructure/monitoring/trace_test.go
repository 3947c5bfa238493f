package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/nodeflow/internal/domain"
)

func TestTracingObserverRecordsRunAndNodeEvents(t *testing.T) {
	o := NewTracingObserver()

	wfCtx := domain.NewWorkflowContext("run-1", "wf-1", domain.NewGlobals())
	o.OnRunStarted(wfCtx)

	instance := &domain.NodeInstance{NodeID: "A", RunID: "run-1"}
	o.OnNodeStarted(instance)
	o.OnNodeCompleted(instance, 5*time.Millisecond)
	o.OnRunCompleted(wfCtx, 10*time.Millisecond)

	tr := o.Trace("run-1")
	require.NotNil(t, tr)
	events := tr.Events()
	require.Len(t, events, 4)
	assert.Equal(t, "run_started", events[0].EventType)
	assert.Equal(t, "node_started", events[1].EventType)
	assert.Equal(t, "node_completed", events[2].EventType)
	assert.Equal(t, "run_completed", events[3].EventType)
	assert.Contains(t, tr.String(), "run-1")
}

func TestTracingObserverRecordsNodeFailure(t *testing.T) {
	o := NewTracingObserver()
	wfCtx := domain.NewWorkflowContext("run-2", "wf-1", domain.NewGlobals())
	o.OnRunStarted(wfCtx)

	instance := &domain.NodeInstance{NodeID: "A", RunID: "run-2", ErrorCause: errors.New("boom")}
	o.OnNodeFailed(instance, time.Millisecond, false)
	o.OnRunFailed(wfCtx, errors.New("run failed"), time.Millisecond)

	events := o.Trace("run-2").Events()
	require.Len(t, events, 3)
	assert.Equal(t, "node_failed", events[1].EventType)
	assert.Error(t, events[1].Err)
	assert.Equal(t, "run_failed", events[2].EventType)
}

func TestTracingObserverForgetDropsTrace(t *testing.T) {
	o := NewTracingObserver()
	wfCtx := domain.NewWorkflowContext("run-3", "wf-1", domain.NewGlobals())
	o.OnRunStarted(wfCtx)
	require.NotNil(t, o.Trace("run-3"))

	o.Forget("run-3")
	assert.Nil(t, o.Trace("run-3"))
}
