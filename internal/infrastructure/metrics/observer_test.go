package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/nodeflow/internal/domain"
)

func TestObserverCountsRunsAndNodes(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg)

	wfCtx := domain.NewWorkflowContext("run-1", "wf-1", domain.NewGlobals())
	o.OnRunStarted(wfCtx)
	o.OnRunCompleted(wfCtx, 50*time.Millisecond)

	instance := &domain.NodeInstance{NodeID: "A", RunID: "run-1", Status: domain.NodeStatusCompleted}
	o.OnNodeCompleted(instance, 10*time.Millisecond)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var started, completed float64
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "nodeflow_runs_started_total":
			started = counterValue(mf)
		case "nodeflow_runs_completed_total":
			completed = counterValue(mf)
		}
	}
	assert.Equal(t, float64(1), started)
	assert.Equal(t, float64(1), completed)
}

func counterValue(mf *dto.MetricFamily) float64 {
	if len(mf.Metric) == 0 {
		return 0
	}
	return mf.Metric[0].GetCounter().GetValue()
}
