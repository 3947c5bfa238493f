// Package metrics exposes workflow engine activity as Prometheus metrics.
// It plugs into the engine the same way the storage package's
// PersistingObserver does: as an Observer implementation that the engine
// notifies on run and node lifecycle events, with no feedback path back
// into execution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smilemakc/nodeflow/internal/domain"
)

// Observer records run and node counts/durations under a caller-supplied
// Prometheus registerer. Use NewObserver(prometheus.DefaultRegisterer) to
// publish on the default registry, or a fresh prometheus.NewRegistry() in
// tests to avoid collisions between runs.
type Observer struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsFailed    prometheus.Counter
	runDuration   prometheus.Histogram

	nodeExecutions *prometheus.CounterVec
	nodeRetries    *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
}

func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nodeflow_runs_started_total",
			Help: "Total workflow runs started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nodeflow_runs_completed_total",
			Help: "Total workflow runs that reached status Completed.",
		}),
		runsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nodeflow_runs_failed_total",
			Help: "Total workflow runs that reached status Failed.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nodeflow_run_duration_seconds",
			Help:    "Wall-clock duration of a workflow run from Start to terminal status.",
			Buckets: prometheus.DefBuckets,
		}),
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nodeflow_node_executions_total",
			Help: "Total node executions by terminal status.",
		}, []string{"status"}),
		nodeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nodeflow_node_retries_total",
			Help: "Total node lease abandons that resulted in a scheduled retry.",
		}, []string{"node_id"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodeflow_node_execution_duration_seconds",
			Help:    "Duration of a single node Execute call.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
	}
	reg.MustRegister(o.runsStarted, o.runsCompleted, o.runsFailed, o.runDuration, o.nodeExecutions, o.nodeRetries, o.nodeDuration)
	return o
}

func (o *Observer) OnRunStarted(wfCtx *domain.WorkflowContext) {
	o.runsStarted.Inc()
}

func (o *Observer) OnRunCompleted(wfCtx *domain.WorkflowContext, duration time.Duration) {
	o.runsCompleted.Inc()
	o.runDuration.Observe(duration.Seconds())
}

func (o *Observer) OnRunFailed(wfCtx *domain.WorkflowContext, err error, duration time.Duration) {
	o.runsFailed.Inc()
	o.runDuration.Observe(duration.Seconds())
}

func (o *Observer) OnNodeStarted(instance *domain.NodeInstance) {}

func (o *Observer) OnNodeCompleted(instance *domain.NodeInstance, duration time.Duration) {
	o.nodeExecutions.WithLabelValues(string(instance.Status)).Inc()
	o.nodeDuration.WithLabelValues(string(instance.Status)).Observe(duration.Seconds())
}

func (o *Observer) OnNodeFailed(instance *domain.NodeInstance, duration time.Duration, willRetry bool) {
	o.nodeExecutions.WithLabelValues(string(instance.Status)).Inc()
	o.nodeDuration.WithLabelValues(string(instance.Status)).Observe(duration.Seconds())
}

func (o *Observer) OnNodeRetrying(instance *domain.NodeInstance, attemptNumber int, delay time.Duration) {
	o.nodeRetries.WithLabelValues(instance.NodeID).Inc()
}
