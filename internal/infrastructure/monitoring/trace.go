package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/smilemakc/nodeflow/internal/domain"
)

// ExecutionTrace is a human-readable, in-memory timeline of one run: every
// lifecycle event TracingObserver was notified of, in order. It exists for
// post-mortem debugging of a failed or misbehaving run, not for metrics or
// export — String() is meant to be printed, not parsed.
type ExecutionTrace struct {
	RunID      string
	WorkflowID string

	mu     sync.Mutex
	events []TraceEvent
}

// TraceEvent is a single recorded lifecycle event.
type TraceEvent struct {
	Timestamp time.Time
	EventType string
	NodeID    string
	Message   string
	Err       error
}

func newExecutionTrace(runID, workflowID string) *ExecutionTrace {
	return &ExecutionTrace{RunID: runID, WorkflowID: workflowID}
}

func (t *ExecutionTrace) addEvent(eventType, nodeID, message string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, TraceEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		NodeID:    nodeID,
		Message:   message,
		Err:       err,
	})
}

// Events returns a copy of every event recorded so far.
func (t *ExecutionTrace) Events() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}

// String renders the trace as a readable timeline, newest event last.
func (t *ExecutionTrace) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := fmt.Sprintf("run %s (workflow %s), %d events\n", t.RunID, t.WorkflowID, len(t.events))
	for i, ev := range t.events {
		out += fmt.Sprintf("%d. [%s] %s", i+1, ev.Timestamp.Format("15:04:05.000"), ev.EventType)
		if ev.NodeID != "" {
			out += fmt.Sprintf(" node=%s", ev.NodeID)
		}
		if ev.Message != "" {
			out += fmt.Sprintf(" - %s", ev.Message)
		}
		if ev.Err != nil {
			out += fmt.Sprintf(" [error: %v]", ev.Err)
		}
		out += "\n"
	}
	return out
}

// TracingObserver is an Observer that builds one ExecutionTrace per run,
// keyed by run ID, for later retrieval by a caller that wants to print a
// timeline for a specific failed run rather than tail structured logs.
// Traces are never evicted automatically; callers that run many workflows
// in one process should call Forget once a trace has been consumed.
type TracingObserver struct {
	mu     sync.RWMutex
	traces map[string]*ExecutionTrace
}

func NewTracingObserver() *TracingObserver {
	return &TracingObserver{traces: make(map[string]*ExecutionTrace)}
}

// Trace returns the trace recorded for runID, or nil if no run with that ID
// has started.
func (o *TracingObserver) Trace(runID string) *ExecutionTrace {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.traces[runID]
}

// Forget drops the recorded trace for runID, freeing it for GC.
func (o *TracingObserver) Forget(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.traces, runID)
}

func (o *TracingObserver) traceFor(runID, workflowID string) *ExecutionTrace {
	o.mu.Lock()
	defer o.mu.Unlock()
	tr, ok := o.traces[runID]
	if !ok {
		tr = newExecutionTrace(runID, workflowID)
		o.traces[runID] = tr
	}
	return tr
}

func (o *TracingObserver) OnRunStarted(wfCtx *domain.WorkflowContext) {
	o.traceFor(wfCtx.RunID, wfCtx.WorkflowID).addEvent("run_started", "", "", nil)
}

func (o *TracingObserver) OnRunCompleted(wfCtx *domain.WorkflowContext, duration time.Duration) {
	o.traceFor(wfCtx.RunID, wfCtx.WorkflowID).addEvent("run_completed", "", duration.String(), nil)
}

func (o *TracingObserver) OnRunFailed(wfCtx *domain.WorkflowContext, err error, duration time.Duration) {
	o.traceFor(wfCtx.RunID, wfCtx.WorkflowID).addEvent("run_failed", "", duration.String(), err)
}

func (o *TracingObserver) OnNodeStarted(instance *domain.NodeInstance) {
	o.traceFor(instance.RunID, "").addEvent("node_started", instance.NodeID, "", nil)
}

func (o *TracingObserver) OnNodeCompleted(instance *domain.NodeInstance, duration time.Duration) {
	o.traceFor(instance.RunID, "").addEvent("node_completed", instance.NodeID, duration.String(), nil)
}

func (o *TracingObserver) OnNodeFailed(instance *domain.NodeInstance, duration time.Duration, willRetry bool) {
	msg := duration.String()
	if willRetry {
		msg += ", will retry"
	}
	o.traceFor(instance.RunID, "").addEvent("node_failed", instance.NodeID, msg, instance.ErrorCause)
}

func (o *TracingObserver) OnNodeRetrying(instance *domain.NodeInstance, attemptNumber int, delay time.Duration) {
	o.traceFor(instance.RunID, "").addEvent("node_retrying", instance.NodeID, fmt.Sprintf("attempt %d after %s", attemptNumber, delay), nil)
}
