package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/nodeflow/internal/domain"
	"github.com/smilemakc/nodeflow/internal/infrastructure/storage/models"
)

// PersistingObserver writes run and node-instance records to a RunRepository
// as a run progresses, so a terminated WorkflowContext remains queryable
// after the process exits. Node records accumulate in memory and flush on
// the run's terminal events; persistence failures are logged, never
// propagated back into the engine.
type PersistingObserver struct {
	repo *RunRepository
	log  zerolog.Logger

	mu        sync.Mutex
	instances map[string][]*models.NodeInstanceModel
}

func NewPersistingObserver(repo *RunRepository, log zerolog.Logger) *PersistingObserver {
	return &PersistingObserver{
		repo:      repo,
		log:       log,
		instances: make(map[string][]*models.NodeInstanceModel),
	}
}

func (o *PersistingObserver) OnRunStarted(wfCtx *domain.WorkflowContext) {}

func (o *PersistingObserver) OnRunCompleted(wfCtx *domain.WorkflowContext, duration time.Duration) {
	o.flush(wfCtx)
}

func (o *PersistingObserver) OnRunFailed(wfCtx *domain.WorkflowContext, err error, duration time.Duration) {
	o.flush(wfCtx)
}

func (o *PersistingObserver) OnNodeStarted(instance *domain.NodeInstance) {}

func (o *PersistingObserver) OnNodeCompleted(instance *domain.NodeInstance, duration time.Duration) {
	o.record(instance)
}

func (o *PersistingObserver) OnNodeFailed(instance *domain.NodeInstance, duration time.Duration, willRetry bool) {
	if !willRetry {
		o.record(instance)
	}
}

func (o *PersistingObserver) OnNodeRetrying(instance *domain.NodeInstance, attemptNumber int, delay time.Duration) {}

func (o *PersistingObserver) record(instance *domain.NodeInstance) {
	row := &models.NodeInstanceModel{
		InstanceID:   instance.InstanceID,
		RunID:        instance.RunID,
		NodeID:       instance.NodeID,
		Status:       string(instance.Status),
		StartTime:    instance.StartTime,
		EndTime:      instance.EndTime,
		ErrorMessage: instance.ErrorMessage,
	}
	if instance.Context != nil {
		row.OutputData = models.JSONBMap(instance.Context.OutputData)
	}
	o.mu.Lock()
	o.instances[instance.RunID] = append(o.instances[instance.RunID], row)
	o.mu.Unlock()
}

func (o *PersistingObserver) flush(wfCtx *domain.WorkflowContext) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := &models.RunModel{
		RunID:      wfCtx.RunID,
		WorkflowID: wfCtx.WorkflowID,
		Status:     string(wfCtx.Status),
		StartTime:  wfCtx.StartTime,
		EndTime:    wfCtx.EndTime,
		NodeErrors: joinErrors(wfCtx.NodeErrors),
	}
	if err := o.repo.SaveRun(ctx, run); err != nil {
		o.log.Warn().Err(err).Str("run_id", wfCtx.RunID).Msg("failed to persist run record")
	}

	o.mu.Lock()
	rows := o.instances[wfCtx.RunID]
	delete(o.instances, wfCtx.RunID)
	o.mu.Unlock()

	if err := o.repo.SaveNodeInstances(ctx, rows); err != nil {
		o.log.Warn().Err(err).Str("run_id", wfCtx.RunID).Msg("failed to persist node instance records")
	}
}
