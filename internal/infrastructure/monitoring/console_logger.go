package monitoring

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/smilemakc/nodeflow/internal/domain"
)

// ZerologObserver is an Observer a caller registers via AddObserver (the
// engine registers none by default): it writes one structured log line
// per lifecycle event through a zerolog.Logger, matching the rest of the
// engine's logging.
type ZerologObserver struct {
	log zerolog.Logger
}

func NewZerologObserver(log zerolog.Logger) *ZerologObserver {
	return &ZerologObserver{log: log}
}

func (o *ZerologObserver) OnRunStarted(wfCtx *domain.WorkflowContext) {
	o.log.Info().Str("run_id", wfCtx.RunID).Str("workflow_id", wfCtx.WorkflowID).Msg("run started")
}

func (o *ZerologObserver) OnRunCompleted(wfCtx *domain.WorkflowContext, duration time.Duration) {
	o.log.Info().Str("run_id", wfCtx.RunID).Str("workflow_id", wfCtx.WorkflowID).Dur("duration", duration).Msg("run completed")
}

func (o *ZerologObserver) OnRunFailed(wfCtx *domain.WorkflowContext, err error, duration time.Duration) {
	o.log.Error().Err(err).Str("run_id", wfCtx.RunID).Str("workflow_id", wfCtx.WorkflowID).Dur("duration", duration).Msg("run failed")
}

func (o *ZerologObserver) OnNodeStarted(instance *domain.NodeInstance) {
	o.log.Debug().Str("run_id", instance.RunID).Str("node_id", instance.NodeID).Msg("node started")
}

func (o *ZerologObserver) OnNodeCompleted(instance *domain.NodeInstance, duration time.Duration) {
	o.log.Debug().Str("run_id", instance.RunID).Str("node_id", instance.NodeID).Dur("duration", duration).Msg("node completed")
}

func (o *ZerologObserver) OnNodeFailed(instance *domain.NodeInstance, duration time.Duration, willRetry bool) {
	ev := o.log.Warn().Str("run_id", instance.RunID).Str("node_id", instance.NodeID).Dur("duration", duration).Bool("will_retry", willRetry)
	if instance.ErrorCause != nil {
		ev = ev.Err(instance.ErrorCause)
	}
	ev.Msg("node failed")
}

func (o *ZerologObserver) OnNodeRetrying(instance *domain.NodeInstance, attemptNumber int, delay time.Duration) {
	o.log.Info().Str("run_id", instance.RunID).Str("node_id", instance.NodeID).Int("attempt", attemptNumber).Dur("delay", delay).Msg("node retrying")
}
