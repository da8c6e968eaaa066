package workflows

import (
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/stanstork/bulkgen/internal/temporal"
	"github.com/stanstork/bulkgen/internal/temporal/activities"
)

// BatchActivityOptions apply to every generation batch. Batches are not
// idempotent, so a failed attempt is never replayed.
func BatchActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		HeartbeatTimeout:    temporal.HeartbeatTimeout,
		RetryPolicy:         &sdktemporal.RetryPolicy{MaximumAttempts: 1},
	}
}

// GenerationWorkflow drives generation batches until the target is reached,
// a batch fails or a stop signal arrives.
func GenerationWorkflow(ctx workflow.Context, params temporal.RunParams) (temporal.RunProgress, error) {
	ctx = workflow.WithActivityOptions(ctx, BatchActivityOptions())

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting generation workflow", "RunID", params.RunID, "Kind", params.Kind, "Total", params.Total)

	progress := temporal.RunProgress{
		RunID: params.RunID,
		State: temporal.RunRunning,
		Total: params.Total,
	}
	if err := workflow.SetQueryHandler(ctx, temporal.ProgressQuery, func() (temporal.RunProgress, error) {
		return progress, nil
	}); err != nil {
		return progress, err
	}

	stopCh := workflow.GetSignalChannel(ctx, temporal.StopSignal)
	stopRequested := func() bool {
		return stopCh.ReceiveAsync(nil)
	}

	var a *activities.Activities
	for {
		remaining := params.Total - (progress.Success + progress.Failed)
		if remaining <= 0 {
			progress.State = temporal.RunCompleted
			break
		}
		if stopRequested() {
			progress.State = temporal.RunStopped
			break
		}

		size := min(params.BatchSize, remaining)
		var out temporal.BatchOutput
		if err := workflow.ExecuteActivity(ctx, a.GenerateBatchActivity, params, size).Get(ctx, &out); err != nil {
			logger.Error("Generation batch failed.", "error", err)
			progress.Failed += size
			progress.State = temporal.RunErrored
			progress.Error = err.Error()
			return progress, nil
		}
		progress.Success += out.Succeeded
		progress.Failed += out.Failed
		progress.Batches++

		if progress.Success+progress.Failed >= params.Total {
			continue
		}
		if stopRequested() {
			progress.State = temporal.RunStopped
			break
		}
		if err := workflow.Sleep(ctx, temporal.BatchPause); err != nil {
			return progress, err
		}
	}

	logger.Info("Generation workflow finished", "RunID", params.RunID, "State", progress.State)
	return progress, nil
}
