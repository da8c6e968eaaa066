package activities

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/stanstork/bulkgen/internal/executor"
	"github.com/stanstork/bulkgen/internal/models"
	"github.com/stanstork/bulkgen/internal/temporal"
)

// BatchExecutor is the part of the executor the activities drive.
type BatchExecutor interface {
	Execute(ctx context.Context, op models.OperationKind, batchSize int, bc executor.BatchContext) (executor.Outcome, error)
}

type Activities struct {
	Executor BatchExecutor
	// HeartbeatInterval defaults to temporal.HeartbeatInterval.
	HeartbeatInterval time.Duration
}

// GenerateBatchActivity runs one generation batch. Whole-batch precondition
// failures are not retried.
func (a *Activities) GenerateBatchActivity(ctx context.Context, params temporal.RunParams, size int) (temporal.BatchOutput, error) {
	logger := activity.GetLogger(ctx)
	op := models.OperationFor(models.FamilyGeneration, params.Kind)
	logger.Info("Executing generation batch", "runID", params.RunID, "operation", op, "size", size)

	stop := a.heartbeat(ctx)
	out, err := a.Executor.Execute(ctx, op, size, executor.BatchContext{
		PriceMin: params.PriceMin,
		PriceMax: params.PriceMax,
	})
	stop()
	if err != nil {
		var execErr *executor.Error
		if errors.As(err, &execErr) {
			return temporal.BatchOutput{}, sdktemporal.NewNonRetryableApplicationError(execErr.Error(), "ExecutorError", execErr)
		}
		return temporal.BatchOutput{}, err
	}
	return temporal.BatchOutput{Succeeded: out.Succeeded, Failed: out.Failed}, nil
}

// heartbeat records a heartbeat on every tick until the returned func is
// called.
func (a *Activities) heartbeat(ctx context.Context) func() {
	interval := a.HeartbeatInterval
	if interval <= 0 {
		interval = temporal.HeartbeatInterval
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		beats := 0
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				beats++
				activity.RecordHeartbeat(ctx, beats)
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
