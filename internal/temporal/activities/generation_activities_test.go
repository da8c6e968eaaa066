package activities

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"github.com/stanstork/bulkgen/internal/executor"
	"github.com/stanstork/bulkgen/internal/models"
	"github.com/stanstork/bulkgen/internal/temporal"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, op models.OperationKind, batchSize int, bc executor.BatchContext) (executor.Outcome, error) {
	args := m.Called(ctx, op, batchSize, bc)
	return args.Get(0).(executor.Outcome), args.Error(1)
}

func TestGenerateBatchActivity(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()

	exec := new(mockExecutor)
	out := executor.Outcome{BatchResult: models.BatchResult{Attempted: 5, Succeeded: 4, Failed: 1}}
	exec.On("Execute", mock.Anything, models.OpGenerateProducts, 5, executor.BatchContext{PriceMin: 1, PriceMax: 2}).Return(out, nil)
	env.RegisterActivity(&Activities{Executor: exec})

	params := temporal.RunParams{RunID: "r", Kind: models.RecordProduct, PriceMin: 1, PriceMax: 2}
	val, err := env.ExecuteActivity((&Activities{}).GenerateBatchActivity, params, 5)
	require.NoError(t, err)

	var got temporal.BatchOutput
	require.NoError(t, val.Get(&got))
	assert.Equal(t, temporal.BatchOutput{Succeeded: 4, Failed: 1}, got)
	exec.AssertExpectations(t)
}

func TestGenerateBatchActivity_ExecutorErrorIsNonRetryable(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()

	exec := new(mockExecutor)
	exec.On("Execute", mock.Anything, models.OpGenerateOrders, 10, mock.Anything).
		Return(executor.Outcome{}, &executor.Error{Op: models.OpGenerateOrders, Err: executor.ErrEmptyCatalog})
	env.RegisterActivity(&Activities{Executor: exec})

	_, err := env.ExecuteActivity((&Activities{}).GenerateBatchActivity, temporal.RunParams{Kind: models.RecordOrder}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no purchasable products found")
}

func TestGenerateBatchActivity_HeartbeatsWhileRunning(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()

	var beats atomic.Int32
	env.SetOnActivityHeartbeatListener(func(_ *activity.Info, _ converter.EncodedValues) {
		beats.Add(1)
	})

	exec := new(mockExecutor)
	exec.On("Execute", mock.Anything, models.OpGenerateOrders, 10, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(100 * time.Millisecond) }).
		Return(executor.Outcome{BatchResult: models.BatchResult{Attempted: 10, Succeeded: 10}}, nil)
	env.RegisterActivity(&Activities{Executor: exec, HeartbeatInterval: 5 * time.Millisecond})

	_, err := env.ExecuteActivity((&Activities{}).GenerateBatchActivity, temporal.RunParams{Kind: models.RecordOrder}, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, beats.Load(), int32(1))
}
