package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/stanstork/bulkgen/internal/models"
	"github.com/stanstork/bulkgen/internal/temporal"
	"github.com/stanstork/bulkgen/internal/temporal/activities"
)

type GenerationWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
	a   *activities.Activities
}

func (s *GenerationWorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.a = &activities.Activities{}
	s.env.RegisterActivity(s.a)
}

func (s *GenerationWorkflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *GenerationWorkflowSuite) succeedAll() {
	s.env.OnActivity(s.a.GenerateBatchActivity, mock.Anything, mock.Anything, mock.Anything).Return(
		func(_ context.Context, _ temporal.RunParams, size int) (temporal.BatchOutput, error) {
			return temporal.BatchOutput{Succeeded: size}, nil
		})
}

func (s *GenerationWorkflowSuite) run(params temporal.RunParams) temporal.RunProgress {
	s.env.ExecuteWorkflow(GenerationWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var progress temporal.RunProgress
	s.NoError(s.env.GetWorkflowResult(&progress))
	return progress
}

func (s *GenerationWorkflowSuite) TestCompletesInSizedBatches() {
	var sizes []int
	s.env.OnActivity(s.a.GenerateBatchActivity, mock.Anything, mock.Anything, mock.Anything).Return(
		func(_ context.Context, _ temporal.RunParams, size int) (temporal.BatchOutput, error) {
			sizes = append(sizes, size)
			return temporal.BatchOutput{Succeeded: size}, nil
		})

	progress := s.run(temporal.RunParams{RunID: "r1", Kind: models.RecordOrder, Total: 37, BatchSize: 10})

	s.Equal(temporal.RunCompleted, progress.State)
	s.Equal(37, progress.Success)
	s.Equal(4, progress.Batches)
	s.Equal([]int{10, 10, 10, 7}, sizes)
}

func (s *GenerationWorkflowSuite) TestStopSignal() {
	s.succeedAll()
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(temporal.StopSignal, nil)
	}, 100*time.Millisecond)

	progress := s.run(temporal.RunParams{RunID: "r2", Kind: models.RecordProduct, Total: 100, BatchSize: 10})

	s.Equal(temporal.RunStopped, progress.State)
	s.Equal(1, progress.Batches)
	s.Equal(10, progress.Success)
}

func (s *GenerationWorkflowSuite) TestBatchFailureErrorsRun() {
	calls := 0
	s.env.OnActivity(s.a.GenerateBatchActivity, mock.Anything, mock.Anything, mock.Anything).Return(
		func(_ context.Context, _ temporal.RunParams, size int) (temporal.BatchOutput, error) {
			calls++
			if calls == 2 {
				return temporal.BatchOutput{}, errors.New("no purchasable products found")
			}
			return temporal.BatchOutput{Succeeded: size}, nil
		})

	progress := s.run(temporal.RunParams{RunID: "r3", Kind: models.RecordOrder, Total: 50, BatchSize: 20})

	s.Equal(temporal.RunErrored, progress.State)
	s.Equal(20, progress.Success)
	s.Equal(20, progress.Failed)
	s.NotEmpty(progress.Error)
}

func (s *GenerationWorkflowSuite) TestProgressQuery() {
	s.succeedAll()
	s.env.RegisterDelayedCallback(func() {
		res, err := s.env.QueryWorkflow(temporal.ProgressQuery)
		s.NoError(err)
		var progress temporal.RunProgress
		s.NoError(res.Get(&progress))
		s.Equal(temporal.RunRunning, progress.State)
		s.Equal(10, progress.Success)
	}, 100*time.Millisecond)

	progress := s.run(temporal.RunParams{RunID: "r4", Kind: models.RecordOrder, Total: 30, BatchSize: 10})
	s.Equal(temporal.RunCompleted, progress.State)
}

func (s *GenerationWorkflowSuite) TestFailedBatchIsNotRetried() {
	calls := 0
	s.env.OnActivity(s.a.GenerateBatchActivity, mock.Anything, mock.Anything, mock.Anything).Return(
		func(_ context.Context, _ temporal.RunParams, _ int) (temporal.BatchOutput, error) {
			calls++
			return temporal.BatchOutput{}, errors.New("connection reset by peer")
		})

	progress := s.run(temporal.RunParams{RunID: "r5", Kind: models.RecordOrder, Total: 40, BatchSize: 20})

	s.Equal(1, calls)
	s.Equal(temporal.RunErrored, progress.State)
	s.Equal(0, progress.Success)
	s.Equal(20, progress.Failed)
}

func TestBatchActivityOptions(t *testing.T) {
	ao := BatchActivityOptions()
	assert.Equal(t, temporal.DefaultActivityTimeout, ao.StartToCloseTimeout)
	assert.Equal(t, temporal.HeartbeatTimeout, ao.HeartbeatTimeout)
	assert.Less(t, temporal.HeartbeatInterval, ao.HeartbeatTimeout)
	require.NotNil(t, ao.RetryPolicy)
	assert.Equal(t, int32(1), ao.RetryPolicy.MaximumAttempts)
}

func TestGenerationWorkflowSuite(t *testing.T) {
	suite.Run(t, new(GenerationWorkflowSuite))
}
