package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/bulkgen/internal/models"
)

type deleteReply struct {
	res DeleteBatchResult
	err error
}

type fakeClient struct {
	mu sync.Mutex

	genSizes []int
	genHook  func(call int, size int) (GenerateResult, error)
	stops    int

	exportTotal   int
	exportErr     error
	exportErrAt   int
	exportIndexes []int
	exportTotals  []int

	importPages []ImportBatchResult
	importErr   error
	importReqs  []ImportRequest

	counts        []Counts
	countCalls    int
	deletes       []deleteReply
	deleteOffsets []int
}

func (f *fakeClient) GenerateBatch(_ context.Context, _ models.RecordKind, size int, _ GenerateOptions) (GenerateResult, error) {
	f.mu.Lock()
	f.genSizes = append(f.genSizes, size)
	call := len(f.genSizes)
	hook := f.genHook
	f.mu.Unlock()
	if hook != nil {
		return hook(call, size)
	}
	return GenerateResult{Success: size}, nil
}

func (f *fakeClient) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeClient) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeClient) StartExport(context.Context, models.RecordKind, models.ExportFilters) (ExportStart, error) {
	return ExportStart{Token: "wc_bulk_export_test", TotalRecords: f.exportTotal}, nil
}

func (f *fakeClient) ExportBatch(_ context.Context, _ string, size, index, totalBatches int) (ExportBatchResult, error) {
	f.exportIndexes = append(f.exportIndexes, index)
	f.exportTotals = append(f.exportTotals, totalBatches)
	if f.exportErr != nil && index == f.exportErrAt {
		return ExportBatchResult{}, f.exportErr
	}
	n := size
	if rest := f.exportTotal - index*size; rest < n {
		n = rest
	}
	last := index == totalBatches-1
	res := ExportBatchResult{Success: n, IsLastBatch: last}
	if last {
		res.DownloadURL = "http://localhost:8080/exports/wc_bulk_export_test.csv"
	}
	return res, nil
}

func (f *fakeClient) ImportBatch(_ context.Context, req ImportRequest) (ImportBatchResult, error) {
	f.importReqs = append(f.importReqs, req)
	if len(f.importPages) == 0 {
		return ImportBatchResult{}, f.importErr
	}
	page := f.importPages[0]
	f.importPages = f.importPages[1:]
	return page, nil
}

func (f *fakeClient) Counts(context.Context) (Counts, error) {
	c := f.counts[f.countCalls]
	f.countCalls++
	return c, nil
}

func (f *fakeClient) DeleteBatch(_ context.Context, _ models.RecordKind, offset int) (DeleteBatchResult, error) {
	f.deleteOffsets = append(f.deleteOffsets, offset)
	if len(f.deletes) == 0 {
		return DeleteBatchResult{Done: true}, nil
	}
	reply := f.deletes[0]
	f.deletes = f.deletes[1:]
	return reply.res, reply.err
}

type harness struct {
	*Orchestrator
	client *fakeClient
	sleeps []time.Duration
}

func newHarness(client *fakeClient) *harness {
	h := &harness{client: client}
	o := New(client, Limits{MaxOrders: 1000, MaxProducts: 100}, zerolog.Nop())
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time {
		clock = clock.Add(100 * time.Millisecond)
		return clock
	}
	o.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	o.retryDelay = time.Millisecond
	h.Orchestrator = o
	return h
}

func TestRunGenerationSplitsFinalBatch(t *testing.T) {
	h := newHarness(&fakeClient{})

	var remaining []int
	h.OnProgress = func(s Snapshot) {
		remaining = append(remaining, s.Counters.Total-s.Counters.Success-s.Counters.Failed)
	}

	snap, err := h.RunGeneration(context.Background(), GenerateParams{Kind: models.RecordOrder, Total: 37, BatchSize: 10})
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10, 10, 7}, h.client.genSizes)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 37, snap.Counters.Success)
	assert.Equal(t, 4, snap.Counters.BatchIndex)
	assert.Equal(t, []time.Duration{DefaultPace, DefaultPace, DefaultPace}, h.sleeps)
	for i := 1; i < len(remaining); i++ {
		assert.LessOrEqual(t, remaining[i], remaining[i-1])
	}
	assert.Equal(t, 0, remaining[len(remaining)-1])
}

func TestRunGenerationStopMidRun(t *testing.T) {
	client := &fakeClient{}
	h := newHarness(client)
	client.genHook = func(call, size int) (GenerateResult, error) {
		if call == 2 {
			h.Stop()
			assert.Equal(t, StateStopping, h.State())
		}
		return GenerateResult{Success: size - 1, Failed: 1}, nil
	}

	snap, err := h.RunGeneration(context.Background(), GenerateParams{Kind: models.RecordProduct, Total: 100, BatchSize: 10})
	require.NoError(t, err)

	assert.Len(t, client.genSizes, 2)
	assert.Equal(t, StateStopped, snap.State)
	assert.Equal(t, 18, snap.Counters.Success)
	assert.Equal(t, 2, snap.Counters.Failed)
	assert.Eventually(t, func() bool { return client.stopCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRunGenerationErroredKeepsCounters(t *testing.T) {
	client := &fakeClient{}
	client.genHook = func(call, size int) (GenerateResult, error) {
		if call == 3 {
			return GenerateResult{}, &TransportError{Action: "generate_orders_batch", Err: errors.New("connection reset")}
		}
		return GenerateResult{Success: size}, nil
	}
	h := newHarness(client)

	snap, err := h.RunGeneration(context.Background(), GenerateParams{Kind: models.RecordOrder, Total: 50, BatchSize: 10})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Len(t, client.genSizes, 3)
	assert.Equal(t, StateErrored, snap.State)
	assert.Equal(t, 20, snap.Counters.Success)
	assert.Equal(t, 10, snap.Counters.Failed)
	assert.Contains(t, snap.Error, "connection reset")
}

func TestRunGenerationExecutorErrorStopsScheduling(t *testing.T) {
	client := &fakeClient{}
	client.genHook = func(int, int) (GenerateResult, error) {
		return GenerateResult{}, &ExecutorError{Action: "generate_orders_batch", Status: 200, Message: "no purchasable products"}
	}
	h := newHarness(client)

	snap, err := h.RunGeneration(context.Background(), GenerateParams{Kind: models.RecordOrder, Total: 30, BatchSize: 20})
	require.Error(t, err)
	assert.Len(t, client.genSizes, 1)
	assert.Equal(t, 20, snap.Counters.Failed)
	assert.Empty(t, h.sleeps)
}

func TestRunGenerationValidation(t *testing.T) {
	tests := []struct {
		name   string
		params GenerateParams
		field  string
	}{
		{"zero total", GenerateParams{Kind: models.RecordOrder, Total: 0, BatchSize: 10}, "total"},
		{"total above limit", GenerateParams{Kind: models.RecordProduct, Total: 101, BatchSize: 10}, "total"},
		{"zero batch", GenerateParams{Kind: models.RecordOrder, Total: 10, BatchSize: 0}, "batch_size"},
		{"order batch too large", GenerateParams{Kind: models.RecordOrder, Total: 10, BatchSize: 101}, "batch_size"},
		{"product batch too large", GenerateParams{Kind: models.RecordProduct, Total: 10, BatchSize: 51}, "batch_size"},
		{"inverted prices", GenerateParams{Kind: models.RecordProduct, Total: 10, BatchSize: 5, PriceMin: 20, PriceMax: 10}, "price"},
		{"unknown kind", GenerateParams{Kind: "coupon", Total: 10, BatchSize: 5}, "kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			h := newHarness(client)

			_, err := h.RunGeneration(context.Background(), tt.params)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, StateIdle, h.State())
			assert.Empty(t, client.genSizes)
		})
	}
}

func TestResetOnlyFromTerminal(t *testing.T) {
	h := newHarness(&fakeClient{})
	assert.ErrorIs(t, h.Reset(), ErrNotFinished)

	_, err := h.RunGeneration(context.Background(), GenerateParams{Kind: models.RecordOrder, Total: 5, BatchSize: 5})
	require.NoError(t, err)

	_, err = h.RunGeneration(context.Background(), GenerateParams{Kind: models.RecordOrder, Total: 5, BatchSize: 5})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, h.Reset())
	snap := h.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Zero(t, snap.Counters.Success)
}

func TestStopIgnoredWhenIdle(t *testing.T) {
	client := &fakeClient{}
	h := newHarness(client)
	h.Stop()
	assert.Equal(t, StateIdle, h.State())
	assert.Zero(t, client.stopCount())
}

func TestSnapshotNeverDividesByZero(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s := snapshot(StateRunning, Counters{Total: 10}, now)
	assert.Nil(t, s.Rate)
	assert.Nil(t, s.ETA)
	assert.Zero(t, s.Percent)

	s = snapshot(StateRunning, Counters{Total: 10, Success: 5, StartedAt: now}, now)
	assert.Nil(t, s.Rate)
	assert.Nil(t, s.ETA)

	s = snapshot(StateRunning, Counters{Total: 0}, now)
	assert.Zero(t, s.Percent)

	s = snapshot(StateRunning, Counters{Total: 10, Success: 4, Failed: 1, StartedAt: now.Add(-10 * time.Second)}, now)
	require.NotNil(t, s.Rate)
	require.NotNil(t, s.ETA)
	assert.InDelta(t, 0.5, *s.Rate, 1e-9)
	assert.Equal(t, 10*time.Second, *s.ETA)
	assert.InDelta(t, 50.0, s.Percent, 1e-9)

	s = snapshot(StateCompleted, Counters{Total: 10, Success: 10, StartedAt: now.Add(-time.Second)}, now)
	require.NotNil(t, s.Rate)
	assert.Nil(t, s.ETA)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, StateIdle.CanTransitionTo(StateRunning))
	assert.False(t, StateIdle.CanTransitionTo(StateCompleted))
	assert.True(t, StateRunning.CanTransitionTo(StateStopping))
	assert.True(t, StateStopping.CanTransitionTo(StateStopped))
	assert.False(t, StateStopping.CanTransitionTo(StateRunning))
	assert.False(t, StateCompleted.CanTransitionTo(StateRunning))
	for _, s := range []State{StateCompleted, StateStopped, StateErrored} {
		assert.True(t, s.Terminal())
		assert.True(t, s.CanTransitionTo(StateIdle))
	}
	assert.False(t, StateStopping.Terminal())
}

func TestRunExport(t *testing.T) {
	client := &fakeClient{exportTotal: 120}
	h := newHarness(client)

	snap, err := h.RunExport(context.Background(), ExportParams{
		Kind:      models.RecordOrder,
		Filters:   models.ExportFilters{ExportAll: true},
		BatchSize: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, client.exportIndexes)
	assert.Equal(t, []int{3, 3, 3}, client.exportTotals)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 120, snap.Counters.Success)
	assert.Equal(t, "http://localhost:8080/exports/wc_bulk_export_test.csv", snap.Artifact)
}

func TestRunExportEmptySelection(t *testing.T) {
	client := &fakeClient{}
	h := newHarness(client)

	snap, err := h.RunExport(context.Background(), ExportParams{Kind: models.RecordProduct, BatchSize: 50})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Empty(t, client.exportIndexes)
	assert.Empty(t, snap.Artifact)
}

func TestRunImport(t *testing.T) {
	client := &fakeClient{importPages: []ImportBatchResult{
		{Processed: 2, Successful: 1, Skipped: 1, TotalRecords: 3, ImportSession: "wc_bulk_import_abc"},
		{Processed: 1, Failed: 1, TotalRecords: 3, CurrentBatch: 1, IsComplete: true, ImportSession: "wc_bulk_import_abc"},
	}}
	h := newHarness(client)

	snap, err := h.RunImport(context.Background(), ImportParams{Kind: models.RecordOrder, FilePath: "orders.CSV", BatchSize: 2})
	require.NoError(t, err)

	require.Len(t, client.importReqs, 2)
	assert.Empty(t, client.importReqs[0].Token)
	assert.Equal(t, "wc_bulk_import_abc", client.importReqs[1].Token)
	assert.Equal(t, 1, client.importReqs[1].Batch)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 3, snap.Counters.Total)
	assert.Equal(t, 1, snap.Counters.Success)
	assert.Equal(t, 1, snap.Counters.Failed)
	assert.Equal(t, 1, snap.Counters.Skipped)
}

func TestRunExportFailedBatchCountsAsFailed(t *testing.T) {
	client := &fakeClient{
		exportTotal: 120,
		exportErr:   &TransportError{Action: "export_batch", Err: errors.New("bad gateway")},
		exportErrAt: 2,
	}
	h := newHarness(client)

	snap, err := h.RunExport(context.Background(), ExportParams{Kind: models.RecordOrder, Filters: models.ExportFilters{ExportAll: true}, BatchSize: 50})

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, StateErrored, snap.State)
	assert.Equal(t, 100, snap.Counters.Success)
	assert.Equal(t, 20, snap.Counters.Failed)
	assert.Empty(t, snap.Artifact)
}

func TestRunImportFailedBatchCountsAsFailed(t *testing.T) {
	client := &fakeClient{
		importPages: []ImportBatchResult{
			{Processed: 2, Successful: 2, TotalRecords: 5, ImportSession: "wc_bulk_import_abc"},
		},
		importErr: &ExecutorError{Action: "import_batch", Status: 200, Message: "Invalid import session"},
	}
	h := newHarness(client)

	snap, err := h.RunImport(context.Background(), ImportParams{Kind: models.RecordProduct, FilePath: "products.csv", BatchSize: 2})

	var eerr *ExecutorError
	require.True(t, errors.As(err, &eerr))
	assert.Equal(t, StateErrored, snap.State)
	assert.Equal(t, 2, snap.Counters.Success)
	assert.Equal(t, 2, snap.Counters.Failed)
	assert.Equal(t, 5, snap.Counters.Total)
}

func TestRunImportRejectsNonCSV(t *testing.T) {
	client := &fakeClient{}
	h := newHarness(client)

	_, err := h.RunImport(context.Background(), ImportParams{Kind: models.RecordOrder, FilePath: "orders.xlsx", BatchSize: 10})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, StateIdle, h.State())
	assert.Empty(t, client.importReqs)
}

func TestRunDeleteRetriesAndAdvancesPastSkipped(t *testing.T) {
	client := &fakeClient{
		counts: []Counts{{Products: 45}, {Products: 2}},
		deletes: []deleteReply{
			{err: &TransportError{Action: "delete_batch", Err: errors.New("timeout")}},
			{res: DeleteBatchResult{Deleted: 38, Skipped: 2}},
			{res: DeleteBatchResult{Deleted: 5, Done: true}},
		},
	}
	h := newHarness(client)

	snap, err := h.RunDelete(context.Background(), models.RecordProduct)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 2}, client.deleteOffsets)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 43, snap.Counters.Success)
	assert.Equal(t, 2, snap.Counters.Skipped)
	assert.Equal(t, 2, client.countCalls)
	assert.Equal(t, []time.Duration{DefaultDeletePause, DefaultVerifyDelay}, h.sleeps)
}

func TestRunDeleteSecondPass(t *testing.T) {
	client := &fakeClient{
		counts: []Counts{{Orders: 10}, {Orders: 5}},
		deletes: []deleteReply{
			{res: DeleteBatchResult{Deleted: 3, Skipped: 2, Done: true}},
			{res: DeleteBatchResult{Deleted: 3, Skipped: 2, Done: true}},
		},
	}
	h := newHarness(client)

	snap, err := h.RunDelete(context.Background(), models.RecordOrder)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0}, client.deleteOffsets)
	assert.Equal(t, 6, snap.Counters.Success)
	assert.Equal(t, 2, snap.Counters.Skipped)
	assert.Equal(t, 8, snap.Counters.Total)
}

func TestRunDeleteGivesUpAfterMaxAttempts(t *testing.T) {
	fail := deleteReply{err: &TransportError{Action: "delete_batch", Err: errors.New("refused")}}
	client := &fakeClient{
		counts:  []Counts{{Products: 5}},
		deletes: []deleteReply{fail, fail, fail, fail},
	}
	h := newHarness(client)

	snap, err := h.RunDelete(context.Background(), models.RecordProduct)
	require.Error(t, err)
	assert.Len(t, client.deleteOffsets, DefaultMaxAttempts)
	assert.Equal(t, StateErrored, snap.State)
}

func TestRunDeleteDoesNotRetryForbidden(t *testing.T) {
	client := &fakeClient{
		counts: []Counts{{Products: 5}},
		deletes: []deleteReply{
			{err: &ExecutorError{Action: "delete_batch", Status: 403, Message: "invalid nonce"}},
		},
	}
	h := newHarness(client)

	_, err := h.RunDelete(context.Background(), models.RecordProduct)

	var execErr *ExecutorError
	require.True(t, errors.As(err, &execErr))
	assert.Len(t, client.deleteOffsets, 1)
}

func TestRunDeleteNothingToDo(t *testing.T) {
	client := &fakeClient{counts: []Counts{{}}}
	h := newHarness(client)

	snap, err := h.RunDelete(context.Background(), models.RecordOrder)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Empty(t, client.deleteOffsets)
}
