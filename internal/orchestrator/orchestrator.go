package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	retry "github.com/sethvargo/go-retry"

	"github.com/stanstork/bulkgen/internal/models"
)

const (
	DefaultPace        = 500 * time.Millisecond
	DefaultDeletePause = time.Second
	DefaultRetryDelay  = 3 * time.Second
	DefaultVerifyDelay = 2 * time.Second
	DefaultMaxAttempts = 3
)

var (
	ErrBusy        = errors.New("a run is already in progress")
	ErrNotFinished = errors.New("run has not finished")
	ErrNoProgress  = errors.New("batch reported no processed records")
)

// Limits caps the totals a generation run may request.
type Limits struct {
	MaxOrders   int
	MaxProducts int
}

func (l Limits) forKind(kind models.RecordKind) int {
	if kind == models.RecordOrder {
		return l.MaxOrders
	}
	return l.MaxProducts
}

// Orchestrator runs one job at a time against a Client. Run methods block
// until the job reaches a terminal state; Stop and Snapshot are safe to call
// from other goroutines.
type Orchestrator struct {
	client Client
	limits Limits
	logger zerolog.Logger

	pace        time.Duration
	deletePause time.Duration
	retryDelay  time.Duration
	verifyDelay time.Duration
	maxAttempts int
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	// OnProgress, when set, receives a snapshot after every merged batch.
	OnProgress func(Snapshot)

	mu            sync.Mutex
	state         State
	counters      Counters
	stopRequested bool
	notifyStop    bool
	artifact      string
	lastErr       error
}

func New(client Client, limits Limits, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		client:      client,
		limits:      limits,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		pace:        DefaultPace,
		deletePause: DefaultDeletePause,
		retryDelay:  DefaultRetryDelay,
		verifyDelay: DefaultVerifyDelay,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		sleep:       sleepContext,
		state:       StateIdle,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := snapshot(o.state, o.counters, o.now())
	s.Artifact = o.artifact
	if o.lastErr != nil {
		s.Error = o.lastErr.Error()
	}
	return s
}

// Stop asks the running job to halt at its next checkpoint. A request
// already in flight runs to completion.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	o.stopRequested = true
	o.state = StateStopping
	notify := o.notifyStop
	o.mu.Unlock()

	o.logger.Info().Msg("stop requested")
	if !notify {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.client.Stop(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("stop notification failed")
		}
	}()
}

// Reset clears a finished job and returns to Idle.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Terminal() {
		return ErrNotFinished
	}
	o.state = StateIdle
	o.counters = Counters{}
	o.stopRequested = false
	o.notifyStop = false
	o.artifact = ""
	o.lastErr = nil
	return nil
}

func (o *Orchestrator) begin(total int, notifyStop bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.CanTransitionTo(StateRunning) {
		return ErrBusy
	}
	o.state = StateRunning
	o.counters = Counters{Total: total, StartedAt: o.now()}
	o.stopRequested = false
	o.notifyStop = notifyStop
	o.artifact = ""
	o.lastErr = nil
	return nil
}

func (o *Orchestrator) stopping() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopRequested
}

func (o *Orchestrator) update(fn func(c *Counters)) {
	o.mu.Lock()
	fn(&o.counters)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	if o.OnProgress != nil {
		o.OnProgress(snap)
	}
}

func (o *Orchestrator) merge(success, failed, skipped int) {
	o.update(func(c *Counters) {
		c.Success += success
		c.Failed += failed
		c.Skipped += skipped
		c.BatchIndex++
	})
}

// failInFlight counts the batch that was in flight when a run aborted as
// failed, capped at the records still outstanding.
func (o *Orchestrator) failInFlight(size int) {
	o.update(func(c *Counters) {
		c.Failed += max(0, min(size, c.Total-c.Processed()))
	})
}

// finish moves the job to a terminal state and returns the final snapshot
// along with err.
func (o *Orchestrator) finish(next State, err error) (Snapshot, error) {
	o.mu.Lock()
	if o.state.CanTransitionTo(next) {
		o.state = next
	}
	o.lastErr = err
	snap := o.snapshotLocked()
	o.mu.Unlock()

	ev := o.logger.Info()
	if err != nil {
		ev = o.logger.Error().Err(err)
	}
	ev.Str("state", next.String()).
		Int("success", snap.Counters.Success).
		Int("failed", snap.Counters.Failed).
		Int("skipped", snap.Counters.Skipped).
		Msg("run finished")
	if o.OnProgress != nil {
		o.OnProgress(snap)
	}
	return snap, err
}

// checkpoint runs between batches: it reports whether the job should halt,
// pacing for d otherwise.
func (o *Orchestrator) checkpoint(ctx context.Context, d time.Duration) (bool, error) {
	if o.stopping() {
		return true, nil
	}
	if err := o.sleep(ctx, d); err != nil {
		return true, err
	}
	return o.stopping(), nil
}

func validateBatchSize(op models.OperationKind, size int) error {
	lo, hi := op.SizeBounds()
	if size < lo || size > hi {
		return &ValidationError{Field: "batch_size", Message: boundsMessage(lo, hi)}
	}
	return nil
}

func boundsMessage(lo, hi int) string {
	return fmt.Sprintf("must be between %d and %d", lo, hi)
}

// GenerateParams starts a generation run.
type GenerateParams struct {
	Kind      models.RecordKind
	Total     int
	BatchSize int
	PriceMin  float64
	PriceMax  float64
}

func (o *Orchestrator) validateGeneration(p GenerateParams) error {
	if p.Kind != models.RecordOrder && p.Kind != models.RecordProduct {
		return &ValidationError{Field: "kind", Message: "must be orders or products"}
	}
	limit := o.limits.forKind(p.Kind)
	if p.Total < 1 || (limit > 0 && p.Total > limit) {
		return &ValidationError{Field: "total", Message: boundsMessage(1, limit)}
	}
	if err := validateBatchSize(models.OperationFor(models.FamilyGeneration, p.Kind), p.BatchSize); err != nil {
		return err
	}
	if p.PriceMin < 0 || p.PriceMax < 0 || (p.PriceMax > 0 && p.PriceMin > p.PriceMax) {
		return &ValidationError{Field: "price", Message: "minimum must not exceed maximum"}
	}
	return nil
}

// RunGeneration requests batches until total records were processed, the
// job is stopped, or a batch fails as a whole. A failed batch counts every
// record it carried as failed.
func (o *Orchestrator) RunGeneration(ctx context.Context, p GenerateParams) (Snapshot, error) {
	if err := o.validateGeneration(p); err != nil {
		return o.Snapshot(), err
	}
	if err := o.begin(p.Total, true); err != nil {
		return o.Snapshot(), err
	}
	o.logger.Info().Str("kind", string(p.Kind)).Int("total", p.Total).Int("batch_size", p.BatchSize).Msg("generation started")

	for {
		snap := o.Snapshot()
		remaining := p.Total - (snap.Counters.Success + snap.Counters.Failed)
		if remaining <= 0 {
			return o.finish(StateCompleted, nil)
		}
		size := p.BatchSize
		if remaining < size {
			size = remaining
		}

		res, err := o.client.GenerateBatch(ctx, p.Kind, size, GenerateOptions{
			BatchNumber: snap.Counters.BatchIndex,
			PriceMin:    p.PriceMin,
			PriceMax:    p.PriceMax,
		})
		if err == nil && res.Success+res.Failed == 0 {
			err = ErrNoProgress
		}
		if err != nil {
			o.update(func(c *Counters) { c.Failed += size })
			return o.finish(StateErrored, err)
		}
		o.merge(res.Success, res.Failed, 0)

		if remaining-res.Success-res.Failed <= 0 {
			continue
		}
		halt, err := o.checkpoint(ctx, o.pace)
		if halt {
			return o.finish(StateStopped, err)
		}
	}
}

// ExportParams starts an export run.
type ExportParams struct {
	Kind      models.RecordKind
	Filters   models.ExportFilters
	BatchSize int
}

// RunExport opens an export session and appends batches until the server
// reports the last one. An empty selection completes without an artifact.
func (o *Orchestrator) RunExport(ctx context.Context, p ExportParams) (Snapshot, error) {
	if p.Kind != models.RecordOrder && p.Kind != models.RecordProduct {
		return o.Snapshot(), &ValidationError{Field: "kind", Message: "must be orders or products"}
	}
	if err := validateBatchSize(models.OperationFor(models.FamilyExport, p.Kind), p.BatchSize); err != nil {
		return o.Snapshot(), err
	}
	if err := p.Filters.Validate(); err != nil {
		return o.Snapshot(), &ValidationError{Field: "filters", Message: err.Error()}
	}
	if err := o.begin(0, false); err != nil {
		return o.Snapshot(), err
	}

	start, err := o.client.StartExport(ctx, p.Kind, p.Filters)
	if err != nil {
		return o.finish(StateErrored, err)
	}
	o.update(func(c *Counters) { c.Total = start.TotalRecords })
	o.logger.Info().Str("session", start.Token).Int("total", start.TotalRecords).Msg("export started")
	if start.TotalRecords == 0 {
		return o.finish(StateCompleted, nil)
	}

	totalBatches := (start.TotalRecords + p.BatchSize - 1) / p.BatchSize
	for index := 0; ; index++ {
		res, err := o.client.ExportBatch(ctx, start.Token, p.BatchSize, index, totalBatches)
		if err != nil {
			o.failInFlight(p.BatchSize)
			return o.finish(StateErrored, err)
		}
		o.merge(res.Success, res.Failed, 0)
		if res.IsLastBatch {
			o.mu.Lock()
			o.artifact = res.DownloadURL
			o.mu.Unlock()
			return o.finish(StateCompleted, nil)
		}
		halt, err := o.checkpoint(ctx, o.pace)
		if halt {
			return o.finish(StateStopped, err)
		}
	}
}

// ImportParams starts an import run from a local CSV file.
type ImportParams struct {
	Kind      models.RecordKind
	FilePath  string
	BatchSize int
}

// RunImport uploads the file with the first batch and forwards the session
// token on every later one until the server reports completion.
func (o *Orchestrator) RunImport(ctx context.Context, p ImportParams) (Snapshot, error) {
	if p.Kind != models.RecordOrder && p.Kind != models.RecordProduct {
		return o.Snapshot(), &ValidationError{Field: "kind", Message: "must be orders or products"}
	}
	if !strings.EqualFold(filepath.Ext(p.FilePath), ".csv") {
		return o.Snapshot(), &ValidationError{Field: "file", Message: "only .csv files can be imported"}
	}
	if err := validateBatchSize(models.OperationFor(models.FamilyImport, p.Kind), p.BatchSize); err != nil {
		return o.Snapshot(), err
	}
	if err := o.begin(0, false); err != nil {
		return o.Snapshot(), err
	}

	token := ""
	for index := 0; ; index++ {
		res, err := o.client.ImportBatch(ctx, ImportRequest{
			Kind:      p.Kind,
			FilePath:  p.FilePath,
			Token:     token,
			BatchSize: p.BatchSize,
			Batch:     index,
		})
		if err != nil {
			o.failInFlight(p.BatchSize)
			return o.finish(StateErrored, err)
		}
		if token == "" {
			token = res.ImportSession
			o.logger.Info().Str("session", token).Int("total", res.TotalRecords).Msg("import started")
		}
		o.update(func(c *Counters) {
			c.Total = res.TotalRecords
			c.Success += res.Successful
			c.Failed += res.Failed
			c.Skipped += res.Skipped
			c.BatchIndex++
		})
		for _, ue := range res.Errors {
			o.logger.Debug().Str("record", ue.Identifier).Str("reason", ue.Reason).Msg("record not imported")
		}
		if res.IsComplete {
			return o.finish(StateCompleted, nil)
		}
		if res.Processed == 0 {
			return o.finish(StateErrored, ErrNoProgress)
		}
		halt, err := o.checkpoint(ctx, o.pace)
		if halt {
			return o.finish(StateStopped, err)
		}
	}
}

// retryable reports whether a failed delete request is worth repeating.
// Malformed or forbidden requests fail the same way every time.
func retryable(err error) bool {
	var execErr *ExecutorError
	if errors.As(err, &execErr) {
		return execErr.Status < 400 || execErr.Status >= 500
	}
	return true
}

func (o *Orchestrator) withRetry(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	attempts := o.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(o.retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		o.logger.Warn().Err(err).Str("action", action).Int("attempt", attempt).Msg("request failed")
		return retry.RetryableError(err)
	})
}

func (o *Orchestrator) counts(ctx context.Context, kind models.RecordKind) (int, error) {
	var counts Counts
	err := o.withRetry(ctx, "get_counts", func(ctx context.Context) error {
		var err error
		counts, err = o.client.Counts(ctx)
		return err
	})
	return counts.For(kind), err
}

// RunDelete removes every record of kind. Records that cannot be deleted
// stay in the listing, so each page starts past the ones skipped so far.
// After the pass a fresh count decides whether one more pass is needed.
func (o *Orchestrator) RunDelete(ctx context.Context, kind models.RecordKind) (Snapshot, error) {
	if kind != models.RecordOrder && kind != models.RecordProduct {
		return o.Snapshot(), &ValidationError{Field: "kind", Message: "must be orders or products"}
	}
	if err := o.begin(0, false); err != nil {
		return o.Snapshot(), err
	}

	total, err := o.counts(ctx, kind)
	if err != nil {
		return o.finish(StateErrored, err)
	}
	o.update(func(c *Counters) { c.Total = total })
	o.logger.Info().Str("kind", string(kind)).Int("total", total).Msg("delete started")
	if total == 0 {
		return o.finish(StateCompleted, nil)
	}

	for pass := 0; pass < 2; pass++ {
		if o.stopping() {
			return o.finish(StateStopped, nil)
		}
		skipped, halt, err := o.deletePass(ctx, kind)
		if halt {
			return o.finish(StateStopped, err)
		}
		if err != nil {
			return o.finish(StateErrored, err)
		}
		if pass == 1 {
			break
		}

		if err := o.sleep(ctx, o.verifyDelay); err != nil {
			return o.finish(StateStopped, err)
		}
		remaining, err := o.counts(ctx, kind)
		if err != nil {
			return o.finish(StateErrored, err)
		}
		if remaining <= skipped {
			break
		}
		o.logger.Info().Int("remaining", remaining).Int("skipped", skipped).Msg("records remain after delete pass")
		// The next pass sees the skipped records again.
		o.update(func(c *Counters) {
			c.Skipped -= skipped
			c.Total = c.Success + remaining
		})
	}
	return o.finish(StateCompleted, nil)
}

func (o *Orchestrator) deletePass(ctx context.Context, kind models.RecordKind) (skipped int, halt bool, err error) {
	offset := 0
	for {
		var res DeleteBatchResult
		err := o.withRetry(ctx, "delete_batch", func(ctx context.Context) error {
			var err error
			res, err = o.client.DeleteBatch(ctx, kind, offset)
			return err
		})
		if err != nil {
			return skipped, false, err
		}
		o.merge(res.Deleted, 0, res.Skipped)
		for _, ue := range res.Errors {
			o.logger.Debug().Str("record", ue.Identifier).Str("reason", ue.Reason).Msg("record not deleted")
		}
		skipped += res.Skipped
		offset += res.Skipped
		if res.Done {
			return skipped, false, nil
		}
		if res.Deleted+res.Skipped == 0 {
			return skipped, false, ErrNoProgress
		}
		stop, err := o.checkpoint(ctx, o.deletePause)
		if stop {
			return skipped, true, err
		}
	}
}
