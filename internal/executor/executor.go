// Package executor runs one bounded batch of unit operations against the
// record store and reports per-unit outcomes.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/bulkgen/internal/generator"
	"github.com/stanstork/bulkgen/internal/metrics"
	"github.com/stanstork/bulkgen/internal/models"
	"github.com/stanstork/bulkgen/internal/repository"
	"github.com/stanstork/bulkgen/internal/session"
)

var (
	ErrEmptyCatalog     = errors.New("no purchasable products found")
	ErrMissingUpload    = errors.New("import file is missing or unreadable")
	ErrStoreUnavailable = errors.New("record store unavailable")
	ErrUnsupported      = errors.New("unsupported operation")
)

// Error is a whole-batch failure: the batch did not run and produced no
// result.
type Error struct {
	Op  models.OperationKind
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Settings carries the configured generation parameters.
type Settings struct {
	OrderBatchSize   int
	ProductBatchSize int
	DateRangeDays    int
	ProductsPerOrder int
	PriceMin         float64
	PriceMax         float64
	PlaceholderImage string
}

const transferBatchSize = 50

// DefaultBatchSize is the size used when a request does not name one.
func (s Settings) DefaultBatchSize(op models.OperationKind) int {
	switch op {
	case models.OpGenerateOrders:
		return s.OrderBatchSize
	case models.OpGenerateProducts:
		return s.ProductBatchSize
	case models.OpDeleteOrders, models.OpDeleteProducts:
		return models.DeletePageSize
	default:
		return transferBatchSize
	}
}

// BatchContext carries the per-family inputs of one batch.
type BatchContext struct {
	Offset       int
	Token        string
	BatchIndex   int
	TotalBatches int
	PriceMin     float64
	PriceMax     float64
}

// Outcome is a BatchResult plus the session fields some families report.
type Outcome struct {
	models.BatchResult
	IsLastBatch  bool
	ArtifactRef  string
	TotalRecords int
	Complete     bool
}

type Deps struct {
	Store   repository.RecordStore
	Tracker *session.Tracker
	Runs    repository.BatchRunRepository
	Metrics *metrics.Metrics
	Rand    generator.Rand
}

type batchFunc func(ctx context.Context, size int, bc BatchContext) (Outcome, error)

type Executor struct {
	store    repository.RecordStore
	tracker  *session.Tracker
	runs     repository.BatchRunRepository
	metrics  *metrics.Metrics
	rand     generator.Rand
	settings Settings
	now      func() time.Time
	ops      map[models.OperationKind]batchFunc
	logger   zerolog.Logger
}

func New(deps Deps, settings Settings, logger zerolog.Logger) *Executor {
	if deps.Rand == nil {
		deps.Rand = generator.Default()
	}
	e := &Executor{
		store:    deps.Store,
		tracker:  deps.Tracker,
		runs:     deps.Runs,
		metrics:  deps.Metrics,
		rand:     deps.Rand,
		settings: settings,
		now:      time.Now,
		logger:   logger.With().Str("component", "executor").Logger(),
	}
	e.ops = map[models.OperationKind]batchFunc{
		models.OpGenerateOrders:   e.generateOrders,
		models.OpGenerateProducts: e.generateProducts,
		models.OpDeleteOrders:     e.deleteOrders,
		models.OpDeleteProducts:   e.deleteProducts,
		models.OpExportOrders:     e.exportBatch,
		models.OpExportProducts:   e.exportBatch,
		models.OpImportOrders:     e.importBatch,
		models.OpImportProducts:   e.importBatch,
	}
	return e
}

// Execute runs one batch of op. The batch size is clamped to the
// operation's bounds first.
func (e *Executor) Execute(ctx context.Context, op models.OperationKind, batchSize int, bc BatchContext) (Outcome, error) {
	run, ok := e.ops[op]
	if !ok {
		return Outcome{}, &Error{Op: op, Err: ErrUnsupported}
	}
	size := op.ClampBatchSize(batchSize, e.settings.DefaultBatchSize(op))

	start := e.now()
	out, err := run(ctx, size, bc)
	elapsed := e.now().Sub(start)
	if err != nil {
		var execErr *Error
		if !errors.As(err, &execErr) {
			err = &Error{Op: op, Err: err}
		}
		e.metrics.IncBatchErrored(op)
		e.logger.Error().Err(err).Str("operation", string(op)).Int("batch_size", size).Msg("batch rejected")
	} else {
		e.metrics.ObserveBatch(op, out.BatchResult, elapsed)
		e.logger.Debug().
			Str("operation", string(op)).
			Int("attempted", out.Attempted).
			Int("succeeded", out.Succeeded).
			Int("failed", out.Failed).
			Int("skipped", out.Skipped).
			Msg("batch executed")
	}
	e.record(ctx, op, size, out.BatchResult, elapsed, err)
	return out, err
}

func (e *Executor) record(ctx context.Context, op models.OperationKind, size int, res models.BatchResult, elapsed time.Duration, batchErr error) {
	if e.runs == nil {
		return
	}
	run := models.BatchRun{
		Operation:  op,
		BatchSize:  size,
		Attempted:  res.Attempted,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  e.now().UTC(),
	}
	if batchErr != nil {
		msg := batchErr.Error()
		run.Error = &msg
	}
	if _, err := e.runs.Record(ctx, run); err != nil {
		e.logger.Warn().Err(err).Str("operation", string(op)).Msg("failed to record batch run")
	}
}

// Counts reports the number of top-level products and orders.
type Counts struct {
	Products int `json:"product_count"`
	Orders   int `json:"order_count"`
}

func (e *Executor) Counts(ctx context.Context) (Counts, error) {
	products, err := e.store.Products.Count(ctx, models.ProductFilter{})
	if err != nil {
		return Counts{}, errors.Wrap(err, "failed to count products")
	}
	orders, err := e.store.Orders.Count(ctx, models.OrderFilter{})
	if err != nil {
		return Counts{}, errors.Wrap(err, "failed to count orders")
	}
	return Counts{Products: products, Orders: orders}, nil
}

func (e *Executor) ping(ctx context.Context, op models.OperationKind) error {
	var err error
	if op.Record() == models.RecordOrder {
		err = e.store.Orders.Ping(ctx)
	} else {
		err = e.store.Products.Ping(ctx)
	}
	if err != nil {
		return &Error{Op: op, Err: errors.Wrap(ErrStoreUnavailable, err.Error())}
	}
	return nil
}
