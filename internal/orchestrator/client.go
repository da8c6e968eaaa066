// Package orchestrator drives multi-batch runs from the client side: one
// request at a time, with pacing, cooperative stop and retries for deletes.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/stanstork/bulkgen/internal/models"
)

// GenerateResult is the data of a generation batch response.
type GenerateResult struct {
	Success int                `json:"success"`
	Failed  int                `json:"failed"`
	Errors  []models.UnitError `json:"errors,omitempty"`
}

type ExportStart struct {
	Token        string `json:"export_session"`
	TotalRecords int    `json:"total_records"`
}

type ExportBatchResult struct {
	Success     int    `json:"success"`
	Failed      int    `json:"failed"`
	IsLastBatch bool   `json:"is_last_batch"`
	DownloadURL string `json:"download_url"`
}

// ImportRequest uploads FilePath on the first call and forwards Token on
// every later call.
type ImportRequest struct {
	Kind      models.RecordKind
	FilePath  string
	Token     string
	BatchSize int
	Batch     int
}

type ImportBatchResult struct {
	Processed     int                `json:"processed"`
	Successful    int                `json:"successful"`
	Failed        int                `json:"failed"`
	Skipped       int                `json:"skipped"`
	TotalRecords  int                `json:"total_records"`
	CurrentBatch  int                `json:"current_batch"`
	IsComplete    bool               `json:"is_complete"`
	ImportSession string             `json:"import_session"`
	Errors        []models.UnitError `json:"errors,omitempty"`
}

type Counts struct {
	Products int `json:"product_count"`
	Orders   int `json:"order_count"`
}

func (c Counts) For(kind models.RecordKind) int {
	if kind == models.RecordOrder {
		return c.Orders
	}
	return c.Products
}

type DeleteBatchResult struct {
	Deleted int                `json:"deleted"`
	Skipped int                `json:"skipped"`
	Errors  []models.UnitError `json:"errors"`
	Done    bool               `json:"done"`
}

// Client issues batch requests to the server.
type Client interface {
	GenerateBatch(ctx context.Context, kind models.RecordKind, size int, opts GenerateOptions) (GenerateResult, error)
	Stop(ctx context.Context) error
	StartExport(ctx context.Context, kind models.RecordKind, filters models.ExportFilters) (ExportStart, error)
	ExportBatch(ctx context.Context, token string, size, index, totalBatches int) (ExportBatchResult, error)
	ImportBatch(ctx context.Context, req ImportRequest) (ImportBatchResult, error)
	Counts(ctx context.Context) (Counts, error)
	DeleteBatch(ctx context.Context, kind models.RecordKind, offset int) (DeleteBatchResult, error)
}

// GenerateOptions carries optional generation parameters.
type GenerateOptions struct {
	BatchNumber int
	PriceMin    float64
	PriceMax    float64
}

// ValidationError rejects a run before any request is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// TransportError is a failed request: no response, or a response that is
// not a batch envelope.
type TransportError struct {
	Action string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExecutorError is a batch the server rejected as a whole.
type ExecutorError struct {
	Action  string
	Status  int
	Message string
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Action, e.Message)
}
