package models

import "time"

// OperationKind names one batch operation exposed to clients.
type OperationKind string

const (
	OpGenerateOrders   OperationKind = "generate_orders"
	OpGenerateProducts OperationKind = "generate_products"
	OpExportOrders     OperationKind = "export_orders"
	OpExportProducts   OperationKind = "export_products"
	OpImportOrders     OperationKind = "import_orders"
	OpImportProducts   OperationKind = "import_products"
	OpDeleteOrders     OperationKind = "delete_orders"
	OpDeleteProducts   OperationKind = "delete_products"
)

// RecordKind is the kind of record an operation touches.
type RecordKind string

const (
	RecordOrder   RecordKind = "order"
	RecordProduct RecordKind = "product"
)

// ParseRecordKind accepts the singular and plural spellings used by clients.
func ParseRecordKind(raw string) (RecordKind, bool) {
	switch raw {
	case "order", "orders":
		return RecordOrder, true
	case "product", "products":
		return RecordProduct, true
	default:
		return "", false
	}
}

// Family groups operations that share an anti-forgery token.
type Family string

const (
	FamilyGeneration Family = "generation"
	FamilyExport     Family = "export"
	FamilyImport     Family = "import"
	FamilyDelete     Family = "delete"
)

// Families lists every operation family in a stable order.
var Families = []Family{FamilyGeneration, FamilyExport, FamilyImport, FamilyDelete}

func (k OperationKind) Family() Family {
	switch k {
	case OpGenerateOrders, OpGenerateProducts:
		return FamilyGeneration
	case OpExportOrders, OpExportProducts:
		return FamilyExport
	case OpImportOrders, OpImportProducts:
		return FamilyImport
	default:
		return FamilyDelete
	}
}

func (k OperationKind) Record() RecordKind {
	switch k {
	case OpGenerateOrders, OpExportOrders, OpImportOrders, OpDeleteOrders:
		return RecordOrder
	default:
		return RecordProduct
	}
}

// OperationFor returns the operation of the given family acting on kind.
func OperationFor(family Family, kind RecordKind) OperationKind {
	orders := kind == RecordOrder
	switch family {
	case FamilyGeneration:
		if orders {
			return OpGenerateOrders
		}
		return OpGenerateProducts
	case FamilyExport:
		if orders {
			return OpExportOrders
		}
		return OpExportProducts
	case FamilyImport:
		if orders {
			return OpImportOrders
		}
		return OpImportProducts
	default:
		if orders {
			return OpDeleteOrders
		}
		return OpDeleteProducts
	}
}

// BatchJob describes one multi-batch run as the client sees it.
type BatchJob struct {
	Kind        OperationKind `json:"kind"`
	BatchSize   int           `json:"batch_size"`
	TotalTarget int           `json:"total_target"` // 0 means until exhausted
	Offset      int           `json:"offset"`
	BatchIndex  int           `json:"batch_index"`
}

// UnitError records why a single unit operation failed or was skipped.
type UnitError struct {
	Identifier string `json:"id"`
	Reason     string `json:"error"`
}

// BatchResult aggregates the unit outcomes of one batch.
type BatchResult struct {
	Attempted int         `json:"attempted"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Done      bool        `json:"done"`
	Errors    []UnitError `json:"errors"`
}

func (r *BatchResult) Succeed() {
	r.Attempted++
	r.Succeeded++
}

func (r *BatchResult) Fail(id, reason string) {
	r.Attempted++
	r.Failed++
	r.Errors = append(r.Errors, UnitError{Identifier: id, Reason: reason})
}

func (r *BatchResult) Skip(id, reason string) {
	r.Attempted++
	r.Skipped++
	r.Errors = append(r.Errors, UnitError{Identifier: id, Reason: reason})
}

// Balanced reports whether every attempt was classified exactly once.
func (r BatchResult) Balanced() bool {
	return r.Attempted == r.Succeeded+r.Failed+r.Skipped
}

// BatchRun is the persisted log entry for one executed batch.
type BatchRun struct {
	ID         string        `json:"id" db:"id"`
	Operation  OperationKind `json:"operation" db:"operation"`
	BatchSize  int           `json:"batch_size" db:"batch_size"`
	Attempted  int           `json:"attempted" db:"attempted"`
	Succeeded  int           `json:"succeeded" db:"succeeded"`
	Failed     int           `json:"failed" db:"failed"`
	Skipped    int           `json:"skipped" db:"skipped"`
	DurationMS int64         `json:"duration_ms" db:"duration_ms"`
	Error      *string       `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// DeletePageSize is the fixed number of records one delete batch lists.
const DeletePageSize = 40

// SizeBounds returns the batch size range the operation accepts.
func (k OperationKind) SizeBounds() (lo, hi int) {
	switch k {
	case OpGenerateProducts:
		return 1, 50
	case OpGenerateOrders:
		return 1, 100
	case OpDeleteOrders, OpDeleteProducts:
		return DeletePageSize, DeletePageSize
	default:
		return 1, 500
	}
}

// ClampBatchSize moves n into the operation's bounds. Zero selects def.
func (k OperationKind) ClampBatchSize(n, def int) int {
	lo, hi := k.SizeBounds()
	if n == 0 {
		n = def
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
