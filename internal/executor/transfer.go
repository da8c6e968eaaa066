package executor

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/stanstork/bulkgen/internal/fieldmap"
	"github.com/stanstork/bulkgen/internal/models"
	"github.com/stanstork/bulkgen/internal/repository"
	"github.com/stanstork/bulkgen/internal/session"
)

// StartExport counts the records matching filters once and opens an export
// session over them.
func (e *Executor) StartExport(ctx context.Context, kind models.RecordKind, filters models.ExportFilters) (models.ExportSession, error) {
	op := models.OperationFor(models.FamilyExport, kind)
	if err := e.ping(ctx, op); err != nil {
		return models.ExportSession{}, err
	}

	var (
		total int
		err   error
	)
	if kind == models.RecordOrder {
		total, err = e.store.Orders.Count(ctx, filters.OrderFilter())
	} else {
		total, err = e.store.Products.Count(ctx, filters.ProductFilter())
	}
	if err != nil {
		return models.ExportSession{}, &Error{Op: op, Err: errors.Wrap(err, "failed to count records")}
	}

	sess, err := e.tracker.StartExport(ctx, kind, filters, total)
	if err != nil {
		return models.ExportSession{}, &Error{Op: op, Err: err}
	}
	e.metrics.IncSessionStarted(models.FamilyExport, kind)
	return sess, nil
}

func (e *Executor) exportBatch(ctx context.Context, size int, bc BatchContext) (Outcome, error) {
	sess, err := e.tracker.Export(ctx, bc.Token)
	if err != nil {
		return Outcome{}, err
	}
	op := models.OperationFor(models.FamilyExport, sess.Kind)
	if err := e.ping(ctx, op); err != nil {
		return Outcome{}, err
	}

	offset := bc.BatchIndex * size
	var out Outcome
	var rows [][]string
	if sess.Kind == models.RecordOrder {
		orders, err := e.store.Orders.List(ctx, sess.Filters.OrderFilter(), offset, size)
		if err != nil {
			return Outcome{}, &Error{Op: op, Err: errors.Wrap(err, "failed to list orders")}
		}
		for _, o := range orders {
			rows = append(rows, fieldmap.OrderRow(o))
			out.Succeed()
		}
	} else {
		products, err := e.store.Products.List(ctx, sess.Filters.ProductFilter(), offset, size)
		if err != nil {
			return Outcome{}, &Error{Op: op, Err: errors.Wrap(err, "failed to list products")}
		}
		for _, p := range products {
			rows = append(rows, fieldmap.ProductRow(p))
			out.Succeed()
		}
	}

	written, err := e.tracker.WriteBatch(ctx, sess.Token, bc.BatchIndex, size, bc.TotalBatches, rows)
	if err != nil {
		return Outcome{}, &Error{Op: op, Err: err}
	}
	out.IsLastBatch = written.IsLastBatch
	out.Done = written.IsLastBatch
	out.ArtifactRef = written.ArtifactRef
	out.TotalRecords = sess.TotalRecords
	if written.ArtifactRef != "" {
		e.metrics.IncArtifactPublished()
	}
	return out, nil
}

// StartImport stores an uploaded CSV and counts the logical records in it.
func (e *Executor) StartImport(ctx context.Context, kind models.RecordKind, filename string, upload io.Reader) (models.ImportSession, error) {
	op := models.OperationFor(models.FamilyImport, kind)
	sess, err := e.tracker.StartImport(ctx, kind, filename, upload)
	if err != nil {
		return models.ImportSession{}, &Error{Op: op, Err: err}
	}
	units, err := loadImport(sess)
	if err != nil {
		_ = e.tracker.SaveImport(ctx, sess, true)
		return models.ImportSession{}, &Error{Op: op, Err: err}
	}
	sess.TotalRecords = units.len()
	if err := e.tracker.SaveImport(ctx, sess, false); err != nil {
		return models.ImportSession{}, &Error{Op: op, Err: err}
	}
	e.metrics.IncSessionStarted(models.FamilyImport, kind)
	return sess, nil
}

// importUnits holds the logical records of one upload.
type importUnits struct {
	orders   []fieldmap.OrderRecord
	products []fieldmap.Row
}

func (u importUnits) len() int {
	return len(u.orders) + len(u.products)
}

func loadImport(sess models.ImportSession) (importUnits, error) {
	f, err := os.Open(sess.Path)
	if err != nil {
		return importUnits{}, errors.Wrap(ErrMissingUpload, err.Error())
	}
	defer f.Close()

	rows, err := fieldmap.ReadRows(f)
	if err != nil {
		return importUnits{}, errors.Wrap(ErrMissingUpload, err.Error())
	}
	if sess.Kind == models.RecordOrder {
		return importUnits{orders: fieldmap.GroupOrders(rows)}, nil
	}
	return importUnits{products: rows}, nil
}

func (e *Executor) importBatch(ctx context.Context, size int, bc BatchContext) (Outcome, error) {
	sess, err := e.tracker.Import(ctx, bc.Token)
	if err != nil {
		return Outcome{}, err
	}
	op := models.OperationFor(models.FamilyImport, sess.Kind)
	if err := e.ping(ctx, op); err != nil {
		return Outcome{}, err
	}
	units, err := loadImport(sess)
	if err != nil {
		return Outcome{}, &Error{Op: op, Err: err}
	}

	lo := min(bc.BatchIndex*size, units.len())
	hi := min(lo+size, units.len())
	var out Outcome
	if sess.Kind == models.RecordOrder {
		for _, rec := range units.orders[lo:hi] {
			e.importOrder(ctx, rec, &out)
		}
	} else {
		for i, row := range units.products[lo:hi] {
			e.importProduct(ctx, lo+i, row, &out)
		}
	}

	out.TotalRecords = units.len()
	out.Complete = hi >= units.len()
	out.Done = out.Complete
	sess.BatchesProcessed = bc.BatchIndex + 1
	sess.TotalRecords = units.len()
	if err := e.tracker.SaveImport(ctx, sess, out.Complete); err != nil {
		return Outcome{}, &Error{Op: op, Err: err}
	}
	return out, nil
}

func (e *Executor) importOrder(ctx context.Context, rec fieldmap.OrderRecord, out *Outcome) {
	id := rec.Number
	if id == "" {
		id = "(no order id)"
	}
	order, err := fieldmap.BuildOrder(rec)
	if err != nil {
		out.Fail(id, err.Error())
		return
	}
	exists, err := e.store.Orders.ExistsByNumber(ctx, order.Number)
	if err != nil {
		out.Fail(id, err.Error())
		return
	}
	if exists {
		out.Skip(id, "order already exists")
		return
	}
	if _, err := e.store.Orders.Create(ctx, &order); err != nil {
		out.Fail(id, err.Error())
		return
	}
	out.Succeed()
}

func (e *Executor) importProduct(ctx context.Context, index int, row fieldmap.Row, out *Outcome) {
	id := "row " + strconv.Itoa(index+2)
	product, err := fieldmap.BuildProduct(row)
	if err != nil {
		out.Fail(id, err.Error())
		return
	}
	if product.SKU != "" {
		id = product.SKU
	}

	exists, err := e.productExists(ctx, product)
	if err != nil {
		out.Fail(id, err.Error())
		return
	}
	if exists {
		out.Skip(id, "product already exists")
		return
	}
	if err := e.store.Products.EnsureCategories(ctx, product.Categories); err != nil {
		out.Fail(id, err.Error())
		return
	}
	_, err = e.store.Products.Create(ctx, &product)
	switch {
	case errors.Is(err, repository.ErrDuplicateSKU):
		out.Skip(id, "product already exists")
	case err != nil:
		out.Fail(id, err.Error())
	default:
		out.Succeed()
	}
}

func (e *Executor) productExists(ctx context.Context, p models.Product) (bool, error) {
	sku, sourceID := fieldmap.DedupKey(p)
	switch {
	case sku != "":
		return e.store.Products.SKUExists(ctx, sku)
	case sourceID != "":
		return e.store.Products.ExistsByMeta(ctx, fieldmap.SourceIDMeta, sourceID)
	default:
		return false, nil
	}
}

// Export returns the session behind an export token.
func (e *Executor) Export(ctx context.Context, token string) (models.ExportSession, error) {
	sess, err := e.tracker.Export(ctx, token)
	if errors.Is(err, session.ErrUnknownSession) {
		return models.ExportSession{}, &Error{Op: models.OpExportOrders, Err: err}
	}
	return sess, err
}

// Import returns the session behind an import token.
func (e *Executor) Import(ctx context.Context, token string) (models.ImportSession, error) {
	sess, err := e.tracker.Import(ctx, token)
	if errors.Is(err, session.ErrUnknownSession) {
		return models.ImportSession{}, &Error{Op: models.OpImportOrders, Err: err}
	}
	return sess, err
}
