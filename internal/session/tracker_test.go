package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/bulkgen/internal/fieldmap"
	"github.com/stanstork/bulkgen/internal/models"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	dir := t.TempDir()
	return NewTracker(
		NewMemoryStore(0),
		LocalPublisher{BaseURL: "http://localhost:8080/"},
		filepath.Join(dir, "exports"),
		filepath.Join(dir, "uploads"),
		zerolog.Nop(),
	)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestStartExport_TokenAndFileNames(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	orders, err := tr.StartExport(ctx, models.RecordOrder, models.ExportFilters{}, 10)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(orders.Token, "wc_bulk_export_"))
	assert.True(t, strings.HasPrefix(orders.FileName, "wc-bulk-export-"))
	assert.True(t, strings.HasSuffix(orders.FileName, ".csv"))

	products, err := tr.StartExport(ctx, models.RecordProduct, models.ExportFilters{}, 10)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(products.Token, "wc_product_export_"))
	assert.True(t, strings.HasPrefix(products.FileName, "wc-product-export-"))
	assert.NotEqual(t, orders.Token, products.Token)
}

func TestWriteBatch_AppendsAndPublishesOnLastBatch(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	sess, err := tr.StartExport(ctx, models.RecordOrder, models.ExportFilters{}, 3)
	require.NoError(t, err)

	row := make([]string, len(fieldmap.OrderHeader))
	row[0] = "1"
	res, err := tr.WriteBatch(ctx, sess.Token, 0, 2, 2, [][]string{row, row})
	require.NoError(t, err)
	assert.False(t, res.IsLastBatch)
	assert.Empty(t, res.ArtifactRef)

	res, err = tr.WriteBatch(ctx, sess.Token, 1, 2, 2, [][]string{row})
	require.NoError(t, err)
	assert.True(t, res.IsLastBatch)
	assert.Equal(t, "http://localhost:8080/exports/"+sess.FileName, res.ArtifactRef)

	lines := readLines(t, sess.Path)
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(fieldmap.OrderHeader, ","), lines[0])

	stored, err := tr.Export(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.BatchesWritten)
}

func TestWriteBatch_RestartTruncates(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	sess, err := tr.StartExport(ctx, models.RecordOrder, models.ExportFilters{}, 10)
	require.NoError(t, err)

	row := make([]string, len(fieldmap.OrderHeader))
	_, err = tr.WriteBatch(ctx, sess.Token, 0, 1, 0, [][]string{row, row, row})
	require.NoError(t, err)
	_, err = tr.WriteBatch(ctx, sess.Token, 0, 1, 0, [][]string{row})
	require.NoError(t, err)

	assert.Len(t, readLines(t, sess.Path), 2)
}

func TestWriteBatch_Errors(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.WriteBatch(ctx, "wc_bulk_export_missing", 0, 10, 1, nil)
	assert.ErrorIs(t, err, ErrUnknownSession)

	sess, err := tr.StartExport(ctx, models.RecordProduct, models.ExportFilters{}, 30)
	require.NoError(t, err)
	_, err = tr.WriteBatch(ctx, sess.Token, 2, 10, 3, nil)
	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestWriteBatch_FallsBackToComputedTotal(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	sess, err := tr.StartExport(ctx, models.RecordProduct, models.ExportFilters{}, 5)
	require.NoError(t, err)
	res, err := tr.WriteBatch(ctx, sess.Token, 0, 10, 0, nil)
	require.NoError(t, err)
	assert.True(t, res.IsLastBatch)
}

func TestTotalBatches(t *testing.T) {
	assert.Equal(t, 4, TotalBatches(37, 10))
	assert.Equal(t, 1, TotalBatches(10, 10))
	assert.Equal(t, 1, TotalBatches(0, 10))
	assert.Equal(t, 1, TotalBatches(5, 0))
}

func TestImportSessionLifecycle(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.StartImport(ctx, models.RecordOrder, "orders.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidUpload)

	sess, err := tr.StartImport(ctx, models.RecordOrder, "Orders.CSV", strings.NewReader("Order ID\n1\n"))
	require.NoError(t, err)
	assert.FileExists(t, sess.Path)

	sess.BatchesProcessed = 1
	require.NoError(t, tr.SaveImport(ctx, sess, false))
	loaded, err := tr.Import(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.BatchesProcessed)

	require.NoError(t, tr.SaveImport(ctx, loaded, true))
	assert.NoFileExists(t, sess.Path)
	_, err = tr.Import(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestSessionTokensAreScopedToTheirJobType(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	upload := "Order ID,Date\n1001,2024-01-01\n"
	imp, err := tr.StartImport(ctx, models.RecordOrder, "orders.csv", strings.NewReader(upload))
	require.NoError(t, err)

	_, err = tr.Export(ctx, imp.Token)
	assert.ErrorIs(t, err, ErrUnknownSession)
	_, err = tr.WriteBatch(ctx, imp.Token, 0, 10, 5, nil)
	assert.ErrorIs(t, err, ErrUnknownSession)

	data, err := os.ReadFile(imp.Path)
	require.NoError(t, err)
	assert.Equal(t, upload, string(data), "upload must be untouched")

	exp, err := tr.StartExport(ctx, models.RecordOrder, models.ExportFilters{}, 1)
	require.NoError(t, err)
	_, err = tr.WriteBatch(ctx, exp.Token, 0, 10, 1, [][]string{})
	require.NoError(t, err)

	_, err = tr.Import(ctx, exp.Token)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.FileExists(t, exp.Path)

	// each token still resolves for its own job type
	_, err = tr.Import(ctx, imp.Token)
	assert.NoError(t, err)
	_, err = tr.Export(ctx, exp.Token)
	assert.NoError(t, err)
}
