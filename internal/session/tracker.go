// Package session threads multi-batch export and import jobs through
// sequential requests. All state is keyed by an opaque token.
package session

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/bulkgen/internal/fieldmap"
	"github.com/stanstork/bulkgen/internal/models"
)

var (
	ErrUnknownSession = errors.New("unknown or expired session")
	ErrOutOfOrder     = errors.New("batch index out of order")
	ErrInvalidUpload  = errors.New("upload must be a .csv file")
)

// Export and import sessions live in separate key spaces so a token only
// resolves for the job type that minted it.
const (
	exportKeyPrefix = "export:"
	importKeyPrefix = "import:"
)

var exportNames = map[models.RecordKind]struct{ token, file string }{
	models.RecordOrder:   {"wc_bulk_export_", "wc-bulk-export-"},
	models.RecordProduct: {"wc_product_export_", "wc-product-export-"},
}

// WriteResult reports the outcome of one export batch write.
type WriteResult struct {
	IsLastBatch bool
	ArtifactRef string
}

type Tracker struct {
	store     Store
	publisher Publisher
	exportDir string
	uploadDir string
	now       func() time.Time
	logger    zerolog.Logger
}

func NewTracker(store Store, publisher Publisher, exportDir, uploadDir string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:     store,
		publisher: publisher,
		exportDir: exportDir,
		uploadDir: uploadDir,
		now:       time.Now,
		logger:    logger.With().Str("component", "session_tracker").Logger(),
	}
}

// StartExport mints a session for an export of total records.
func (t *Tracker) StartExport(ctx context.Context, kind models.RecordKind, filters models.ExportFilters, total int) (models.ExportSession, error) {
	names, ok := exportNames[kind]
	if !ok {
		return models.ExportSession{}, errors.Errorf("unsupported export kind %q", kind)
	}
	if err := os.MkdirAll(t.exportDir, 0o755); err != nil {
		return models.ExportSession{}, errors.Wrap(err, "failed to create export directory")
	}

	id := uuid.NewString()
	sess := models.ExportSession{
		Token:        names.token + id,
		Kind:         kind,
		TotalRecords: total,
		FileName:     names.file + id + ".csv",
		Filters:      filters,
		CreatedAt:    t.now().UTC(),
	}
	sess.Path = filepath.Join(t.exportDir, sess.FileName)
	if err := t.store.Put(ctx, exportKeyPrefix+sess.Token, sess); err != nil {
		return models.ExportSession{}, err
	}

	t.logger.Info().Str("session", sess.Token).Int("total_records", total).Msg("export session started")
	return sess, nil
}

func (t *Tracker) Export(ctx context.Context, token string) (models.ExportSession, error) {
	var sess models.ExportSession
	if err := t.store.Get(ctx, exportKeyPrefix+token, &sess); err != nil {
		return models.ExportSession{}, err
	}
	return sess, nil
}

// WriteBatch appends rows to the session artifact. Batch 0 truncates the
// artifact and writes the header; any other batch must directly follow the
// last one written.
func (t *Tracker) WriteBatch(ctx context.Context, token string, batchIndex, batchSize, totalBatches int, rows [][]string) (WriteResult, error) {
	sess, err := t.Export(ctx, token)
	if err != nil {
		return WriteResult{}, err
	}
	if batchIndex != 0 && batchIndex != sess.BatchesWritten {
		return WriteResult{}, errors.Wrapf(ErrOutOfOrder, "got %d, expected %d", batchIndex, sess.BatchesWritten)
	}

	var header []string
	flags := os.O_WRONLY | os.O_APPEND
	if batchIndex == 0 {
		header = headerFor(sess.Kind)
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(sess.Path, flags, 0o644)
	if err != nil {
		return WriteResult{}, errors.Wrapf(err, "failed to open export file %s", sess.FileName)
	}
	if err := fieldmap.WriteRows(f, header, rows); err != nil {
		f.Close()
		return WriteResult{}, errors.Wrapf(err, "failed to write export file %s", sess.FileName)
	}
	if err := f.Close(); err != nil {
		return WriteResult{}, errors.Wrapf(err, "failed to close export file %s", sess.FileName)
	}

	sess.BatchesWritten = batchIndex + 1
	if err := t.store.Put(ctx, exportKeyPrefix+token, sess); err != nil {
		return WriteResult{}, err
	}

	if totalBatches <= 0 {
		totalBatches = TotalBatches(sess.TotalRecords, batchSize)
	}
	result := WriteResult{IsLastBatch: batchIndex+1 >= totalBatches}
	if !result.IsLastBatch {
		return result, nil
	}

	result.ArtifactRef, err = t.publisher.Publish(ctx, sess.Path, sess.FileName)
	if err != nil {
		return WriteResult{}, err
	}
	t.logger.Info().Str("session", token).Str("artifact", result.ArtifactRef).Msg("export finished")
	return result, nil
}

// TotalBatches is ceil(total / batchSize), at least 1.
func TotalBatches(total, batchSize int) int {
	if batchSize <= 0 || total <= 0 {
		return 1
	}
	return (total + batchSize - 1) / batchSize
}

func headerFor(kind models.RecordKind) []string {
	if kind == models.RecordOrder {
		return fieldmap.OrderHeader
	}
	return fieldmap.ProductHeader
}

// StartImport stores an uploaded CSV under a fresh import session.
func (t *Tracker) StartImport(ctx context.Context, kind models.RecordKind, filename string, upload io.Reader) (models.ImportSession, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return models.ImportSession{}, ErrInvalidUpload
	}
	if err := os.MkdirAll(t.uploadDir, 0o755); err != nil {
		return models.ImportSession{}, errors.Wrap(err, "failed to create upload directory")
	}

	sess := models.ImportSession{
		Token:     "wc_bulk_import_" + uuid.NewString(),
		Kind:      kind,
		CreatedAt: t.now().UTC(),
	}
	sess.Path = filepath.Join(t.uploadDir, sess.Token+".csv")

	f, err := os.Create(sess.Path)
	if err != nil {
		return models.ImportSession{}, errors.Wrap(err, "failed to store upload")
	}
	if _, err := io.Copy(f, upload); err != nil {
		f.Close()
		return models.ImportSession{}, errors.Wrap(err, "failed to store upload")
	}
	if err := f.Close(); err != nil {
		return models.ImportSession{}, errors.Wrap(err, "failed to store upload")
	}

	if err := t.store.Put(ctx, importKeyPrefix+sess.Token, sess); err != nil {
		return models.ImportSession{}, err
	}
	t.logger.Info().Str("session", sess.Token).Str("kind", string(kind)).Msg("import session started")
	return sess, nil
}

func (t *Tracker) Import(ctx context.Context, token string) (models.ImportSession, error) {
	var sess models.ImportSession
	if err := t.store.Get(ctx, importKeyPrefix+token, &sess); err != nil {
		return models.ImportSession{}, err
	}
	return sess, nil
}

// SaveImport records progress on an import session. A complete session is
// dropped together with its upload.
func (t *Tracker) SaveImport(ctx context.Context, sess models.ImportSession, complete bool) error {
	if !complete {
		return t.store.Put(ctx, importKeyPrefix+sess.Token, sess)
	}
	if err := os.Remove(sess.Path); err != nil && !os.IsNotExist(err) {
		t.logger.Warn().Err(err).Str("session", sess.Token).Msg("failed to remove upload")
	}
	return t.store.Delete(ctx, importKeyPrefix+sess.Token)
}
