package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/bulkgen/internal/authz"
	"github.com/stanstork/bulkgen/internal/executor"
	"github.com/stanstork/bulkgen/internal/models"
)

const maxUploadBytes = 64 << 20

// NonceHeader may carry the family nonce instead of the nonce form field.
const NonceHeader = "X-Bulkgen-Nonce"

type actionFunc func(r *http.Request) (interface{}, error)

type action struct {
	family models.Family
	run    actionFunc
}

// badRequest marks malformed client input.
type badRequest struct {
	msg string
}

func (e badRequest) Error() string { return e.msg }

type AjaxHandler struct {
	exec    *executor.Executor
	nonces  *authz.Nonces
	stopper RunStopper
	actions map[string]action
	logger  zerolog.Logger
}

// RunStopper signals a server-side run to stop.
type RunStopper interface {
	SignalStop(ctx context.Context, runID string) error
}

func NewAjaxHandler(exec *executor.Executor, nonces *authz.Nonces, stopper RunStopper, logger zerolog.Logger) *AjaxHandler {
	h := &AjaxHandler{
		exec:    exec,
		nonces:  nonces,
		stopper: stopper,
		logger:  logger.With().Str("handler", "ajax").Logger(),
	}
	h.actions = map[string]action{
		"generate_orders_batch":   {models.FamilyGeneration, h.generateOrders},
		"generate_products_batch": {models.FamilyGeneration, h.generateProducts},
		"stop_generation":         {models.FamilyGeneration, h.stopGeneration},
		"start_export":            {models.FamilyExport, h.startExport},
		"export_batch":            {models.FamilyExport, h.exportBatch},
		"import_batch":            {models.FamilyImport, h.importBatch},
		"get_counts":              {models.FamilyDelete, h.getCounts},
		"delete_batch":            {models.FamilyDelete, h.deleteBatch},
	}
	return h
}

// Dispatch resolves the action named in the path, checks its family nonce
// and runs it.
func (h *AjaxHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["action"]
	act, ok := h.actions[name]
	if !ok {
		writeFailure(w, http.StatusBadRequest, "unknown action "+name)
		return
	}

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxUploadBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	subject, _ := authz.SubjectFromRequest(r)
	nonce := r.FormValue("nonce")
	if nonce == "" {
		nonce = r.Header.Get(NonceHeader)
	}
	if err := h.nonces.Verify(nonce, subject, act.family); err != nil {
		writeFailure(w, http.StatusForbidden, err.Error())
		return
	}

	data, err := act.run(r)
	if err != nil {
		h.fail(w, name, err)
		return
	}
	writeSuccess(w, data)
}

func (h *AjaxHandler) fail(w http.ResponseWriter, name string, err error) {
	var bad badRequest
	var execErr *executor.Error
	switch {
	case errors.As(err, &bad):
		writeFailure(w, http.StatusBadRequest, bad.msg)
	case errors.As(err, &execErr):
		// The batch was rejected as a whole; the envelope reports it.
		h.logger.Warn().Err(err).Str("action", name).Msg("batch rejected")
		writeFailure(w, http.StatusOK, execErr.Error())
	default:
		h.logger.Error().Err(err).Str("action", name).Msg("action failed")
		writeFailure(w, http.StatusInternalServerError, err.Error())
	}
}

func formInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest{msg: "invalid " + key}
	}
	return v, nil
}

func formFloat(r *http.Request, key string) (float64, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, badRequest{msg: "invalid " + key}
	}
	return v, nil
}

// formList collects key and key[] values, dropping blanks.
func formList(r *http.Request, key string) []string {
	var out []string
	for _, k := range []string{key, key + "[]"} {
		for _, v := range r.Form[k] {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func formKind(r *http.Request) (models.RecordKind, error) {
	kind, ok := models.ParseRecordKind(strings.TrimSpace(r.FormValue("kind")))
	if !ok {
		return "", badRequest{msg: "kind must be orders or products"}
	}
	return kind, nil
}

type generationData struct {
	Success int                `json:"success"`
	Failed  int                `json:"failed"`
	Errors  []models.UnitError `json:"errors,omitempty"`
}

func (h *AjaxHandler) generateOrders(r *http.Request) (interface{}, error) {
	size, err := formInt(r, "batch_size")
	if err != nil {
		return nil, err
	}
	out, err := h.exec.Execute(r.Context(), models.OpGenerateOrders, size, executor.BatchContext{})
	if err != nil {
		return nil, err
	}
	return generationData{Success: out.Succeeded, Failed: out.Failed, Errors: out.Errors}, nil
}

func (h *AjaxHandler) generateProducts(r *http.Request) (interface{}, error) {
	size, err := formInt(r, "batch_size")
	if err != nil {
		return nil, err
	}
	priceMin, err := formFloat(r, "price_min")
	if err != nil {
		return nil, err
	}
	priceMax, err := formFloat(r, "price_max")
	if err != nil {
		return nil, err
	}
	if priceMin < 0 || priceMax < 0 || (priceMax > 0 && priceMin > priceMax) {
		return nil, badRequest{msg: "invalid price range"}
	}
	out, err := h.exec.Execute(r.Context(), models.OpGenerateProducts, size, executor.BatchContext{
		PriceMin: priceMin,
		PriceMax: priceMax,
	})
	if err != nil {
		return nil, err
	}
	return generationData{Success: out.Succeeded, Failed: out.Failed, Errors: out.Errors}, nil
}

// stopGeneration acknowledges a client-side stop. Client-driven runs halt
// at their next checkpoint on their own; a run_id also stops a server run.
func (h *AjaxHandler) stopGeneration(r *http.Request) (interface{}, error) {
	runID := strings.TrimSpace(r.FormValue("run_id"))
	if runID != "" && h.stopper != nil {
		if err := h.stopper.SignalStop(r.Context(), runID); err != nil {
			return nil, err
		}
	}
	h.logger.Info().Str("run_id", runID).Msg("stop requested")
	return map[string]bool{"stopped": true}, nil
}

func (h *AjaxHandler) startExport(r *http.Request) (interface{}, error) {
	kind, err := formKind(r)
	if err != nil {
		return nil, err
	}
	filters, err := exportFilters(r)
	if err != nil {
		return nil, err
	}
	sess, err := h.exec.StartExport(r.Context(), kind, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"export_session": sess.Token,
		"total_records":  sess.TotalRecords,
	}, nil
}

func exportFilters(r *http.Request) (models.ExportFilters, error) {
	f := models.ExportFilters{
		ExportAll:    r.FormValue("export_all") == "1" || r.FormValue("export_all") == "true",
		DateFrom:     strings.TrimSpace(r.FormValue("date_from")),
		DateTo:       strings.TrimSpace(r.FormValue("date_to")),
		Statuses:     formList(r, "statuses"),
		ProductTypes: formList(r, "product_types"),
		Categories:   formList(r, "categories"),
		Tags:         formList(r, "tags"),
	}
	if err := f.Validate(); err != nil {
		return f, badRequest{msg: err.Error()}
	}
	return f, nil
}

type exportData struct {
	Success     int    `json:"success"`
	Failed      int    `json:"failed"`
	IsLastBatch bool   `json:"is_last_batch"`
	DownloadURL string `json:"download_url,omitempty"`
}

func (h *AjaxHandler) exportBatch(r *http.Request) (interface{}, error) {
	token := strings.TrimSpace(r.FormValue("export_session"))
	if token == "" {
		return nil, badRequest{msg: "export_session is required"}
	}
	size, err := formInt(r, "batch_size")
	if err != nil {
		return nil, err
	}
	index, err := formInt(r, "batch_number")
	if err != nil {
		return nil, err
	}
	total, err := formInt(r, "total_batches")
	if err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, badRequest{msg: "invalid batch_number"}
	}

	sess, err := h.exec.Export(r.Context(), token)
	if err != nil {
		return nil, err
	}
	op := models.OperationFor(models.FamilyExport, sess.Kind)
	out, err := h.exec.Execute(r.Context(), op, size, executor.BatchContext{
		Token:        token,
		BatchIndex:   index,
		TotalBatches: total,
	})
	if err != nil {
		return nil, err
	}
	return exportData{
		Success:     out.Succeeded,
		Failed:      out.Failed,
		IsLastBatch: out.IsLastBatch,
		DownloadURL: out.ArtifactRef,
	}, nil
}

type importData struct {
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

func (h *AjaxHandler) importBatch(r *http.Request) (interface{}, error) {
	size, err := formInt(r, "batch_size")
	if err != nil {
		return nil, err
	}
	index, err := formInt(r, "current_batch")
	if err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, badRequest{msg: "invalid current_batch"}
	}

	token := strings.TrimSpace(r.FormValue("import_session"))
	var kind models.RecordKind
	if token == "" {
		if kind, err = formKind(r); err != nil {
			return nil, err
		}
		file, header, err := r.FormFile("csv_file")
		if err != nil {
			return nil, badRequest{msg: "csv_file or import_session is required"}
		}
		defer file.Close()
		sess, err := h.exec.StartImport(r.Context(), kind, header.Filename, file)
		if err != nil {
			return nil, err
		}
		token = sess.Token
	} else {
		sess, err := h.exec.Import(r.Context(), token)
		if err != nil {
			return nil, err
		}
		kind = sess.Kind
	}

	op := models.OperationFor(models.FamilyImport, kind)
	out, err := h.exec.Execute(r.Context(), op, size, executor.BatchContext{Token: token, BatchIndex: index})
	if err != nil {
		return nil, err
	}
	return importData{
		Processed:     out.Attempted,
		Successful:    out.Succeeded,
		Failed:        out.Failed,
		Skipped:       out.Skipped,
		TotalRecords:  out.TotalRecords,
		CurrentBatch:  index,
		IsComplete:    out.Complete,
		ImportSession: token,
		Errors:        out.Errors,
	}, nil
}

func (h *AjaxHandler) getCounts(r *http.Request) (interface{}, error) {
	counts, err := h.exec.Counts(r.Context())
	if err != nil {
		return nil, err
	}
	return counts, nil
}

type deleteData struct {
	Deleted int                `json:"deleted"`
	Skipped int                `json:"skipped"`
	Errors  []models.UnitError `json:"errors"`
	Done    bool               `json:"done"`
}

func (h *AjaxHandler) deleteBatch(r *http.Request) (interface{}, error) {
	kind, err := formKind(r)
	if err != nil {
		return nil, err
	}
	offset, err := formInt(r, "offset")
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, badRequest{msg: "invalid offset"}
	}
	op := models.OperationFor(models.FamilyDelete, kind)
	out, err := h.exec.Execute(r.Context(), op, models.DeletePageSize, executor.BatchContext{Offset: offset})
	if err != nil {
		return nil, err
	}
	errs := out.Errors
	if errs == nil {
		errs = []models.UnitError{}
	}
	return deleteData{Deleted: out.Succeeded, Skipped: out.Skipped, Errors: errs, Done: out.Done}, nil
}
