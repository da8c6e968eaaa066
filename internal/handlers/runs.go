package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	tc "go.temporal.io/sdk/client"

	"github.com/stanstork/bulkgen/internal/models"
	"github.com/stanstork/bulkgen/internal/repository"
	"github.com/stanstork/bulkgen/internal/temporal"
	"github.com/stanstork/bulkgen/internal/temporal/workflows"
)

var errRunsDisabled = errors.New("server-side runs are disabled")

type RunsHandler struct {
	repo           repository.BatchRunRepository
	temporalClient tc.Client
	taskQueue      string
	limits         RunLimits
	logger         zerolog.Logger
}

// RunLimits caps the totals a server-side run may target.
type RunLimits struct {
	MaxOrders   int
	MaxProducts int
}

// NewRunsHandler serves the batch run log. A nil client disables
// server-side runs.
func NewRunsHandler(repo repository.BatchRunRepository, client tc.Client, taskQueue string, limits RunLimits, logger zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		repo:           repo,
		temporalClient: client,
		taskQueue:      taskQueue,
		limits:         limits,
		logger:         logger.With().Str("handler", "runs").Logger(),
	}
}

func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	// parse query params with defaults
	limit := 20
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil {
			offset = v
		}
	}

	runs, err := h.repo.ListRecent(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "Failed to list batch runs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.BatchRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *RunsHandler) RunStats(w http.ResponseWriter, r *http.Request) {
	days := 31 // default to 31 days
	if d := r.URL.Query().Get("days"); d != "" {
		if v, err := strconv.Atoi(d); err == nil && v > 0 {
			days = v
		}
	}

	stats, err := h.repo.Stats(r.Context(), days)
	if err != nil {
		http.Error(w, "Failed to get batch run stats: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type startRunRequest struct {
	Kind      string  `json:"kind"`
	Total     int     `json:"total"`
	BatchSize int     `json:"batch_size"`
	PriceMin  float64 `json:"price_min"`
	PriceMax  float64 `json:"price_max"`
}

func (h *RunsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	if h.temporalClient == nil {
		http.Error(w, errRunsDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	params, err := h.runParams(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := tc.StartWorkflowOptions{
		ID:        temporal.RunWorkflowIDPrefix + params.RunID,
		TaskQueue: h.taskQueue,
	}
	if _, err := h.temporalClient.ExecuteWorkflow(r.Context(), opts, workflows.GenerationWorkflow, params); err != nil {
		h.logger.Error().Err(err).Msg("failed to start generation run")
		http.Error(w, "Failed to start run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.logger.Info().Str("run_id", params.RunID).Str("kind", string(params.Kind)).Int("total", params.Total).Msg("generation run started")
	writeJSON(w, http.StatusAccepted, temporal.RunProgress{RunID: params.RunID, State: temporal.RunRunning, Total: params.Total})
}

func (h *RunsHandler) runParams(req startRunRequest) (temporal.RunParams, error) {
	kind, ok := models.ParseRecordKind(req.Kind)
	if !ok {
		return temporal.RunParams{}, errors.New("kind must be orders or products")
	}
	limit := h.limits.MaxOrders
	if kind == models.RecordProduct {
		limit = h.limits.MaxProducts
	}
	if req.Total < 1 || (limit > 0 && req.Total > limit) {
		return temporal.RunParams{}, errors.Errorf("total must be between 1 and %d", limit)
	}
	op := models.OperationFor(models.FamilyGeneration, kind)
	lo, hi := op.SizeBounds()
	if req.BatchSize < lo || req.BatchSize > hi {
		return temporal.RunParams{}, errors.Errorf("batch_size must be between %d and %d", lo, hi)
	}
	return temporal.RunParams{
		RunID:     uuid.NewString(),
		Kind:      kind,
		Total:     req.Total,
		BatchSize: req.BatchSize,
		PriceMin:  req.PriceMin,
		PriceMax:  req.PriceMax,
	}, nil
}

// SignalStop asks a running generation workflow to stop at its next
// checkpoint.
func (h *RunsHandler) SignalStop(ctx context.Context, runID string) error {
	if h.temporalClient == nil {
		return errRunsDisabled
	}
	err := h.temporalClient.SignalWorkflow(ctx, temporal.RunWorkflowIDPrefix+runID, "", temporal.StopSignal, nil)
	return errors.Wrapf(err, "failed to stop run %s", runID)
}

func (h *RunsHandler) StopRun(w http.ResponseWriter, r *http.Request) {
	if h.temporalClient == nil {
		http.Error(w, errRunsDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	runID := mux.Vars(r)["runID"]
	if err := h.SignalStop(r.Context(), runID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.temporalClient == nil {
		http.Error(w, errRunsDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	runID := mux.Vars(r)["runID"]
	res, err := h.temporalClient.QueryWorkflow(r.Context(), temporal.RunWorkflowIDPrefix+runID, "", temporal.ProgressQuery)
	if err != nil {
		http.Error(w, "Failed to get run progress: "+err.Error(), http.StatusNotFound)
		return
	}
	var progress temporal.RunProgress
	if err := res.Get(&progress); err != nil {
		http.Error(w, "Failed to decode run progress: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}
