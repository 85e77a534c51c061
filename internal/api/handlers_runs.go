// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/pricecast/internal/artifacts"
	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/validation"
)

const (
	defaultRunsLimit = 30
	maxRunsLimit     = 200
)

// RunSummary is one entry of the run listing.
type RunSummary struct {
	RunID     string              `json:"run_id"`
	Status    artifacts.RunStatus `json:"status"`
	StartTime time.Time           `json:"start_time"`
	EndTime   *time.Time          `json:"end_time,omitempty"`
}

// RunsResponse is the body of GET /api/v1/runs.
type RunsResponse struct {
	ExperimentName string       `json:"experiment_name"`
	Runs           []RunSummary `json:"runs"`
}

// ArtifactsResponse is the body of GET /api/v1/runs/artifacts.
type ArtifactsResponse struct {
	RunID     string                   `json:"run_id"`
	Artifacts []artifacts.ArtifactInfo `json:"artifacts"`
}

// ListRuns handles GET /api/v1/runs?limit=N, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			rw.BadRequest("limit must be an integer")
			return
		}
		if verr := validation.ValidateVar("limit", n, "gte=1,lte="+strconv.Itoa(maxRunsLimit)); verr != nil {
			apiErr := verr.ToAPIError()
			rw.ValidationError(apiErr.Message, apiErr.Details)
			return
		}
		limit = n
	}

	experiment := h.predictor.Experiment()
	runs, err := h.runs.ListRuns(r.Context(), experiment, limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list runs")
		rw.InternalError("Failed to list runs")
		return
	}

	out := RunsResponse{ExperimentName: experiment, Runs: make([]RunSummary, 0, len(runs))}
	for i := range runs {
		out.Runs = append(out.Runs, RunSummary{
			RunID:     runs[i].ID,
			Status:    runs[i].Status,
			StartTime: runs[i].StartTime,
			EndTime:   runs[i].EndTime,
		})
	}
	rw.Success(out)
}

// ListArtifacts handles GET /api/v1/runs/artifacts?run_id=ID.
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	runID := r.URL.Query().Get("run_id")
	if verr := validation.ValidateVar("run_id", runID, "required,runid"); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	list, err := h.runs.ListArtifacts(r.Context(), runID)
	switch {
	case errors.Is(err, artifacts.ErrNotFound):
		rw.NotFound("Run not found")
		return
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Str("run_id", runID).Msg("Failed to list artifacts")
		rw.InternalError("Failed to list artifacts")
		return
	}
	if list == nil {
		list = []artifacts.ArtifactInfo{}
	}
	rw.Success(ArtifactsResponse{RunID: runID, Artifacts: list})
}
