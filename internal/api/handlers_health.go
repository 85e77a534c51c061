// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/pricecast/internal/serving"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

// healthTimeout bounds the run registry lookup made by health checks.
const healthTimeout = 3 * time.Second

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status            string  `json:"status"`
	ExperimentName    string  `json:"experiment_name"`
	TrackingURI       string  `json:"tracking_uri"`
	LatestRunID       string  `json:"latest_run_id,omitempty"`
	Detail            string  `json:"detail,omitempty"`
	ModelLoaded       bool    `json:"model_loaded"`
	TransformerLoaded bool    `json:"transformer_loaded"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Health handles GET /api/v1/health. The service is "ok" when a finished
// run can be served and "degraded" otherwise; it always answers 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.healthStatus(r.Context()))
}

// HealthLive handles GET /api/v1/health/live. It only proves the process
// is serving HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":         "alive",
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles GET /api/v1/health/ready and returns 503 while degraded.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	st := h.healthStatus(r.Context())
	code := http.StatusOK
	if st.Status != statusOK {
		code = http.StatusServiceUnavailable
	}
	NewResponseWriter(w, r).write(code, st)
}

func (h *Handler) healthStatus(ctx context.Context) HealthStatus {
	modelRun, transformerRun := h.predictor.Loaded()
	st := HealthStatus{
		Status:            statusOK,
		ExperimentName:    h.predictor.Experiment(),
		TrackingURI:       h.trackingURI,
		ModelLoaded:       modelRun != "",
		TransformerLoaded: transformerRun != "",
		Uptime:            time.Since(h.startTime).Seconds(),
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	run, err := h.predictor.CurrentRun(ctx)
	switch {
	case err == nil:
		st.LatestRunID = run.ID
	case err == serving.ErrNoRun: //nolint:errorlint // only the bare sentinel means no run exists
		st.Status = statusDegraded
		st.Detail = "No finished runs found"
	default:
		st.Status = statusDegraded
		st.Detail = err.Error()
	}
	return st
}
