// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/pricecast/internal/middleware"
)

// Router builds the HTTP routing tree.
type Router struct {
	handler    *Handler
	middleware *ChiMiddleware
}

// NewRouter creates a router for the given handler and middleware.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetupChi returns the complete Chi router.
//
// Route groups:
//   - /api/v1/health: permissive rate limit, no request metrics
//   - /api/v1: prediction and run registry, standard rate limit
//   - /metrics: Prometheus exposition
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	h := router.handler
	mw := router.middleware

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(mw.RateLimitHealth())
		r.Use(mw.APISecurityHeaders())

		r.Get("/", h.Health)
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(mw.APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)

		r.Post("/predict", h.Predict)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/artifacts", h.ListArtifacts)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	})

	return r
}
