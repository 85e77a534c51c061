// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package metrics declares the Prometheus collectors for the prediction
// server and the training pipeline. Collectors register with the default
// registry through promauto and are exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricecast_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricecast_api_active_requests",
			Help: "Number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_api_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// Postcode Resolver Metrics
	PostcodeChunkCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_postcode_chunk_calls_total",
			Help: "Bulk postcode lookups by outcome",
		},
		[]string{"result"}, // success, failure
	)

	PostcodeChunkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricecast_postcode_chunk_duration_seconds",
			Help:    "Latency of one bulk postcode call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	PostcodeRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricecast_postcode_rounds",
			Help:    "Retry rounds consumed per bulk resolution",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	PostcodeOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_postcode_outcomes_total",
			Help: "Postcodes resolved or failed by the bulk resolver",
		},
		[]string{"outcome"}, // resolved, failed
	)

	PostcodeLookupCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_postcode_lookup_cache_total",
			Help: "Single postcode lookups served from cache or fetched",
		},
		[]string{"result"}, // hit, miss
	)

	PostcodeLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricecast_postcode_lookup_duration_seconds",
			Help:    "Latency of single postcode lookups that reached the network",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricecast_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Serving Metrics
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_predictions_total",
			Help: "Prediction requests by outcome",
		},
		[]string{"outcome"}, // ok, not_found, no_run, error
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricecast_prediction_duration_seconds",
			Help:    "End-to-end prediction latency including postcode resolution",
			Buckets: prometheus.DefBuckets,
		},
	)

	LookupFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_lookup_fallbacks_total",
			Help: "Serving lookups answered by a fallback value",
		},
		[]string{"table", "fallback"}, // fallback: previous_year, global_median
	)

	RunCacheLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_run_cache_loads_total",
			Help: "Run artifact loads into the serving cache",
		},
		[]string{"kind", "result"},
	)

	ServingRunLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricecast_serving_run_loaded",
			Help: "1 when a model and lookup tables are resident",
		},
	)

	// Training Metrics
	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricecast_training_stage_duration_seconds",
			Help:    "Training pipeline stage duration",
			Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"stage"},
	)

	TrainingRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricecast_training_rows",
			Help: "Rows remaining after each training stage",
		},
		[]string{"stage"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricecast_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Artifact Store Metrics
	ArtifactOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricecast_artifact_operations_total",
			Help: "Artifact store operations by type and outcome",
		},
		[]string{"operation", "result"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordChunkCall records one bulk postcode call.
func RecordChunkCall(duration time.Duration, err error) {
	PostcodeChunkDuration.Observe(duration.Seconds())
	if err != nil {
		PostcodeChunkCalls.WithLabelValues("failure").Inc()
		return
	}
	PostcodeChunkCalls.WithLabelValues("success").Inc()
}

// RecordResolution records the result of one bulk resolution.
func RecordResolution(rounds, resolved, failed int) {
	PostcodeRounds.Observe(float64(rounds))
	PostcodeOutcomes.WithLabelValues("resolved").Add(float64(resolved))
	PostcodeOutcomes.WithLabelValues("failed").Add(float64(failed))
}

// RecordDBQuery records a DuckDB query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordArtifactOp records an artifact store operation.
func RecordArtifactOp(operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ArtifactOperations.WithLabelValues(operation, result).Inc()
}

// ObserveStage records how long a training stage took and how many rows it left.
func ObserveStage(stage string, start time.Time, rows int) {
	TrainingDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	TrainingRows.WithLabelValues(stage).Set(float64(rows))
}
