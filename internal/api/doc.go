// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

/*
Package api exposes the prediction service over HTTP using the Chi router.

# Endpoints

	POST /api/v1/predict          predict the price of one property
	GET  /api/v1/health           overall status (ok or degraded)
	GET  /api/v1/health/live      liveness probe
	GET  /api/v1/health/ready     readiness probe, 503 until a run is servable
	GET  /api/v1/runs             recent training runs (?limit=1..200)
	GET  /api/v1/runs/artifacts   artifacts of one run (?run_id=)
	GET  /metrics                 Prometheus metrics

# Response Format

Every JSON endpoint answers with the APIResponse envelope:

	{
	  "success": true,
	  "data": {...},
	  "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 3}
	}

Errors set success to false and carry an error object with a machine
readable code (BAD_REQUEST, VALIDATION_FAILED, NOT_FOUND,
SERVICE_UNAVAILABLE, INTERNAL_ERROR) and a human readable message.

# Middleware

All routes get request ids (propagated to the logging context), real IP
extraction, panic recovery and CORS. API routes add rate limiting via
httprate, security headers and Prometheus request metrics. Health routes use
a more permissive rate limit so monitoring probes are never throttled.
*/
package api
