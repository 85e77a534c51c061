// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/metrics"
)

// DefaultCORSOrigin is the local frontend dev server.
const DefaultCORSOrigin = "http://localhost:5173"

// ChiMiddlewareConfig holds configuration for Chi middleware.
type ChiMiddlewareConfig struct {
	// CORS settings
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAge           int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// MiddlewareConfigFromSecurity builds the middleware configuration from the
// security section of the application config.
func MiddlewareConfigFromSecurity(sec *config.SecurityConfig) ChiMiddlewareConfig {
	cfg := ChiMiddlewareConfig{
		CORSAllowedOrigins:   sec.CORSOrigins,
		CORSAllowCredentials: sec.CORSAllowCredentials,
		CORSMaxAge:           300,
		RateLimitRequests:    sec.RateLimitReqs,
		RateLimitWindow:      sec.RateLimitWindow,
		RateLimitDisabled:    sec.RateLimitDisabled,
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{DefaultCORSOrigin}
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 100
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	return cfg
}

// ChiMiddleware provides Chi-compatible middleware functions.
type ChiMiddleware struct {
	config ChiMiddlewareConfig
}

// NewChiMiddleware creates a new Chi middleware provider.
func NewChiMiddleware(cfg ChiMiddlewareConfig) *ChiMiddleware {
	return &ChiMiddleware{config: cfg}
}

// CORS returns the go-chi/cors handler configured for the frontend.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	// A wildcard origin cannot be combined with credentials.
	allowCredentials := m.config.CORSAllowCredentials
	for _, origin := range m.config.CORSAllowedOrigins {
		if origin == "*" {
			allowCredentials = false
			break
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   m.config.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: allowCredentials,
		MaxAge:           m.config.CORSMaxAge,
	})
}

// RateLimit returns the per-IP limiter for API routes.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return passthrough
	}
	return httprate.Limit(
		m.config.RateLimitRequests,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

// RateLimitHealth allows ten times the API budget so probes are not throttled.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return passthrough
	}
	return httprate.Limit(
		m.config.RateLimitRequests*10,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

// APISecurityHeaders sets the headers every JSON response carries.
func (m *ChiMiddleware) APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
	NewResponseWriter(w, r).TooManyRequests("Rate limit exceeded, please retry later")
}

func passthrough(next http.Handler) http.Handler { return next }
