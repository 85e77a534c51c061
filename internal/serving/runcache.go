// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package serving

import (
	"context"
	"sync"

	"github.com/tomtom215/pricecast/internal/metrics"
)

// RunCache holds the value loaded for one run. Loading a different run
// replaces the entry wholesale.
//
// The mutex is held across the load so concurrent callers for the same run
// wait for one load instead of starting their own.
type RunCache[T any] struct {
	kind string

	mu    sync.Mutex
	runID string
	value T
	set   bool
}

// NewRunCache returns an empty cache; kind labels its metrics.
func NewRunCache[T any](kind string) *RunCache[T] {
	return &RunCache[T]{kind: kind}
}

// GetOrLoad returns the cached value for runID, calling load on a miss.
// A failed load leaves the previous entry in place.
func (c *RunCache[T]) GetOrLoad(ctx context.Context, runID string, load func(context.Context, string) (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.set && c.runID == runID {
		metrics.RunCacheLoads.WithLabelValues(c.kind, "hit").Inc()
		return c.value, nil
	}

	v, err := load(ctx, runID)
	if err != nil {
		metrics.RunCacheLoads.WithLabelValues(c.kind, "error").Inc()
		var zero T
		return zero, err
	}
	c.runID, c.value, c.set = runID, v, true
	metrics.RunCacheLoads.WithLabelValues(c.kind, "loaded").Inc()
	return v, nil
}

// Current returns the cached run id, or "" when nothing is loaded.
func (c *RunCache[T]) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return ""
	}
	return c.runID
}

// Reset drops the entry.
func (c *RunCache[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.runID, c.value, c.set = "", zero, false
}
