// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/serving"
)

// Warmer loads the current run into the serving caches and returns its id.
type Warmer interface {
	Warmup(ctx context.Context) (string, error)
}

// RunWatcherService polls for the current run and warms the serving caches
// whenever it changes, so a newly finished training run is picked up without
// waiting for the first prediction. Load failures are logged and retried on
// the next tick; they never stop the service.
type RunWatcherService struct {
	warmer   Warmer
	interval time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	lastRunID string
}

// NewRunWatcherService creates a watcher. A non-positive interval means one minute.
func NewRunWatcherService(warmer Warmer, interval time.Duration) *RunWatcherService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RunWatcherService{
		warmer:   warmer,
		interval: interval,
		timeout:  interval,
	}
}

// Serve implements suture.Service. It warms once immediately, then on every tick.
func (s *RunWatcherService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *RunWatcherService) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := logging.WithComponent("run-watcher")
	runID, err := s.warmer.Warmup(ctx)
	switch {
	case errors.Is(err, serving.ErrNoRun):
		log.Debug().Err(err).Msg("No finished run to serve yet")
		return
	case err != nil:
		log.Warn().Err(err).Str("run_id", runID).Msg("Failed to warm serving run")
		return
	}

	s.mu.Lock()
	previous := s.lastRunID
	s.lastRunID = runID
	s.mu.Unlock()

	if runID != previous {
		log.Info().Str("run_id", runID).Str("previous_run_id", previous).Msg("Serving run loaded")
	}
}

// LastRunID returns the most recently warmed run.
func (s *RunWatcherService) LastRunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunID
}

// String names the service in supervisor events.
func (s *RunWatcherService) String() string {
	return "run-watcher"
}
