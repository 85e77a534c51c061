// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package main is the entry point for the Pricecast prediction server.
//
// The server loads the newest finished training run (or the run pinned with
// SERVING_RUN_ID) from the artifact store and answers price predictions for
// London residential properties over HTTP.
//
// # Startup
//
//  1. Configuration: defaults, optional config.yaml, environment (koanf v2)
//  2. Logging: zerolog, JSON by default
//  3. Artifact store: badger run registry, plus the file tree fallback
//  4. Postcode resolver: postcodes.io client with rate limit and circuit breaker
//  5. Predictor: run caches for model and transformer
//  6. Supervisor tree: run watcher (data layer) and HTTP server (api layer)
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor context; the HTTP server drains
// in-flight requests for up to ten seconds and the artifact store is closed.
//
// # Example Usage
//
//	export ARTIFACT_STORE_PATH=/data/runs
//	export HTTP_PORT=8000
//	./pricecast-server
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/pricecast/internal/api"
	"github.com/tomtom215/pricecast/internal/artifacts"
	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/postcode"
	"github.com/tomtom215/pricecast/internal/serving"
	"github.com/tomtom215/pricecast/internal/supervisor"
	"github.com/tomtom215/pricecast/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Server stopped")
}

func run(cfg *config.Config) error {
	logging.Info().
		Str("experiment", cfg.Artifacts.ExperimentName).
		Str("store", api.TrackingURI(&cfg.Artifacts)).
		Str("pinned_run", cfg.Serving.RunID).
		Msg("Starting Pricecast server")

	store, err := artifacts.Open(&cfg.Artifacts)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing artifact store")
		}
	}()

	resolver, err := postcode.New(&cfg.Postcode)
	if err != nil {
		return fmt.Errorf("create postcode resolver: %w", err)
	}

	readers := []artifacts.Reader{store}
	if cfg.Artifacts.FileRoot != "" {
		readers = append(readers, artifacts.NewFileStore(cfg.Artifacts.FileRoot))
	}
	loadModel, loadTables := serving.ArtifactLoaders(&cfg.Artifacts, readers...)

	predictor := serving.NewPredictor(store, resolver, loadModel, loadTables, serving.Options{
		Experiment:  cfg.Artifacts.ExperimentName,
		PinnedRunID: cfg.Serving.RunID,
		BandRatio:   cfg.Serving.BandRatio,
	})

	handler := api.NewHandler(predictor, store, &cfg.Artifacts)
	mw := api.NewChiMiddleware(api.MiddlewareConfigFromSecurity(&cfg.Security))
	router := api.NewRouter(handler, mw)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddDataService(services.NewRunWatcherService(predictor, cfg.Serving.RefreshInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")

	err = tree.Serve(ctx)
	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("Services did not stop within the shutdown timeout")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
