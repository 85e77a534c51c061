// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package main runs one training job: load and clean the Price Paid file,
// resolve districts, build features and lookup tables, fit the model and
// record everything as a run in the artifact store.
//
//	pricecast-train -data pp-2024.csv
//	pricecast-train -data pp-2024.csv -augment epc-london.csv
//	pricecast-train -data sales.xlsx -dev
//
// Configuration comes from the same koanf layers as the server; flags only
// name the inputs and toggle dev mode (drop the dataset cache first).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/pricecast/internal/artifacts"
	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/database"
	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/pipeline"
	"github.com/tomtom215/pricecast/internal/postcode"
)

func main() {
	var (
		dataPath    = flag.String("data", "", "Price Paid dataset (.csv, .noheader.csv, .xlsx)")
		augmentPath = flag.String("augment", "", "optional floor area dataset keyed by postcode")
		devMode     = flag.Bool("dev", false, "drop cached datasets before training")
	)
	flag.Parse()

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

	if *dataPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *devMode {
		cfg.Training.DevMode = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := train(ctx, cfg, pipeline.Dataset{Path: *dataPath, AugmentPath: *augmentPath})
	if err != nil {
		logging.Fatal().Err(err).Msg("Training failed")
	}

	logging.Info().
		Str("run_id", res.RunID).
		Int("rows", res.Rows).
		Int("unresolved_postcodes", res.Failed).
		Bool("dataset_cached", res.FromCache).
		Float64("test_rmse", res.Metrics.RMSE).
		Float64("test_mae", res.Metrics.MAE).
		Float64("test_r2", res.Metrics.R2).
		Msg("Training finished")
}

func train(ctx context.Context, cfg *config.Config, ds pipeline.Dataset) (pipeline.TrainResult, error) {
	start := time.Now()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return pipeline.TrainResult{}, fmt.Errorf("open dataset cache: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing dataset cache")
		}
	}()

	store, err := artifacts.Open(&cfg.Artifacts)
	if err != nil {
		return pipeline.TrainResult{}, fmt.Errorf("open artifact store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing artifact store")
		}
	}()

	resolver, err := postcode.New(&cfg.Postcode)
	if err != nil {
		return pipeline.TrainResult{}, fmt.Errorf("create postcode resolver: %w", err)
	}

	p := pipeline.New(cfg.Training.Features, resolver)
	trainer := pipeline.NewTrainer(cfg.Training, cfg.Artifacts, p, db, store)

	res, err := trainer.Train(ctx, ds)
	if errors.Is(err, context.Canceled) {
		return res, fmt.Errorf("interrupted after %s: %w", time.Since(start).Round(time.Second), err)
	}
	return res, err
}
