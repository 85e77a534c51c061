// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package api

import (
	"context"
	"time"

	"github.com/tomtom215/pricecast/internal/artifacts"
	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/serving"
)

// Predictor is the serving side the handlers depend on.
type Predictor interface {
	Predict(ctx context.Context, req serving.Request) (serving.Prediction, error)
	CurrentRun(ctx context.Context) (*artifacts.Run, error)
	Loaded() (modelRun, transformerRun string)
	Experiment() string
}

// RunRegistry lists training runs and their artifacts.
type RunRegistry interface {
	ListRuns(ctx context.Context, experiment string, limit int) ([]artifacts.Run, error)
	ListArtifacts(ctx context.Context, runID string) ([]artifacts.ArtifactInfo, error)
}

// Handler handles all HTTP API requests.
type Handler struct {
	predictor   Predictor
	runs        RunRegistry
	trackingURI string
	startTime   time.Time
}

// NewHandler creates a handler. The tracking URI is reported by the health
// endpoint and names where runs are read from.
func NewHandler(predictor Predictor, runs RunRegistry, art *config.ArtifactsConfig) *Handler {
	return &Handler{
		predictor:   predictor,
		runs:        runs,
		trackingURI: TrackingURI(art),
		startTime:   time.Now(),
	}
}

// TrackingURI describes the artifact store location.
func TrackingURI(art *config.ArtifactsConfig) string {
	switch {
	case art == nil:
		return ""
	case art.InMemory:
		return "badger://memory"
	case art.StorePath != "":
		return "badger://" + art.StorePath
	default:
		return "file://" + art.FileRoot
	}
}
