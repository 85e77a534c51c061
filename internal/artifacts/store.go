// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package artifacts records training runs and the files they produce.
//
// A run has an id, a status, parameters, metrics and named artifacts (the
// model, the lookup tables, the data quality report). BadgerStore is the
// durable implementation; FileStore reads the plain directory layout
// <root>/<run_id>/artifacts/<name> that older runs were exported to.
package artifacts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown runs and artifacts.
var ErrNotFound = errors.New("not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning  RunStatus = "RUNNING"
	StatusFinished RunStatus = "FINISHED"
	StatusFailed   RunStatus = "FAILED"
)

// Run is one training run.
type Run struct {
	ID         string             `json:"run_id"`
	Experiment string             `json:"experiment"`
	Status     RunStatus          `json:"status"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    *time.Time         `json:"end_time,omitempty"`
	Params     map[string]string  `json:"params,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// Param returns a parameter value and whether it was logged.
func (r *Run) Param(key string) (string, bool) {
	v, ok := r.Params[key]
	return v, ok
}

// ArtifactInfo describes one stored artifact.
type ArtifactInfo struct {
	Path     string `json:"path"`
	IsDir    bool   `json:"is_dir"`
	FileSize int64  `json:"file_size"`
}

// Reader is the read side needed by serving.
type Reader interface {
	GetArtifact(ctx context.Context, runID, name string) ([]byte, error)
	ListArtifacts(ctx context.Context, runID string) ([]ArtifactInfo, error)
}

// Store records runs and their artifacts.
type Store interface {
	Reader

	CreateRun(ctx context.Context, experiment string) (*Run, error)
	FinishRun(ctx context.Context, runID string, status RunStatus) error
	LogParams(ctx context.Context, runID string, params map[string]string) error
	LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error
	PutArtifact(ctx context.Context, runID, name string, data []byte) error

	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns the experiment's runs, newest first.
	ListRuns(ctx context.Context, experiment string, limit int) ([]Run, error)

	// LatestFinishedRun returns the newest FINISHED run or ErrNotFound.
	LatestFinishedRun(ctx context.Context, experiment string) (*Run, error)

	Close() error
}
