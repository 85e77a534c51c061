// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package model trains and evaluates the price regressor.
//
// The serving layer only depends on the Regressor interface. GBM is the
// in-tree implementation: gradient-boosted regression trees with squared
// loss, categorical splits on ordered category prefixes and numeric splits on
// quantile bin edges, with early stopping on a validation split.
package model

import (
	"errors"

	"github.com/tomtom215/pricecast/internal/features"
)

// Name identifies models produced by this package in model_version strings.
const Name = "london-housing-gbm"

// ErrNotFitted is returned when predicting with an empty model.
var ErrNotFitted = errors.New("model has not been fitted")

// ErrColumnMismatch is returned when a stored model was trained on a
// different column layout than the one this binary builds.
var ErrColumnMismatch = errors.New("model column layout does not match feature rows")

// Regressor predicts one value per Feature Row. Predictions are in target
// space: when the model was trained on log1p(price) the caller inverts it.
type Regressor interface {
	Predict(rows []features.Row) ([]float64, error)
}

// RegressorFunc adapts a function to Regressor.
type RegressorFunc func(rows []features.Row) ([]float64, error)

// Predict implements Regressor.
func (f RegressorFunc) Predict(rows []features.Row) ([]float64, error) { return f(rows) }
