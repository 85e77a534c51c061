// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/lookup"
	"github.com/tomtom215/pricecast/internal/model"
)

// Names tried after the configured lookup artifact name.
func lookupNames(primary, fallback string) []string {
	names := []string{primary}
	if fallback != "" && fallback != primary {
		names = append(names, fallback)
	}
	for _, n := range []string{lookup.DefaultArtifactName, lookup.LegacyArtifactName} {
		seen := false
		for _, have := range names {
			seen = seen || have == n
		}
		if !seen {
			names = append(names, n)
		}
	}
	return names
}

// LoadLookupTables reads and validates the run's lookup document. Each
// reader is tried in order, and within a reader the primary name, then the
// fallback name, then the historical spellings. A malformed document is an
// error immediately; only missing files move on to the next candidate.
func LoadLookupTables(ctx context.Context, runID, primary, fallback string, readers ...Reader) (lookup.Tables, error) {
	names := lookupNames(primary, fallback)
	for _, r := range readers {
		if r == nil {
			continue
		}
		for _, name := range names {
			data, err := r.GetArtifact(ctx, runID, name)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return lookup.Tables{}, err
			}
			t, err := lookup.DecodeBytes(data)
			if err != nil {
				return lookup.Tables{}, fmt.Errorf("lookup artifact %s/%s: %w", runID, name, err)
			}
			if name != primary {
				logging.Ctx(ctx).Info().Str("run_id", runID).Str("artifact", name).Msg("lookup tables loaded from fallback name")
			}
			return t, nil
		}
	}
	return lookup.Tables{}, fmt.Errorf("lookup tables for run %s: %w", runID, ErrNotFound)
}

// LoadModel reads the run's model artifact from the first reader that has it.
func LoadModel(ctx context.Context, runID, name string, readers ...Reader) (*model.GBM, error) {
	for _, r := range readers {
		if r == nil {
			continue
		}
		data, err := r.GetArtifact(ctx, runID, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return model.Load(bytes.NewReader(data))
	}
	return nil, fmt.Errorf("model %s for run %s: %w", name, runID, ErrNotFound)
}
