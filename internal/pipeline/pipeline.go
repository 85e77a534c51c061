// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package pipeline turns cleaned sale records into model-ready Feature Rows
// and the lookup tables exported for serving, and runs complete training jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/dataset"
	"github.com/tomtom215/pricecast/internal/features"
	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/lookup"
	"github.com/tomtom215/pricecast/internal/metrics"
)

// ErrNoRecords is returned when filtering and resolution leave nothing to train on.
var ErrNoRecords = errors.New("no records left after feature engineering")

const topDistrictsLogged = 5

// BulkResolver resolves many postcodes at once. Postcodes it could not
// resolve are returned in failed, not as an error.
type BulkResolver interface {
	ResolveMany(ctx context.Context, postcodes []string) (resolved map[string]string, failed []string, err error)
}

// Result is the output of Run.
type Result struct {
	// Records are the rows that survived, with districts filled in.
	Records []dataset.Record

	Rows    []features.Row
	Targets []float64
	Tables  lookup.Tables

	// Failed lists postcodes whose district could not be resolved.
	Failed []string
}

// Pipeline runs the feature-engineering stages.
type Pipeline struct {
	cfg      config.FeatureConfig
	resolver BulkResolver
}

// New builds a pipeline. resolver may be nil when cfg.UseDistrict is false.
func New(cfg config.FeatureConfig, resolver BulkResolver) *Pipeline {
	return &Pipeline{cfg: cfg, resolver: resolver}
}

// Run prepares records and builds features from them.
func (p *Pipeline) Run(ctx context.Context, records []dataset.Record) (Result, error) {
	prepared, failed, err := p.Prepare(ctx, records)
	if err != nil {
		return Result{Failed: failed}, err
	}
	res, err := p.Build(prepared)
	res.Failed = failed
	return res, err
}

// Prepare filters records by city keyword, resolves districts, merges
// configured categories and drops districts with too few sales. It is the
// expensive half of Run and its output is what the dataset cache persists.
func (p *Pipeline) Prepare(ctx context.Context, records []dataset.Record) ([]dataset.Record, []string, error) {
	log := logging.Ctx(ctx)

	districtCol := p.districtCol()
	if !dataset.ValidColumn(districtCol) || districtCol == dataset.ColPostcode {
		return nil, nil, fmt.Errorf("district column %q is not a category column", districtCol)
	}

	start := time.Now()
	records, err := features.FilterByKeywords(records, p.cityCol(), p.cfg.FilterKeywords)
	if err != nil {
		return nil, nil, fmt.Errorf("filter by city: %w", err)
	}
	metrics.ObserveStage("filter", start, len(records))

	var failed []string
	if p.cfg.UseDistrict {
		start = time.Now()
		records, failed, err = p.resolveDistricts(ctx, records)
		if err != nil {
			return nil, failed, err
		}
		metrics.ObserveStage("resolve", start, len(records))
	}

	before := len(records)
	records = promoteDistrict(records, districtCol)
	if dropped := before - len(records); dropped > 0 {
		log.Warn().Int("dropped", dropped).Str("column", districtCol).Msg("Records without a district dropped")
	}

	for column, mergeMap := range p.cfg.MergeCategories {
		if err := features.MergeCategories(records, column, mergeMap); err != nil {
			return nil, failed, err
		}
		log.Debug().Str("column", column).Int("targets", len(mergeMap)).Msg("Categories merged")
	}

	if p.cfg.DropNicheThreshold > 0 {
		before = len(records)
		records, err = features.DropNicheCategories(records, dataset.ColDistrict, p.cfg.DropNicheThreshold)
		if err != nil {
			return nil, failed, err
		}
		log.Info().
			Int("threshold", p.cfg.DropNicheThreshold).
			Int("dropped", before-len(records)).
			Msg("Niche districts dropped")
	}

	if len(records) == 0 {
		return nil, failed, ErrNoRecords
	}

	_, top := features.NicheCategories(records, dataset.ColDistrict, topDistrictsLogged)
	log.Info().Int("records", len(records)).Strs("top_districts", top).Msg("Records prepared")
	return records, failed, nil
}

// Build computes Feature Rows and lookup tables from prepared records.
func (p *Pipeline) Build(records []dataset.Record) (Result, error) {
	if len(records) == 0 {
		return Result{}, ErrNoRecords
	}
	start := time.Now()
	b := features.BuildRows(records)
	tables := lookup.Export(records)
	if err := tables.Validate(); err != nil {
		return Result{}, err
	}
	metrics.ObserveStage("features", start, len(b.Rows))

	return Result{
		Records: records,
		Rows:    b.Rows,
		Targets: b.Targets,
		Tables:  tables,
	}, nil
}

func (p *Pipeline) cityCol() string {
	if p.cfg.CityCol == "" {
		return dataset.ColTownCity
	}
	return p.cfg.CityCol
}

func (p *Pipeline) districtCol() string {
	if p.cfg.DistrictCol == "" {
		return dataset.ColDistrict
	}
	return p.cfg.DistrictCol
}

// resolveDistricts looks up every record's postcode in canonical form and
// writes the district into the configured district column. Records keep the
// canonical postcode so later joins match.
func (p *Pipeline) resolveDistricts(ctx context.Context, records []dataset.Record) ([]dataset.Record, []string, error) {
	if p.resolver == nil {
		return nil, nil, errors.New("district resolution enabled without a resolver")
	}

	keys := make([]string, len(records))
	postcodes := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		keys[i] = dataset.CanonPostcode(records[i].Postcode)
		if _, dup := seen[keys[i]]; dup || keys[i] == "" {
			continue
		}
		seen[keys[i]] = struct{}{}
		postcodes = append(postcodes, keys[i])
	}
	resolved, failed, err := p.resolver.ResolveMany(ctx, postcodes)
	if err != nil {
		return nil, failed, fmt.Errorf("resolve districts: %w", err)
	}

	col := p.districtCol()
	out := records[:0:0]
	for i := range records {
		d, ok := resolved[keys[i]]
		if !ok {
			continue
		}
		r := records[i]
		r.Postcode = keys[i]
		if err := r.Set(col, d); err != nil {
			return nil, failed, fmt.Errorf("resolve districts: %w", err)
		}
		out = append(out, r)
	}

	logging.Ctx(ctx).Info().
		Int("postcodes", len(resolved)+len(failed)).
		Int("failed", len(failed)).
		Int("records", len(out)).
		Msg("Districts resolved")
	return out, failed, nil
}

// promoteDistrict keeps the records with a value in column and copies that
// value into District, which is what features and lookup tables read.
func promoteDistrict(records []dataset.Record, column string) []dataset.Record {
	out := records[:0:0]
	for i := range records {
		v, _ := records[i].Get(column)
		if v == "" {
			continue
		}
		r := records[i]
		r.District = v
		out = append(out, r)
	}
	return out
}
