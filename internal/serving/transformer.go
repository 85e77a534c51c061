// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package serving turns a single prediction request into a Feature Row
// identical in layout to the rows the model was trained on, and runs the
// model over it.
//
// Serving never sees history. Aggregate columns come from the lookup tables
// exported with the training run; when a district or year is missing the
// transformer falls back to the median of the borough_price_trend table,
// computed once when the tables are loaded.
package serving

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/pricecast/internal/features"
	"github.com/tomtom215/pricecast/internal/lookup"
	"github.com/tomtom215/pricecast/internal/metrics"
	"github.com/tomtom215/pricecast/internal/stats"
)

var (
	// ErrEmptyPostcode is returned for a blank postcode.
	ErrEmptyPostcode = errors.New("postcode is required")

	// ErrPostcodeNotFound is returned when the postcode resolves to no district.
	ErrPostcodeNotFound = errors.New("postcode not found")
)

// Request is the user-supplied part of a Feature Row.
type Request struct {
	Postcode     string `json:"postcode" validate:"required,max=16"`
	PropertyType string `json:"property_type" validate:"required,oneof=D S T F"`
	IsNewBuild   string `json:"is_new_build" validate:"oneof=Y N"`
	IsLeasehold  string `json:"is_leasehold" validate:"oneof=Y N"`
}

// Normalize upper-cases the codes, trims the postcode and applies the "N"
// defaults for the two flags.
func (r Request) Normalize() Request {
	r.Postcode = strings.TrimSpace(r.Postcode)
	r.PropertyType = strings.ToUpper(strings.TrimSpace(r.PropertyType))
	r.IsNewBuild = strings.ToUpper(strings.TrimSpace(r.IsNewBuild))
	r.IsLeasehold = strings.ToUpper(strings.TrimSpace(r.IsLeasehold))
	if r.IsNewBuild == "" {
		r.IsNewBuild = "N"
	}
	if r.IsLeasehold == "" {
		r.IsLeasehold = "N"
	}
	return r
}

// DistrictResolver maps one postcode to its district. ok is false when the
// postcode is unknown or could not be resolved in time.
type DistrictResolver interface {
	ResolveOne(ctx context.Context, postcode string) (district string, ok bool)
}

// FeaturesUsed reports where each Feature Row column came from.
type FeaturesUsed struct {
	UserProvided []string `json:"user_provided"`
	Enriched     []string `json:"enriched"`
	Defaulted    []string `json:"defaulted"`
}

// Transformer rebuilds Feature Rows from one run's lookup tables. It is
// immutable after construction and safe for concurrent use.
type Transformer struct {
	resolver     DistrictResolver
	tables       lookup.Tables
	globalMedian float64
}

// NewTransformer wraps tables, which must have passed lookup validation.
func NewTransformer(tables lookup.Tables, resolver DistrictResolver) *Transformer {
	values := make([]float64, 0, len(tables.BoroughPriceTrend))
	for _, v := range tables.BoroughPriceTrend {
		values = append(values, v)
	}
	return &Transformer{
		resolver:     resolver,
		tables:       tables,
		globalMedian: stats.Median(values),
	}
}

// GlobalMedian is the fallback used for every missing lookup key.
func (t *Transformer) GlobalMedian() float64 { return t.globalMedian }

// Transform resolves the request's district and builds its Feature Row for
// a sale on date now.
func (t *Transformer) Transform(ctx context.Context, req Request, now time.Time) (features.Row, FeaturesUsed, error) {
	req = req.Normalize()
	if req.Postcode == "" {
		return features.Row{}, FeaturesUsed{}, ErrEmptyPostcode
	}
	district, ok := t.resolver.ResolveOne(ctx, req.Postcode)
	if !ok {
		return features.Row{}, FeaturesUsed{}, ErrPostcodeNotFound
	}
	row, used := t.Build(req, district, now)
	return row, used, nil
}

// Build assembles the Feature Row for an already resolved district.
func (t *Transformer) Build(req Request, district string, now time.Time) (features.Row, FeaturesUsed) {
	req = req.Normalize()
	now = now.UTC()
	year := features.SoldYear(now)

	used := FeaturesUsed{
		UserProvided: []string{"postcode", features.ColPropertyType, features.ColIsNewBuild, features.ColIsLeasehold},
		Enriched: []string{
			features.ColDistrict, features.ColSoldMonth, features.ColAdvancedPropertyType,
			features.ColPropertyTypeAndTenure, features.ColPropertyTypeAndDistrict,
			features.ColDate, features.ColSoldYear,
		},
		Defaulted: []string{},
	}

	trend, ok := t.tables.BoroughPriceTrend[district]
	if !ok {
		trend = t.fallback(features.ColBoroughPriceTrend, "global_median", &used)
	} else {
		used.Enriched = append(used.Enriched, features.ColBoroughPriceTrend)
	}

	yearly, ok := t.tables.DistrictYearlyMedians[lookup.YearKey(district, year)]
	switch {
	case ok:
		used.Enriched = append(used.Enriched, features.ColDistrictYearlyMedians)
	default:
		yearly, ok = t.tables.DistrictYearlyMedians[lookup.YearKey(district, year-1)]
		if ok {
			metrics.LookupFallbacks.WithLabelValues(features.ColDistrictYearlyMedians, "previous_year").Inc()
			used.Enriched = append(used.Enriched, features.ColDistrictYearlyMedians)
		} else {
			yearly = t.fallback(features.ColDistrictYearlyMedians, "global_median", &used)
		}
	}

	half, ok := t.tables.AvgPriceLastHalf[district]
	if !ok {
		half = t.fallback(features.ColAvgPriceLastHalf, "global_median", &used)
	} else {
		used.Enriched = append(used.Enriched, features.ColAvgPriceLastHalf)
	}

	row := features.Row{
		PropertyType:            req.PropertyType,
		IsNewBuild:              req.IsNewBuild,
		IsLeasehold:             req.IsLeasehold,
		District:                district,
		SoldMonth:               features.SoldMonth(now),
		AdvancedPropertyType:    features.Interact(req.IsNewBuild, req.PropertyType),
		PropertyTypeAndTenure:   features.Interact(req.IsLeasehold, req.PropertyType),
		PropertyTypeAndDistrict: features.Interact(district, req.PropertyType),
		Date:                    features.DateOrdinal(now),
		SoldYear:                year,
		BoroughPriceTrend:       trend,
		DistrictYearlyMedians:   yearly,
		AvgPriceLastHalf:        half,
	}
	sort.Strings(used.Enriched)
	return row, used
}

func (t *Transformer) fallback(column, kind string, used *FeaturesUsed) float64 {
	metrics.LookupFallbacks.WithLabelValues(column, kind).Inc()
	used.Defaulted = append(used.Defaulted, column)
	return t.globalMedian
}
