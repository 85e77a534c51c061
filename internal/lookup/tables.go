// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package lookup holds the district aggregates exported at training time and
// read back by the serving transformer.
//
// The three tables are serialised together as one JSON document:
//
//	{
//	  "borough_price_trend":     {"Camden": 750000, ...},
//	  "district_yearly_medians": {"Camden_2020": 760000, ...},
//	  "avg_price_last_half":     {"Camden": 810000, ...}
//	}
package lookup

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pricecast/internal/dataset"
	"github.com/tomtom215/pricecast/internal/features"
	"github.com/tomtom215/pricecast/internal/stats"
)

// DefaultArtifactName is the artifact file the trainer writes.
const DefaultArtifactName = "lookup_tables.json"

// LegacyArtifactName is the historical singular spelling still found in
// older runs.
const LegacyArtifactName = "lookup_table.json"

// SnapshotMonths is the look-back of the avg_price_last_half snapshot.
const SnapshotMonths = 6

// ErrMalformed is returned when a lookup document cannot be used for serving.
var ErrMalformed = errors.New("malformed lookup tables")

// Tables are the three district aggregates.
type Tables struct {
	BoroughPriceTrend     map[string]float64 `json:"borough_price_trend"`
	DistrictYearlyMedians map[string]float64 `json:"district_yearly_medians"`
	AvgPriceLastHalf      map[string]float64 `json:"avg_price_last_half"`
}

// YearKey formats the district_yearly_medians key: "Camden_2020".
func YearKey(district string, year int) string {
	return district + "_" + strconv.Itoa(year)
}

// Export computes the tables from records that already carry a district.
// avg_price_last_half is a snapshot: the median per district of the records
// dated on or after max(date) minus six calendar months.
func Export(records []dataset.Record) Tables {
	t := Tables{
		BoroughPriceTrend:     features.DistrictMedians(records),
		DistrictYearlyMedians: make(map[string]float64),
		AvgPriceLastHalf:      make(map[string]float64),
	}

	_, yearly := features.YearlyDistrictPriceTrend(records)
	for k, v := range yearly {
		t.DistrictYearlyMedians[YearKey(k.District, k.Year)] = v
	}

	if len(records) == 0 {
		return t
	}
	latest := records[0].Date
	for i := range records {
		if records[i].Date.After(latest) {
			latest = records[i].Date
		}
	}
	cutoff := subtractMonths(latest, SnapshotMonths)

	recent := make(map[string][]float64)
	for i := range records {
		if !records[i].Date.Before(cutoff) {
			recent[records[i].District] = append(recent[records[i].District], records[i].Price)
		}
	}
	for d, prices := range recent {
		t.AvgPriceLastHalf[d] = stats.Median(prices)
	}
	return t
}

// subtractMonths moves t back n calendar months, clamping the day to the
// end of the target month (Aug 31 minus 6 months is Feb 28 or 29).
func subtractMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m-time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Validate checks that every section is present and every value is finite.
func (t *Tables) Validate() error {
	sections := []struct {
		name string
		m    map[string]float64
	}{
		{"borough_price_trend", t.BoroughPriceTrend},
		{"district_yearly_medians", t.DistrictYearlyMedians},
		{"avg_price_last_half", t.AvgPriceLastHalf},
	}
	for _, s := range sections {
		if s.m == nil {
			return fmt.Errorf("%w: missing section %q", ErrMalformed, s.name)
		}
		for k, v := range s.m {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s[%q] is not finite", ErrMalformed, s.name, k)
			}
		}
	}
	if len(t.BoroughPriceTrend) == 0 {
		return fmt.Errorf("%w: borough_price_trend is empty", ErrMalformed)
	}
	return nil
}

// Encode writes t as indented JSON.
func Encode(w io.Writer, t Tables) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode lookup tables: %w", err)
	}
	return nil
}

// Decode reads and validates a lookup document.
func Decode(r io.Reader) (Tables, error) {
	var t Tables
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return Tables{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(b []byte) (Tables, error) {
	var t Tables
	if err := json.Unmarshal(b, &t); err != nil {
		return Tables{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}
