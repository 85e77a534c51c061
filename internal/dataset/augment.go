// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tomtom215/pricecast/internal/stats"
)

// ErrLowMatchRate is returned when too few records receive a floor area.
var ErrLowMatchRate = errors.New("floor area match rate below threshold")

// AugmentResult reports how the floor-area merge went.
type AugmentResult struct {
	Keys      int     `json:"keys"`
	Matched   int     `json:"matched"`
	MatchRate float64 `json:"match_rate"`
}

// FloorAreaByKey builds key -> median floor area from energy certificate
// rows. keyCol names the join column in the augment rows (usually postcode);
// rows with a non-numeric or non-positive floor area are ignored.
func FloorAreaByKey(rows []RawRow, keyCol string) (map[string]float64, error) {
	samples := make(map[string][]float64)
	sawFloor := false
	for _, row := range rows {
		raw, ok := row["floor_area"]
		if !ok {
			continue
		}
		sawFloor = true
		area, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || area <= 0 {
			continue
		}
		key := CanonPostcode(row[keyCol])
		if key == "" {
			continue
		}
		samples[key] = append(samples[key], area)
	}
	if len(rows) > 0 && !sawFloor {
		return nil, fmt.Errorf("%w: floor_area column missing from augment dataset", ErrSchemaMismatch)
	}

	out := make(map[string]float64, len(samples))
	for k, v := range samples {
		out[k] = stats.Median(v)
	}
	return out, nil
}

// AddFloorArea left-joins median floor areas onto records by canonical
// postcode. A record keeps its existing FloorArea when the key is absent.
// When minMatchRate > 0 and fewer records matched, ErrLowMatchRate is
// returned alongside the (already updated) records.
func AddFloorArea(records []Record, areas map[string]float64, minMatchRate float64) (AugmentResult, error) {
	res := AugmentResult{Keys: len(areas)}
	for i := range records {
		if area, ok := areas[records[i].Postcode]; ok {
			records[i].FloorArea = area
			res.Matched++
		}
	}
	if len(records) > 0 {
		res.MatchRate = float64(res.Matched) / float64(len(records))
	}
	if minMatchRate > 0 && res.MatchRate < minMatchRate {
		return res, fmt.Errorf("%w: %.2f%% < %.2f%%", ErrLowMatchRate, res.MatchRate*100, minMatchRate*100)
	}
	return res, nil
}
