// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package dataset

import (
	"math/rand/v2"

	"github.com/tomtom215/pricecast/internal/stats"
)

// maxCategoryCardinality bounds which columns get a distribution section.
const maxCategoryCardinality = 50

// QualityReport is stored with every training run as data_quality_report.json.
type QualityReport struct {
	Rows                 int                           `json:"rows"`
	Missing              map[string]float64            `json:"missing"`
	NumericStats         map[string]stats.Summary      `json:"numeric_stats"`
	Outliers             map[string]int                `json:"outliers"`
	TrainValDrift        map[string]float64            `json:"train_val_drift"`
	CategoryDistribution map[string]map[string]float64 `json:"category_distribution"`
	Clean                *CleanStats                   `json:"clean,omitempty"`
}

// BuildQualityReport summarises records: missing ratios per column, numeric
// summaries, IQR outlier counts, a KS drift statistic between a seeded 80/20
// split, and category shares for low-cardinality columns.
func BuildQualityReport(records []Record, seed uint64) QualityReport {
	rep := QualityReport{
		Rows:                 len(records),
		Missing:              make(map[string]float64),
		NumericStats:         make(map[string]stats.Summary),
		Outliers:             make(map[string]int),
		TrainValDrift:        make(map[string]float64),
		CategoryDistribution: make(map[string]map[string]float64),
	}
	if len(records) == 0 {
		return rep
	}

	n := float64(len(records))
	categorical := []string{ColPostcode, ColDistrict, ColPropertyType, ColIsNewBuild, ColIsLeasehold, ColTownCity}
	for _, col := range categorical {
		counts := make(map[string]int)
		missing := 0
		for i := range records {
			v, _ := records[i].Get(col)
			if v == "" {
				missing++
				continue
			}
			counts[v]++
		}
		rep.Missing[col] = float64(missing) / n
		if len(counts) > 0 && len(counts) <= maxCategoryCardinality {
			dist := make(map[string]float64, len(counts))
			for k, c := range counts {
				dist[k] = float64(c) / n
			}
			rep.CategoryDistribution[col] = dist
		}
	}

	numeric := map[string]func(*Record) (float64, bool){
		"price":      func(r *Record) (float64, bool) { return r.Price, true },
		"floor_area": func(r *Record) (float64, bool) { return r.FloorArea, r.FloorArea > 0 },
	}

	perm := rand.New(rand.NewPCG(seed, seed)).Perm(len(records))
	cut := len(records) * 8 / 10

	for name, get := range numeric {
		var all, train, val []float64
		for pos, idx := range perm {
			v, ok := get(&records[idx])
			if !ok {
				continue
			}
			all = append(all, v)
			if pos < cut {
				train = append(train, v)
			} else {
				val = append(val, v)
			}
		}
		rep.Missing[name] = 1 - float64(len(all))/n
		if len(all) == 0 {
			continue
		}
		rep.NumericStats[name] = stats.Describe(all)
		rep.Outliers[name] = stats.CountIQROutliers(all)
		rep.TrainValDrift[name] = stats.KSStatistic(train, val)
	}
	return rep
}
