// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package features

import (
	"github.com/tomtom215/pricecast/internal/dataset"
	"github.com/tomtom215/pricecast/internal/stats"
)

// DistrictYear is the composite key of the yearly district medians.
type DistrictYear struct {
	District string
	Year     int
}

// BoroughPriceTrend computes the median price per district and joins it
// back onto every record. column[i] belongs to records[i].
func BoroughPriceTrend(records []dataset.Record) (column []float64, table map[string]float64) {
	return groupMedian(records, func(r *dataset.Record) string { return r.District })
}

// YearlyDistrictPriceTrend computes the median price per (district, sale
// year). A key with a single record yields that record's own price.
func YearlyDistrictPriceTrend(records []dataset.Record) (column []float64, table map[DistrictYear]float64) {
	return groupMedian(records, func(r *dataset.Record) DistrictYear {
		return DistrictYear{District: r.District, Year: SoldYear(r.Date)}
	})
}

// DistrictMedians is the borough table without the per-record column.
func DistrictMedians(records []dataset.Record) map[string]float64 {
	_, table := BoroughPriceTrend(records)
	return table
}

func groupMedian[K comparable](records []dataset.Record, key func(*dataset.Record) K) ([]float64, map[K]float64) {
	groups := make(map[K][]float64)
	for i := range records {
		k := key(&records[i])
		groups[k] = append(groups[k], records[i].Price)
	}

	table := make(map[K]float64, len(groups))
	for k, prices := range groups {
		table[k] = stats.Median(prices)
	}

	column := make([]float64, len(records))
	for i := range records {
		column[i] = table[key(&records[i])]
	}
	return column, table
}
