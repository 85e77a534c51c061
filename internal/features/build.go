// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package features

import "github.com/tomtom215/pricecast/internal/dataset"

// Build holds the training rows and the aggregates they were built from.
type Build struct {
	Rows    []Row
	Targets []float64

	Borough map[string]float64
	Yearly  map[DistrictYear]float64
}

// BuildRows applies every transform to records, which must already carry a
// resolved district. Targets are the raw prices; transforming them (log,
// clipping) is the trainer's concern.
func BuildRows(records []dataset.Record) Build {
	borough, boroughTable := BoroughPriceTrend(records)
	yearly, yearlyTable := YearlyDistrictPriceTrend(records)
	lastHalf := AvgPriceLast6Months(records)

	b := Build{
		Rows:    make([]Row, len(records)),
		Targets: dataset.Prices(records),
		Borough: boroughTable,
		Yearly:  yearlyTable,
	}
	for i := range records {
		r := &records[i]
		b.Rows[i] = Row{
			PropertyType:            r.PropertyType,
			IsNewBuild:              r.IsNewBuild,
			IsLeasehold:             r.IsLeasehold,
			District:                r.District,
			SoldMonth:               SoldMonth(r.Date),
			AdvancedPropertyType:    Interact(r.IsNewBuild, r.PropertyType),
			PropertyTypeAndTenure:   Interact(r.IsLeasehold, r.PropertyType),
			PropertyTypeAndDistrict: Interact(r.District, r.PropertyType),
			Date:                    DateOrdinal(r.Date),
			SoldYear:                SoldYear(r.Date),
			BoroughPriceTrend:       borough[i],
			DistrictYearlyMedians:   yearly[i],
			AvgPriceLastHalf:        lastHalf[i],
		}
	}
	return b
}
