// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package features implements the feature transforms shared by training and
// serving.
//
// Every aggregate transform returns both a per-record column (used to train)
// and a portable summary table keyed by district (exported for serving,
// which sees one request at a time and has no access to history).
//
// The Row type is the contract between the two paths: training builds one
// Row per historical record, serving builds exactly one Row per request, and
// the model consumes Rows column by column in the order given by Columns.
package features

import "fmt"

// Column names in model order.
const (
	ColPropertyType            = "property_type"
	ColIsNewBuild              = "is_new_build"
	ColIsLeasehold             = "is_leasehold"
	ColDistrict                = "district"
	ColSoldMonth               = "sold_month"
	ColAdvancedPropertyType    = "advanced_property_type"
	ColPropertyTypeAndTenure   = "property_type_and_tenure"
	ColPropertyTypeAndDistrict = "property_type_and_district"
	ColDate                    = "date"
	ColSoldYear                = "sold_year"
	ColBoroughPriceTrend       = "borough_price_trend"
	ColDistrictYearlyMedians   = "district_yearly_medians"
	ColAvgPriceLastHalf        = "avg_price_last_half"
)

// Columns is the fixed Feature Row order. It must not change without
// retraining every stored model.
var Columns = []string{
	ColPropertyType,
	ColIsNewBuild,
	ColIsLeasehold,
	ColDistrict,
	ColSoldMonth,
	ColAdvancedPropertyType,
	ColPropertyTypeAndTenure,
	ColPropertyTypeAndDistrict,
	ColDate,
	ColSoldYear,
	ColBoroughPriceTrend,
	ColDistrictYearlyMedians,
	ColAvgPriceLastHalf,
}

// NumColumns is len(Columns).
const NumColumns = 13

// Kind tells a model how to split on a column.
type Kind uint8

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Kinds is parallel to Columns.
var Kinds = [NumColumns]Kind{
	Categorical, Categorical, Categorical, Categorical,
	Numeric,
	Categorical, Categorical, Categorical,
	Numeric, Numeric, Numeric, Numeric, Numeric,
}

// Row is one model input. Field order matches Columns.
type Row struct {
	PropertyType            string  `json:"property_type"`
	IsNewBuild              string  `json:"is_new_build"`
	IsLeasehold             string  `json:"is_leasehold"`
	District                string  `json:"district"`
	SoldMonth               int     `json:"sold_month"`
	AdvancedPropertyType    string  `json:"advanced_property_type"`
	PropertyTypeAndTenure   string  `json:"property_type_and_tenure"`
	PropertyTypeAndDistrict string  `json:"property_type_and_district"`
	Date                    int     `json:"date"`
	SoldYear                int     `json:"sold_year"`
	BoroughPriceTrend       float64 `json:"borough_price_trend"`
	DistrictYearlyMedians   float64 `json:"district_yearly_medians"`
	AvgPriceLastHalf        float64 `json:"avg_price_last_half"`
}

// Categorical returns the string value of column i. It panics if column i
// is numeric.
func (r *Row) Categorical(i int) string {
	switch i {
	case 0:
		return r.PropertyType
	case 1:
		return r.IsNewBuild
	case 2:
		return r.IsLeasehold
	case 3:
		return r.District
	case 5:
		return r.AdvancedPropertyType
	case 6:
		return r.PropertyTypeAndTenure
	case 7:
		return r.PropertyTypeAndDistrict
	}
	panic(fmt.Sprintf("features: column %d (%s) is not categorical", i, Columns[i]))
}

// Numeric returns the value of column i. It panics if column i is categorical.
func (r *Row) Numeric(i int) float64 {
	switch i {
	case 4:
		return float64(r.SoldMonth)
	case 8:
		return float64(r.Date)
	case 9:
		return float64(r.SoldYear)
	case 10:
		return r.BoroughPriceTrend
	case 11:
		return r.DistrictYearlyMedians
	case 12:
		return r.AvgPriceLastHalf
	}
	panic(fmt.Sprintf("features: column %d (%s) is not numeric", i, Columns[i]))
}

// Values returns the row as an ordered slice, strings for categorical
// columns and float64 for numeric ones.
func (r *Row) Values() []any {
	out := make([]any, NumColumns)
	for i, k := range Kinds {
		if k == Categorical {
			out[i] = r.Categorical(i)
		} else {
			out[i] = r.Numeric(i)
		}
	}
	return out
}

// ColumnIndex returns the position of name in Columns, or -1.
func ColumnIndex(name string) int {
	for i, c := range Columns {
		if c == name {
			return i
		}
	}
	return -1
}
