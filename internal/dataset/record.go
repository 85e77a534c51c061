// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package dataset loads, cleans and augments historical sale records.
//
// A Record is one HM Land Registry style transaction. Records flow from the
// loaders (CSV, XLSX) through Clean and the optional AddFloorArea augmenter
// into the feature pipeline.
package dataset

import (
	"fmt"
	"time"
)

// Column names understood by Get/Set and by the configurable pipeline steps.
const (
	ColPostcode     = "postcode"
	ColDistrict     = "district"
	ColPropertyType = "property_type"
	ColIsNewBuild   = "is_new_build"
	ColIsLeasehold  = "is_leasehold"
	ColTownCity     = "town_city"
)

// Property type codes.
const (
	Detached     = "D"
	SemiDetached = "S"
	Terraced     = "T"
	Flat         = "F"
	Other        = "O"
)

// Record is one historical sale. Price is always > 0 and Date is a valid
// calendar date once a record has passed Clean.
type Record struct {
	Price        float64   `json:"price"`
	Date         time.Time `json:"date"`
	Postcode     string    `json:"postcode"`
	District     string    `json:"district,omitempty"`
	PropertyType string    `json:"property_type"`
	IsNewBuild   string    `json:"is_new_build"`
	IsLeasehold  string    `json:"is_leasehold"`
	TownCity     string    `json:"town_city,omitempty"`

	// FloorArea is 0 when unknown.
	FloorArea float64 `json:"floor_area,omitempty"`
}

// Get returns the string value of a categorical column.
func (r *Record) Get(column string) (string, error) {
	switch column {
	case ColPostcode:
		return r.Postcode, nil
	case ColDistrict:
		return r.District, nil
	case ColPropertyType:
		return r.PropertyType, nil
	case ColIsNewBuild:
		return r.IsNewBuild, nil
	case ColIsLeasehold:
		return r.IsLeasehold, nil
	case ColTownCity:
		return r.TownCity, nil
	default:
		return "", fmt.Errorf("unknown column %q", column)
	}
}

// Set assigns a categorical column.
func (r *Record) Set(column, value string) error {
	switch column {
	case ColPostcode:
		r.Postcode = value
	case ColDistrict:
		r.District = value
	case ColPropertyType:
		r.PropertyType = value
	case ColIsNewBuild:
		r.IsNewBuild = value
	case ColIsLeasehold:
		r.IsLeasehold = value
	case ColTownCity:
		r.TownCity = value
	default:
		return fmt.Errorf("unknown column %q", column)
	}
	return nil
}

// ValidColumn reports whether column is addressable through Get/Set.
func ValidColumn(column string) bool {
	var r Record
	_, err := r.Get(column)
	return err == nil
}

// Prices extracts the price column.
func Prices(records []Record) []float64 {
	out := make([]float64, len(records))
	for i := range records {
		out[i] = records[i].Price
	}
	return out
}
