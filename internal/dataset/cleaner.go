// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package dataset

import (
	"github.com/tomtom215/pricecast/internal/postcode"
	"github.com/tomtom215/pricecast/internal/stats"
)

// CanonPostcode upper-cases and strips every whitespace rune: "sw1a 1aa" -> "SW1A1AA".
func CanonPostcode(raw string) string { return postcode.Normalize(raw) }

// Outcode returns the district part of a canonical postcode (all but the last 3 chars).
func Outcode(canon string) string { return postcode.Outcode(canon) }

// Incode returns the last 3 characters of a canonical postcode.
func Incode(canon string) string { return postcode.Incode(canon) }

// CleanOptions controls Clean.
type CleanOptions struct {
	// ClipQuantile caps prices at this quantile; 0 disables clipping.
	ClipQuantile float64

	// DropMissingPostcode removes rows whose postcode is empty after canonicalisation.
	DropMissingPostcode bool
}

// CleanStats accounts for every input row.
type CleanStats struct {
	Input     int            `json:"input"`
	Kept      int            `json:"kept"`
	Dropped   map[string]int `json:"dropped"`
	Clipped   int            `json:"clipped"`
	ClipValue float64        `json:"clip_value,omitempty"`
}

var validPropertyTypes = map[string]bool{
	Detached: true, SemiDetached: true, Terraced: true, Flat: true, Other: true,
}

func validFlag(s string) bool { return s == "Y" || s == "N" }

// Clean parses raw rows, canonicalises postcodes, drops rows missing a
// required field, and clips prices at the configured upper quantile.
func Clean(rows []RawRow, opts CleanOptions) ([]Record, CleanStats) {
	st := CleanStats{Input: len(rows), Dropped: make(map[string]int)}
	out := make([]Record, 0, len(rows))

	for _, row := range rows {
		rec, err := ParseRow(row)
		if err != nil {
			st.Dropped["unparsable"]++
			continue
		}
		if rec.Price <= 0 {
			st.Dropped["non_positive_price"]++
			continue
		}
		rec.Postcode = CanonPostcode(rec.Postcode)
		if rec.Postcode == "" && opts.DropMissingPostcode {
			st.Dropped["missing_postcode"]++
			continue
		}
		if !validPropertyTypes[rec.PropertyType] {
			st.Dropped["property_type"]++
			continue
		}
		if !validFlag(rec.IsNewBuild) || !validFlag(rec.IsLeasehold) {
			st.Dropped["flags"]++
			continue
		}
		out = append(out, rec)
	}

	if opts.ClipQuantile > 0 && opts.ClipQuantile < 1 && len(out) > 0 {
		st.ClipValue = stats.Quantile(Prices(out), opts.ClipQuantile)
		for i := range out {
			if out[i].Price > st.ClipValue {
				out[i].Price = st.ClipValue
				st.Clipped++
			}
		}
	}

	st.Kept = len(out)
	return out, st
}
