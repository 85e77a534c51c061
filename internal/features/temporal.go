// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package features

import "time"

// unixEpochOrdinal is the proleptic Gregorian ordinal of 1970-01-01
// (0001-01-01 is day 1).
const unixEpochOrdinal = 719163

// SoldYear returns the calendar year of t.
func SoldYear(t time.Time) int { return t.Year() }

// SoldMonth returns the calendar month of t, 1 through 12.
func SoldMonth(t time.Time) int { return int(t.Month()) }

// DateOrdinal returns the proleptic Gregorian ordinal of the first day of
// t's month. Training and serving both truncate to the month so a request
// made mid-month lands on the same value as the history it is compared to.
func DateOrdinal(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return int(first.Unix()/86400) + unixEpochOrdinal
}
