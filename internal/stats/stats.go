// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package stats holds the small order-statistics helpers shared by the
// feature transforms, the cleaners and the quality report.
package stats

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Median returns the median of values, averaging the two middle elements for
// even counts. It returns NaN for an empty slice. values is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return medianSorted(sorted)
}

func medianSorted(sorted []float64) float64 {
	return QuantileSorted(sorted, 0.5)
}

// Quantile returns the q-quantile using linear interpolation between the
// closest ranks at position q*(n-1), the rule pandas and numpy default to.
// gonum's LinInterp places ranks at q*n and gives different clip points.
// q is clamped to [0, 1]; an empty slice yields NaN.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return QuantileSorted(sorted, q)
}

// QuantileSorted is Quantile for input already sorted ascending.
func QuantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	q = math.Max(0, math.Min(1, q))
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Mean returns the arithmetic mean, NaN when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// Summary is a describe()-style numeric summary.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	Max   float64 `json:"max"`
}

// Describe summarises values. Std is the sample standard deviation.
func Describe(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mean, std := stat.Mean(sorted, nil), 0.0
	if len(sorted) > 1 {
		mean, std = stat.MeanStdDev(sorted, nil)
	}
	return Summary{
		Count: len(sorted),
		Mean:  mean,
		Std:   std,
		Min:   sorted[0],
		P25:   QuantileSorted(sorted, 0.25),
		P50:   medianSorted(sorted),
		P75:   QuantileSorted(sorted, 0.75),
		Max:   sorted[len(sorted)-1],
	}
}

// CountIQROutliers counts values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
func CountIQROutliers(values []float64) int {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	q1 := QuantileSorted(sorted, 0.25)
	q3 := QuantileSorted(sorted, 0.75)
	iqr := q3 - q1
	lower, upper := q1-1.5*iqr, q3+1.5*iqr

	n := 0
	for _, v := range sorted {
		if v < lower || v > upper {
			n++
		}
	}
	return n
}

// KSStatistic returns the two-sample Kolmogorov-Smirnov statistic, the
// largest gap between the empirical CDFs of a and b. Empty input yields 0.
func KSStatistic(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return stat.KolmogorovSmirnov(x, nil, y, nil)
}
