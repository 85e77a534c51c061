// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package model

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/tomtom215/pricecast/internal/stats"
)

// Partition holds row indices of a seeded train/validation/test split.
type Partition struct {
	Train []int
	Val   []int
	Test  []int
}

// Split shuffles 0..n-1 with seed and carves off testSize then valSize
// fractions of n. Each index slice is sorted. The same seed and n always
// give the same split.
func Split(n int, testSize, valSize float64, seed uint64) (Partition, error) {
	if testSize < 0 || valSize < 0 || testSize+valSize >= 1 {
		return Partition{}, fmt.Errorf("invalid split sizes test=%.2f val=%.2f", testSize, valSize)
	}
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)

	nTest := int(math.Round(float64(n) * testSize))
	nVal := int(math.Round(float64(n) * valSize))
	if nTest+nVal >= n && n > 0 {
		return Partition{}, fmt.Errorf("split leaves no training rows for n=%d", n)
	}

	p := Partition{
		Test:  append([]int(nil), perm[:nTest]...),
		Val:   append([]int(nil), perm[nTest:nTest+nVal]...),
		Train: append([]int(nil), perm[nTest+nVal:]...),
	}
	sort.Ints(p.Test)
	sort.Ints(p.Val)
	sort.Ints(p.Train)
	return p, nil
}

// ClipQuantile returns a copy of y with values above the q quantile set to
// that quantile, and the clip value. q outside (0, 1) disables clipping.
func ClipQuantile(y []float64, q float64) ([]float64, float64) {
	out := append([]float64(nil), y...)
	if q <= 0 || q >= 1 || len(y) == 0 {
		return out, math.Inf(1)
	}
	limit := stats.Quantile(y, q)
	for i, v := range out {
		if v > limit {
			out[i] = limit
		}
	}
	return out, limit
}

// Metrics are regression scores in price space.
type Metrics struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
	N    int     `json:"n"`
}

// Evaluate scores predictions against actual values. R2 is 0 when actual
// has no variance.
func Evaluate(pred, actual []float64) (Metrics, error) {
	if len(pred) != len(actual) {
		return Metrics{}, fmt.Errorf("evaluate: %d predictions for %d targets", len(pred), len(actual))
	}
	m := Metrics{N: len(actual)}
	if m.N == 0 {
		return m, nil
	}

	mean := stats.Mean(actual)
	var sse, sae, sst float64
	for i := range actual {
		d := pred[i] - actual[i]
		sse += d * d
		sae += math.Abs(d)
		t := actual[i] - mean
		sst += t * t
	}
	n := float64(m.N)
	m.RMSE = math.Sqrt(sse / n)
	m.MAE = sae / n
	if sst > 0 {
		m.R2 = 1 - sse/sst
	}
	return m, nil
}

// Subset picks rows and targets by index.
func Subset[T any](xs []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}
