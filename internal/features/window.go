// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package features

import (
	"sort"
	"time"

	"github.com/tomtom215/pricecast/internal/dataset"
)

// TrailingWindow is the look-back of AvgPriceLast6Months.
const TrailingWindow = 180 * 24 * time.Hour

// AvgPriceLast6Months returns, for every record, the median price of the
// same-district records dated in [date-180d, date). The window never
// contains the record itself or any sale on the same day. Records with an
// empty window take the district's all-time median.
func AvgPriceLast6Months(records []dataset.Record) []float64 {
	return TrailingMedian(records, TrailingWindow)
}

// TrailingMedian is AvgPriceLast6Months with a configurable window.
func TrailingMedian(records []dataset.Record, window time.Duration) []float64 {
	out := make([]float64, len(records))
	fallback := DistrictMedians(records)

	partitions := make(map[string][]int)
	for i := range records {
		d := records[i].District
		partitions[d] = append(partitions[d], i)
	}

	for district, idx := range partitions {
		sort.SliceStable(idx, func(a, b int) bool {
			return records[idx[a]].Date.Before(records[idx[b]].Date)
		})

		var (
			win   sortedWindow
			left  int // oldest row still in win
			right int // next row to enter win
		)
		for start := 0; start < len(idx); {
			day := records[idx[start]].Date
			end := start
			for end < len(idx) && records[idx[end]].Date.Equal(day) {
				end++
			}

			for right < start {
				win.insert(records[idx[right]].Price)
				right++
			}
			lower := day.Add(-window)
			for left < right && records[idx[left]].Date.Before(lower) {
				win.remove(records[idx[left]].Price)
				left++
			}

			value := fallback[district]
			if win.len() > 0 {
				value = win.median()
			}
			for _, i := range idx[start:end] {
				out[i] = value
			}
			start = end
		}
	}
	return out
}

// sortedWindow is a multiset of prices kept in ascending order.
type sortedWindow struct{ v []float64 }

func (w *sortedWindow) len() int { return len(w.v) }

func (w *sortedWindow) insert(x float64) {
	i := sort.SearchFloat64s(w.v, x)
	w.v = append(w.v, 0)
	copy(w.v[i+1:], w.v[i:])
	w.v[i] = x
}

func (w *sortedWindow) remove(x float64) {
	i := sort.SearchFloat64s(w.v, x)
	if i < len(w.v) && w.v[i] == x {
		w.v = append(w.v[:i], w.v[i+1:]...)
	}
}

func (w *sortedWindow) median() float64 {
	n := len(w.v)
	if n%2 == 1 {
		return w.v[n/2]
	}
	return (w.v[n/2-1] + w.v[n/2]) / 2
}
