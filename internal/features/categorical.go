// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/pricecast/internal/dataset"
)

// MergeCategories rewrites column in place: every value listed under a
// target in mergeMap becomes that target. Values not listed are unchanged.
func MergeCategories(records []dataset.Record, column string, mergeMap map[string][]string) error {
	if !dataset.ValidColumn(column) {
		return fmt.Errorf("merge categories: unknown column %q", column)
	}
	replace := make(map[string]string)
	for to, froms := range mergeMap {
		for _, from := range froms {
			replace[from] = to
		}
	}
	for i := range records {
		v, _ := records[i].Get(column)
		if to, ok := replace[v]; ok {
			_ = records[i].Set(column, to)
		}
	}
	return nil
}

// DropNicheCategories keeps the records whose column value occurs at least
// threshold times. The input slice is not modified.
func DropNicheCategories(records []dataset.Record, column string, threshold int) ([]dataset.Record, error) {
	if !dataset.ValidColumn(column) {
		return nil, fmt.Errorf("drop niche categories: unknown column %q", column)
	}
	counts := valueCounts(records, column)
	out := make([]dataset.Record, 0, len(records))
	for i := range records {
		v, _ := records[i].Get(column)
		if counts[v] >= threshold {
			out = append(out, records[i])
		}
	}
	return out, nil
}

// NicheCategories splits the distinct values of column into the top n by
// count and the rest. Ties are broken by value so the split is stable.
func NicheCategories(records []dataset.Record, column string, n int) (niche, top []string) {
	counts := valueCounts(records, column)
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if counts[values[i]] != counts[values[j]] {
			return counts[values[i]] > counts[values[j]]
		}
		return values[i] < values[j]
	})
	if n > len(values) {
		n = len(values)
	}
	return values[n:], values[:n]
}

// FilterByKeywords keeps the records whose column contains any keyword,
// compared case-insensitively. Blank keywords are ignored, and a list with
// no usable keyword keeps everything.
func FilterByKeywords(records []dataset.Record, column string, keywords []string) ([]dataset.Record, error) {
	if !dataset.ValidColumn(column) {
		return nil, fmt.Errorf("filter by keywords: unknown column %q", column)
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	if len(lowered) == 0 {
		return records, nil
	}

	out := make([]dataset.Record, 0, len(records))
	for i := range records {
		v, _ := records[i].Get(column)
		v = strings.ToLower(v)
		for _, k := range lowered {
			if strings.Contains(v, k) {
				out = append(out, records[i])
				break
			}
		}
	}
	return out, nil
}

func valueCounts(records []dataset.Record, column string) map[string]int {
	counts := make(map[string]int)
	for i := range records {
		v, _ := records[i].Get(column)
		counts[v]++
	}
	return counts
}
