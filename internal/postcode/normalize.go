// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package postcode

import (
	"strings"
	"unicode"
)

// Normalize upper-cases raw and strips every whitespace rune:
// "sw1a 1aa" becomes "SW1A1AA".
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Outcode returns all but the last three characters of a normalized postcode.
func Outcode(key string) string {
	if len(key) <= 3 {
		return ""
	}
	return key[:len(key)-3]
}

// Incode returns the last three characters of a normalized postcode.
func Incode(key string) string {
	if len(key) < 3 {
		return key
	}
	return key[len(key)-3:]
}

// normalizeAll normalizes and de-duplicates keys, dropping empties.
// Order of first appearance is kept.
func normalizeAll(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		k := Normalize(r)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// chunk splits keys into consecutive slices of at most size elements.
func chunk(keys []string, size int) [][]string {
	if size <= 0 {
		size = len(keys)
	}
	var out [][]string
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		out = append(out, keys[start:end])
	}
	return out
}
