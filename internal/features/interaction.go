// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package features

import (
	"fmt"

	"github.com/tomtom215/pricecast/internal/dataset"
)

// InteractionSeparator joins the operands of an interaction column.
const InteractionSeparator = "_"

// Interact concatenates a and b in that order: Interact("Y", "F") == "Y_F".
func Interact(a, b string) string {
	return a + InteractionSeparator + b
}

// InteractionFeatures builds the composite column colA_colB for every record.
func InteractionFeatures(records []dataset.Record, colA, colB string) ([]string, error) {
	if !dataset.ValidColumn(colA) || !dataset.ValidColumn(colB) {
		return nil, fmt.Errorf("interaction %s x %s: unknown column", colA, colB)
	}
	out := make([]string, len(records))
	for i := range records {
		a, _ := records[i].Get(colA)
		b, _ := records[i].Get(colB)
		out[i] = Interact(a, b)
	}
	return out, nil
}
