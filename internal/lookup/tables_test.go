// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package lookup

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/pricecast/internal/dataset"
)

func rec(district string, price float64, y int, m time.Month, d int) dataset.Record {
	return dataset.Record{District: district, Price: price, Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func TestExport(t *testing.T) {
	t.Parallel()

	records := []dataset.Record{
		rec("Camden", 100, 2019, time.March, 1),
		rec("Camden", 200, 2020, time.January, 15),
		rec("Camden", 400, 2020, time.March, 1),
		rec("Brent", 90, 2020, time.August, 31),
		rec("Brent", 70, 2020, time.February, 28),
	}
	tables := Export(records)

	if tables.BoroughPriceTrend["Camden"] != 200 || tables.BoroughPriceTrend["Brent"] != 80 {
		t.Errorf("borough = %v", tables.BoroughPriceTrend)
	}
	if tables.DistrictYearlyMedians["Camden_2020"] != 300 || tables.DistrictYearlyMedians["Camden_2019"] != 100 {
		t.Errorf("yearly = %v", tables.DistrictYearlyMedians)
	}
	// Cutoff is 2020-02-29: Brent's Feb 28 sale and Camden's January sale are outside.
	if _, ok := tables.AvgPriceLastHalf["Camden"]; !ok || tables.AvgPriceLastHalf["Camden"] != 400 {
		t.Errorf("last half = %v", tables.AvgPriceLastHalf)
	}
	if tables.AvgPriceLastHalf["Brent"] != 90 {
		t.Errorf("last half Brent = %v, want 90", tables.AvgPriceLastHalf["Brent"])
	}
}

func TestSubtractMonths(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"2020-08-31", "2020-02-29"},
		{"2021-08-31", "2021-02-28"},
		{"2020-03-15", "2019-09-15"},
	}
	for _, tt := range tests {
		in, _ := time.Parse(time.DateOnly, tt.in)
		if got := subtractMonths(in, 6).Format(time.DateOnly); got != tt.want {
			t.Errorf("subtractMonths(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	in := Tables{
		BoroughPriceTrend:     map[string]float64{"Camden": 750000.5},
		DistrictYearlyMedians: map[string]float64{YearKey("Camden", 2020): 760000},
		AvgPriceLastHalf:      map[string]float64{},
	}
	var buf bytes.Buffer
	if err := Encode(&buf, in); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"Camden_2020": 760000`) {
		t.Errorf("encoded document missing yearly key:\n%s", buf.String())
	}
	out, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.BoroughPriceTrend["Camden"] != 750000.5 {
		t.Errorf("decoded = %+v", out)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	docs := map[string]string{
		"not json":        `{"borough_price_trend":`,
		"missing section": `{"borough_price_trend":{"A":1},"district_yearly_medians":{}}`,
		"empty borough":   `{"borough_price_trend":{},"district_yearly_medians":{},"avg_price_last_half":{}}`,
		"wrong type":      `{"borough_price_trend":{"A":"x"},"district_yearly_medians":{},"avg_price_last_half":{}}`,
	}
	for name, doc := range docs {
		if _, err := DecodeBytes([]byte(doc)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: error = %v, want ErrMalformed", name, err)
		}
	}
}
