// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package model

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/tomtom215/pricecast/internal/features"
)

// synthetic builds rows where price depends on district and sold_month.
func synthetic(n int) ([]features.Row, []float64) {
	districts := []string{"Camden", "Hackney", "Brent"}
	base := map[string]float64{"Camden": 900, "Hackney": 600, "Brent": 300}
	rows := make([]features.Row, n)
	y := make([]float64, n)
	for i := range rows {
		d := districts[i%3]
		month := i%12 + 1
		rows[i] = features.Row{
			PropertyType: "F", IsNewBuild: "N", IsLeasehold: "Y", District: d,
			SoldMonth: month, AdvancedPropertyType: "N_F", PropertyTypeAndTenure: "Y_F",
			PropertyTypeAndDistrict: d + "_F", Date: 737000 + month, SoldYear: 2020,
			BoroughPriceTrend: base[d], DistrictYearlyMedians: base[d], AvgPriceLastHalf: base[d],
		}
		y[i] = base[d] + float64(month)*10
	}
	return rows, y
}

func testConfig() Config {
	return Config{Iterations: 300, Depth: 4, LearningRate: 0.3, EarlyStop: 20, MinLeafSamples: 2, MaxBins: 16}
}

func TestFitLearnsSignal(t *testing.T) {
	t.Parallel()

	rows, y := synthetic(360)
	vrows, vy := synthetic(60)

	g, err := Fit(context.Background(), testConfig(), rows, y, vrows, vy)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	pred, err := g.Predict(vrows)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Evaluate(pred, vy)
	if err != nil {
		t.Fatal(err)
	}
	if m.R2 < 0.99 {
		t.Errorf("R2 = %.4f, want >= 0.99 (rmse %.2f)", m.R2, m.RMSE)
	}
	if g.BestIteration != len(g.Trees) || g.BestIteration > g.Iterations {
		t.Errorf("best iteration %d, trees %d, run %d", g.BestIteration, len(g.Trees), g.Iterations)
	}
}

func TestFitEarlyStops(t *testing.T) {
	t.Parallel()

	rows, y := synthetic(90)
	cfg := testConfig()
	cfg.Iterations = 5000
	cfg.EarlyStop = 5

	g, err := Fit(context.Background(), cfg, rows, y, rows, y)
	if err != nil {
		t.Fatal(err)
	}
	if g.Iterations >= cfg.Iterations {
		t.Errorf("ran all %d iterations, expected early stop", g.Iterations)
	}
}

func TestFitHonoursContext(t *testing.T) {
	t.Parallel()

	rows, y := synthetic(30)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Fit(ctx, testConfig(), rows, y, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestEncodeLoadRoundTrip(t *testing.T) {
	t.Parallel()

	rows, y := synthetic(120)
	g, err := Fit(context.Background(), testConfig(), rows, y, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := g.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want, _ := g.Predict(rows)
	got, err := loaded.Predict(rows)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Error("loaded model predicts differently")
	}
}

func TestLoadRejectsOtherLayouts(t *testing.T) {
	t.Parallel()

	doc := `{"columns":["a","b"],"base":1,"trees":[]}`
	if _, err := Load(strings.NewReader(doc)); !errors.Is(err, ErrColumnMismatch) {
		t.Errorf("error = %v, want ErrColumnMismatch", err)
	}
}

func TestPredictUnfitted(t *testing.T) {
	t.Parallel()

	var g *GBM
	if _, err := g.Predict(nil); !errors.Is(err, ErrNotFitted) {
		t.Errorf("error = %v, want ErrNotFitted", err)
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()

	p, err := Split(100, 0.15, 0.15, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Test) != 15 || len(p.Val) != 15 || len(p.Train) != 70 {
		t.Errorf("sizes = %d/%d/%d", len(p.Train), len(p.Val), len(p.Test))
	}
	seen := make(map[int]bool)
	for _, part := range [][]int{p.Train, p.Val, p.Test} {
		for _, i := range part {
			if seen[i] {
				t.Fatalf("index %d appears twice", i)
			}
			seen[i] = true
		}
	}
	again, _ := Split(100, 0.15, 0.15, 42)
	if !reflect.DeepEqual(p, again) {
		t.Error("same seed produced a different split")
	}
	if _, err := Split(10, 0.5, 0.5, 1); err == nil {
		t.Error("expected error when no training rows remain")
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	m, err := Evaluate([]float64{1, 2, 3}, []float64{1, 2, 5})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(m.RMSE-math.Sqrt(4.0/3)) > 1e-12 || math.Abs(m.MAE-2.0/3) > 1e-12 {
		t.Errorf("metrics = %+v", m)
	}
	// actual mean 8/3, sst = 25/9+4/9+49/9 = 78/9
	if math.Abs(m.R2-(1-4/(78.0/9))) > 1e-12 {
		t.Errorf("R2 = %v", m.R2)
	}
	if _, err := Evaluate([]float64{1}, nil); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestClipQuantile(t *testing.T) {
	t.Parallel()

	in := []float64{1, 2, 3, 4, 100}
	out, limit := ClipQuantile(in, 0.75)
	if limit != 4 || out[4] != 4 || in[4] != 100 {
		t.Errorf("ClipQuantile() = %v, %v (input %v)", out, limit, in)
	}
	if _, limit := ClipQuantile(in, 1); !math.IsInf(limit, 1) {
		t.Error("q=1 should disable clipping")
	}
}

func TestRegressorFunc(t *testing.T) {
	t.Parallel()

	var r Regressor = RegressorFunc(func(rows []features.Row) ([]float64, error) {
		return []float64{float64(len(rows))}, nil
	})
	got, _ := r.Predict(make([]features.Row, 2))
	if got[0] != 2 {
		t.Errorf("Predict() = %v", got)
	}
}
