// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/pricecast/internal/artifacts"
	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/database"
	"github.com/tomtom215/pricecast/internal/dataset"
	"github.com/tomtom215/pricecast/internal/features"
	"github.com/tomtom215/pricecast/internal/lookup"
)

// prefixResolver maps canonical postcodes to districts by outcode prefix and
// reports everything else as failed.
type prefixResolver struct {
	calls atomic.Int32
}

var districtByPrefix = []struct{ prefix, district string }{
	{"NW1", "Camden"},
	{"N1", "Islington"},
	{"E8", "Hackney"},
	{"SE1", "Southwark"},
}

func (r *prefixResolver) ResolveMany(_ context.Context, postcodes []string) (map[string]string, []string, error) {
	r.calls.Add(1)
	resolved := make(map[string]string)
	var failed []string
	seen := make(map[string]bool)
	for _, pc := range postcodes {
		if seen[pc] {
			continue
		}
		seen[pc] = true
		matched := false
		for _, p := range districtByPrefix {
			if strings.HasPrefix(pc, p.prefix) {
				resolved[pc] = p.district
				matched = true
				break
			}
		}
		if !matched {
			failed = append(failed, pc)
		}
	}
	return resolved, failed, nil
}

func testFeatureConfig() config.FeatureConfig {
	return config.FeatureConfig{
		UseDistrict:        true,
		DistrictCol:        "district",
		DropNicheThreshold: 3,
		CityCol:            "town_city",
		FilterKeywords:     []string{"london"},
	}
}

func rec(pc string, price float64, day time.Time, town string) dataset.Record {
	return dataset.Record{
		Price: price, Date: day, Postcode: pc, PropertyType: "F",
		IsNewBuild: "N", IsLeasehold: "Y", TownCity: town,
	}
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []dataset.Record{
		rec("NW11AA", 700000, day, "LONDON"),
		rec("NW11AB", 800000, day.AddDate(0, 1, 0), "LONDON"),
		rec("NW11AC", 750000, day.AddDate(0, 6, 0), "London"),
		rec("N11AA", 500000, day, "LONDON"),
		rec("N11AB", 520000, day.AddDate(0, 2, 0), "LONDON"),
		rec("N11AC", 540000, day.AddDate(0, 3, 0), "LONDON"),
		rec("SE19SG", 900000, day, "LONDON"),
		rec("ZZ99ZZ", 100000, day, "LONDON"),
		rec("NW11AD", 650000, day, "BRISTOL"),
	}

	res, err := New(testFeatureConfig(), &prefixResolver{}).Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Failed) != 1 || res.Failed[0] != "ZZ99ZZ" {
		t.Errorf("Failed = %v, want [ZZ99ZZ]", res.Failed)
	}
	if len(res.Rows) != 6 || len(res.Targets) != 6 {
		t.Fatalf("rows = %d, targets = %d; want 6", len(res.Rows), len(res.Targets))
	}
	for _, row := range res.Rows {
		if row.District != "Camden" && row.District != "Islington" {
			t.Errorf("unexpected district %q", row.District)
		}
		if row.PropertyTypeAndDistrict != features.Interact(row.District, "F") {
			t.Errorf("interaction = %q", row.PropertyTypeAndDistrict)
		}
	}
	if _, ok := res.Tables.BoroughPriceTrend["Southwark"]; ok {
		t.Error("niche district Southwark should have been dropped")
	}
	if res.Tables.BoroughPriceTrend["Camden"] != 750000 {
		t.Errorf("Camden trend = %v, want 750000", res.Tables.BoroughPriceTrend["Camden"])
	}
	if res.Tables.DistrictYearlyMedians[lookup.YearKey("Islington", 2020)] != 520000 {
		t.Errorf("yearly = %v", res.Tables.DistrictYearlyMedians)
	}
}

func TestPipelineRun_NoRecords(t *testing.T) {
	t.Parallel()

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := New(testFeatureConfig(), &prefixResolver{}).Run(context.Background(), []dataset.Record{
		rec("ZZ99ZZ", 100000, day, "LONDON"),
	})
	if !errors.Is(err, ErrNoRecords) {
		t.Errorf("error = %v, want ErrNoRecords", err)
	}
}

func TestPipelineRun_WithoutResolution(t *testing.T) {
	t.Parallel()

	cfg := testFeatureConfig()
	cfg.UseDistrict = false
	cfg.DropNicheThreshold = 0
	cfg.FilterKeywords = nil

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	a := rec("NW11AA", 700000, day, "")
	a.District = "Camden"
	b := rec("N11AA", 500000, day, "")

	res, err := New(cfg, nil).Run(context.Background(), []dataset.Record{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 || res.Rows[0].District != "Camden" {
		t.Errorf("rows = %+v, want the one record that carried a district", res.Rows)
	}
}

// exactResolver resolves only the postcodes it is given in canonical form.
type exactResolver struct {
	districts map[string]string
	got       []string
}

func (r *exactResolver) ResolveMany(_ context.Context, postcodes []string) (map[string]string, []string, error) {
	r.got = append(r.got, postcodes...)
	resolved := make(map[string]string)
	var failed []string
	for _, pc := range postcodes {
		if d, ok := r.districts[pc]; ok {
			resolved[pc] = d
		} else {
			failed = append(failed, pc)
		}
	}
	return resolved, failed, nil
}

func TestPrepare_NonCanonicalPostcodes(t *testing.T) {
	t.Parallel()

	cfg := testFeatureConfig()
	cfg.DropNicheThreshold = 0
	resolver := &exactResolver{districts: map[string]string{"NW18NP": "Camden"}}

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []dataset.Record{
		rec("nw1 8np", 700000, day, "LONDON"),
		rec("NW1 8NP", 710000, day, "LONDON"),
		rec(" Nw18nP ", 720000, day, "LONDON"),
	}

	got, failed, err := New(cfg, resolver).Prepare(context.Background(), records)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("failed = %v, want none", failed)
	}
	if len(got) != 3 {
		t.Fatalf("kept %d records, want 3", len(got))
	}
	for _, r := range got {
		if r.Postcode != "NW18NP" || r.District != "Camden" {
			t.Errorf("record = %q/%q, want NW18NP/Camden", r.Postcode, r.District)
		}
	}
	if len(resolver.got) != 1 || resolver.got[0] != "NW18NP" {
		t.Errorf("resolver received %v, want [NW18NP]", resolver.got)
	}
}

func TestPrepare_DistrictColumnAndMerges(t *testing.T) {
	t.Parallel()

	cfg := config.FeatureConfig{
		DistrictCol:        dataset.ColTownCity,
		DropNicheThreshold: 3,
		MergeCategories: map[string]map[string][]string{
			dataset.ColDistrict:     {"Inner North": {"Camden", "Islington"}},
			dataset.ColPropertyType: {"F": {"O"}},
		},
	}

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []dataset.Record{
		rec("NW11AA", 700000, day, "Camden"),
		rec("NW11AB", 710000, day, "Camden"),
		rec("N11AA", 500000, day, "Islington"),
		rec("N11AB", 510000, day, "Islington"),
		rec("E81AA", 450000, day, "Hackney"),
		rec("E81AB", 460000, day, ""),
	}
	records[3].PropertyType = "O"

	got, _, err := New(cfg, nil).Prepare(context.Background(), records)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("kept %d records, want the 4 merged into Inner North", len(got))
	}
	for _, r := range got {
		if r.District != "Inner North" {
			t.Errorf("District = %q, want Inner North", r.District)
		}
		if r.PropertyType != "F" {
			t.Errorf("PropertyType = %q, want O merged into F", r.PropertyType)
		}
	}
}

func TestPrepare_InvalidDistrictColumn(t *testing.T) {
	t.Parallel()

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, col := range []string{"borough", dataset.ColPostcode} {
		cfg := testFeatureConfig()
		cfg.DistrictCol = col
		_, _, err := New(cfg, &prefixResolver{}).Prepare(context.Background(), []dataset.Record{
			rec("NW11AA", 700000, day, "LONDON"),
		})
		if err == nil {
			t.Errorf("DistrictCol %q: expected error", col)
		}
	}
}

func writeSalesCSV(t *testing.T, dir string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("price,date_of_transfer,postcode,property_type,old_new,duration,town_city\n")
	areas := []struct {
		outcode string
		base    int
	}{{"NW1", 800000}, {"N1", 600000}, {"E8", 450000}}
	types := []struct {
		code   string
		factor int
	}{{"F", 1}, {"T", 2}, {"D", 3}}
	for _, a := range areas {
		for i := 0; i < 60; i++ {
			pt := types[i%len(types)]
			price := a.base*pt.factor + (i%7)*5000
			date := time.Date(2019, time.Month(1+i%12), 1+i%27, 0, 0, 0, 0, time.UTC)
			tenure := "L"
			if pt.code != "F" {
				tenure = "F"
			}
			fmt.Fprintf(&b, "%d,%s,%s %dA%c,%s,N,%s,LONDON\n",
				price, date.Format("2006-01-02"), a.outcode, 1+i%9, 'A'+rune(i%20), pt.code, tenure)
		}
	}
	b.WriteString("450000,2019-05-05,ZZ9 9ZZ,F,N,L,LONDON\n")
	b.WriteString("300000,2019-05-05,BS1 1AA,F,N,L,BRISTOL\n")

	path := filepath.Join(dir, "pp-2019.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func testTrainingConfig() config.TrainingConfig {
	return config.TrainingConfig{
		Cleaning: config.CleaningConfig{PriceClipQ: 0.99, DropMissingPC: true},
		Features: testFeatureConfig(),
		Model: config.ModelConfig{
			Iterations:     40,
			Depth:          3,
			LearningRate:   0.3,
			EarlyStop:      10,
			LogTarget:      true,
			ClipTargetQ:    0.99,
			TestSize:       0.15,
			ValSize:        0.15,
			RandomState:    42,
			MinLeafSamples: 2,
		},
		Augment: config.AugmentConfig{MergeKey: "postcode"},
	}
}

func testArtifactsConfig() config.ArtifactsConfig {
	return config.ArtifactsConfig{
		InMemory:       true,
		ExperimentName: "LondonHousingAI",
		ModelArtifact:  "model.json",
		LookupArtifact: lookup.DefaultArtifactName,
	}
}

func setupTrainer(t *testing.T, resolver BulkResolver) (*Trainer, *artifacts.BadgerStore) {
	t.Helper()

	art := testArtifactsConfig()
	store, err := artifacts.Open(&art)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	db, err := database.Open(&config.DatabaseConfig{Path: ":memory:", Threads: 2})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := testTrainingConfig()
	return NewTrainer(cfg, art, New(cfg.Features, resolver), db, store), store
}

func TestTrainerTrain(t *testing.T) {
	resolver := &prefixResolver{}
	trainer, store := setupTrainer(t, resolver)
	path := writeSalesCSV(t, t.TempDir())
	ctx := context.Background()

	res, err := trainer.Train(ctx, Dataset{Path: path})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if res.Rows != 180 || res.Failed != 1 || res.FromCache {
		t.Errorf("result = %+v", res)
	}
	if res.Metrics.N == 0 {
		t.Error("expected evaluation rows")
	}

	run, err := store.GetRun(ctx, res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != artifacts.StatusFinished {
		t.Errorf("status = %s, want FINISHED", run.Status)
	}
	if v, _ := run.Param("log_target"); v != "true" {
		t.Errorf("log_target param = %q", v)
	}
	if _, ok := run.Metrics["rmse"]; !ok {
		t.Error("rmse metric not logged")
	}

	tables, err := artifacts.LoadLookupTables(ctx, res.RunID, lookup.DefaultArtifactName, "", store)
	if err != nil {
		t.Fatalf("LoadLookupTables() error = %v", err)
	}
	if len(tables.BoroughPriceTrend) != 3 {
		t.Errorf("borough table = %v", tables.BoroughPriceTrend)
	}

	gbm, err := artifacts.LoadModel(ctx, res.RunID, "model.json", store)
	if err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	if len(gbm.Trees) == 0 {
		t.Error("stored model has no trees")
	}

	report, err := store.GetArtifact(ctx, res.RunID, QualityReportName)
	if err != nil || !bytes.Contains(report, []byte(`"rows": 180`)) {
		t.Errorf("quality report = %s, %v", report, err)
	}

	again, err := trainer.Train(ctx, Dataset{Path: path})
	if err != nil {
		t.Fatalf("second Train() error = %v", err)
	}
	if !again.FromCache || again.Rows != 180 {
		t.Errorf("second result = %+v, want rows from cache", again)
	}
	if resolver.calls.Load() != 1 {
		t.Errorf("resolver calls = %d, want 1", resolver.calls.Load())
	}

	latest, err := store.LatestFinishedRun(ctx, "LondonHousingAI")
	if err != nil || latest.ID != again.RunID {
		t.Errorf("LatestFinishedRun() = %v, %v; want %s", latest, err, again.RunID)
	}
}

func TestTrainerMarksFailedRun(t *testing.T) {
	trainer, store := setupTrainer(t, &prefixResolver{})
	ctx := context.Background()

	res, err := trainer.Train(ctx, Dataset{Path: filepath.Join(t.TempDir(), "missing.csv")})
	if err == nil {
		t.Fatal("Train() with missing dataset should fail")
	}
	run, err := store.GetRun(ctx, res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != artifacts.StatusFailed {
		t.Errorf("status = %s, want FAILED", run.Status)
	}
	if _, err := store.LatestFinishedRun(ctx, "LondonHousingAI"); !errors.Is(err, artifacts.ErrNotFound) {
		t.Errorf("LatestFinishedRun() error = %v, want ErrNotFound", err)
	}
}

func TestTrainerAugment(t *testing.T) {
	trainer, store := setupTrainer(t, &prefixResolver{})
	dir := t.TempDir()
	path := writeSalesCSV(t, dir)

	aug := filepath.Join(dir, "epc.csv")
	if err := os.WriteFile(aug, []byte("postcode,total_floor_area\nNW1 1AA,55\nN1 2AB,80\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := trainer.Train(context.Background(), Dataset{Path: path, AugmentPath: aug})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	run, _ := store.GetRun(context.Background(), res.RunID)
	if v, _ := run.Param("augment_dataset"); v != aug {
		t.Errorf("augment_dataset param = %q", v)
	}
}
