// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/dataset"
)

const testChecksum = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func sampleRecords() []dataset.Record {
	return []dataset.Record{
		{
			Price: 750000, Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Postcode: "NW18NP",
			District: "Camden", PropertyType: "F", IsNewBuild: "N", IsLeasehold: "Y", TownCity: "LONDON",
		},
		{
			Price: 820000, Date: time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), Postcode: "N19GU",
			PropertyType: "T", IsNewBuild: "Y", IsLeasehold: "N", FloorArea: 92.5,
		},
	}
}

func TestTableName(t *testing.T) {
	t.Parallel()

	name, err := TableName(strings.ToUpper(testChecksum))
	if err != nil {
		t.Fatalf("TableName() error = %v", err)
	}
	if len(name) != maxIdentifierLen || !strings.HasPrefix(name, "london_housing_ba7816bf") {
		t.Errorf("TableName() = %q (len %d)", name, len(name))
	}

	short, err := TableName("abc123")
	if err != nil || short != "london_housing_abc123" {
		t.Errorf("TableName(abc123) = %q, %v", short, err)
	}

	for _, bad := range []string{"", "abc; DROP TABLE x", "xyz"} {
		if _, err := TableName(bad); err == nil {
			t.Errorf("TableName(%q) should fail", bad)
		}
	}
}

func TestPersistAndLoad(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.IsPersisted(ctx, testChecksum); err != nil || ok {
		t.Fatalf("IsPersisted() before persist = %v, %v", ok, err)
	}
	if _, err := db.LatestTable(ctx); !errors.Is(err, ErrNoDataset) {
		t.Errorf("LatestTable() error = %v, want ErrNoDataset", err)
	}

	table, err := db.Persist(ctx, testChecksum, sampleRecords())
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	got, ok, err := db.IsPersisted(ctx, testChecksum)
	if err != nil || !ok || got != table {
		t.Fatalf("IsPersisted() = %q, %v, %v; want %q", got, ok, err, table)
	}
	latest, err := db.LatestTable(ctx)
	if err != nil || latest != table {
		t.Errorf("LatestTable() = %q, %v", latest, err)
	}

	records, err := db.Load(ctx, table)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Load() rows = %d, want 2", len(records))
	}
	want := sampleRecords()
	for i := range want {
		r := records[i]
		if r.Price != want[i].Price || !r.Date.Equal(want[i].Date) || r.Postcode != want[i].Postcode ||
			r.District != want[i].District || r.TownCity != want[i].TownCity || r.FloorArea != want[i].FloorArea ||
			r.PropertyType != want[i].PropertyType || r.IsNewBuild != want[i].IsNewBuild || r.IsLeasehold != want[i].IsLeasehold {
			t.Errorf("record %d = %+v, want %+v", i, r, want[i])
		}
	}

	again, err := db.Persist(ctx, testChecksum, nil)
	if err != nil || again != table {
		t.Errorf("second Persist() = %q, %v", again, err)
	}
	records, err = db.Load(ctx, table)
	if err != nil || len(records) != 2 {
		t.Errorf("rows after second Persist() = %d, %v", len(records), err)
	}
}

func TestLoadRejectsForeignTable(t *testing.T) {
	db := setupTestDB(t)

	for _, name := range []string{"dataset_hashes", "london_housing_x; DROP TABLE dataset_hashes"} {
		if _, err := db.Load(context.Background(), name); err == nil {
			t.Errorf("Load(%q) should fail", name)
		}
	}
}

func TestReset(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Persist(ctx, testChecksum, sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if err := db.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, ok, err := db.IsPersisted(ctx, testChecksum); err != nil || ok {
		t.Errorf("IsPersisted() after reset = %v, %v", ok, err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
