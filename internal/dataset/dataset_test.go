// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

const sampleCSV = `price,date_of_transfer,postcode,property_type,old_new,duration,town_city
700000,2020-01-01,nw1 8np,F,N,L,LONDON
800000,2020-02-01 00:00,NW1  8NQ,T,Y,F,LONDON
-5,2020-03-01,NW1 8NR,F,N,L,LONDON
abc,2020-03-01,NW1 8NR,F,N,L,LONDON
650000,not-a-date,NW1 8NR,F,N,L,LONDON
500000,2020-04-01,NW1 8NR,X,N,L,LONDON
400000,2020-05-01,NW1 8NR,D,N,U,LONDON
`

func TestCanonPostcode(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want, out, inc string }{
		{"sw1a 1aa", "SW1A1AA", "SW1A", "1AA"},
		{"  ec1a\t1bb ", "EC1A1BB", "EC1A", "1BB"},
		{"N1 9GU", "N19GU", "N1", "9GU"},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		got := CanonPostcode(tt.in)
		if got != tt.want {
			t.Errorf("CanonPostcode(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if o := Outcode(got); o != tt.out {
			t.Errorf("Outcode(%q) = %q, want %q", got, o, tt.out)
		}
		if i := Incode(got); i != tt.inc {
			t.Errorf("Incode(%q) = %q, want %q", got, i, tt.inc)
		}
	}
}

func TestReadCSVAndClean(t *testing.T) {
	t.Parallel()

	rows, err := ReadCSV(strings.NewReader(sampleCSV), LoadOptions{})
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("rows = %d, want 7", len(rows))
	}

	records, st := Clean(rows, CleanOptions{DropMissingPostcode: true})
	if len(records) != 2 {
		t.Fatalf("kept = %d, want 2 (stats %+v)", len(records), st)
	}
	if st.Dropped["unparsable"] != 2 || st.Dropped["non_positive_price"] != 1 ||
		st.Dropped["property_type"] != 1 || st.Dropped["flags"] != 1 {
		t.Errorf("dropped = %v", st.Dropped)
	}

	first := records[0]
	if first.Postcode != "NW18NP" || first.IsLeasehold != "Y" || first.IsNewBuild != "N" {
		t.Errorf("first record = %+v", first)
	}
	if !first.Date.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first date = %v", first.Date)
	}
	if records[1].IsLeasehold != "N" || records[1].Postcode != "NW18NQ" {
		t.Errorf("second record = %+v", records[1])
	}
}

func TestReadCSV_MissingColumn(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(strings.NewReader("price,date\n1,2020-01-01\n"), LoadOptions{})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("error = %v, want ErrSchemaMismatch", err)
	}
}

func TestLoad_NoHeaderPricePaid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pp-2020.noheader.csv")
	line := `"{ID}","450000","2020-06-12 00:00","E1 6AN","F","N","L","1","","HIGH ST","","LONDON","TOWER HAMLETS","GREATER LONDON","A","A"` + "\n"
	if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
		t.Fatal(err)
	}

	rows, err := Load(path, LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	records, _ := Clean(rows, CleanOptions{})
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.Price != 450000 || r.Postcode != "E16AN" || r.District != "TOWER HAMLETS" || r.TownCity != "LONDON" {
		t.Errorf("record = %+v", r)
	}
}

func TestLoadXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sales.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	grid := [][]interface{}{
		{"price", "date", "postcode", "property_type", "is_new_build", "is_leasehold"},
		{"910000", "2021-03-04", "SE1 9SG", "S", "N", "N"},
	}
	for i, row := range grid {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	rows, err := Load(path, LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	records, _ := Clean(rows, CleanOptions{})
	if len(records) != 1 || records[0].Postcode != "SE19SG" || records[0].PropertyType != "S" {
		t.Errorf("records = %+v", records)
	}
}

func TestCleanClipsUpperQuantile(t *testing.T) {
	t.Parallel()

	var rows []RawRow
	for _, p := range []string{"100", "200", "300", "400", "10000"} {
		rows = append(rows, RawRow{
			"price": p, "date": "2020-01-01", "postcode": "N1 1AA",
			"property_type": "F", "is_new_build": "N", "is_leasehold": "Y",
		})
	}
	records, st := Clean(rows, CleanOptions{ClipQuantile: 0.75})
	if st.Clipped != 1 {
		t.Errorf("clipped = %d, want 1", st.Clipped)
	}
	if records[4].Price != 400 || st.ClipValue != 400 {
		t.Errorf("clipped price = %v (clip %v), want 400", records[4].Price, st.ClipValue)
	}
}

func TestAddFloorArea(t *testing.T) {
	t.Parallel()

	aug := []RawRow{
		{"postcode": "n1 1aa", "floor_area": "50"},
		{"postcode": "N1 1AA", "floor_area": "70"},
		{"postcode": "N1 1AB", "floor_area": "bad"},
	}
	areas, err := FloorAreaByKey(aug, "postcode")
	if err != nil {
		t.Fatalf("FloorAreaByKey() error = %v", err)
	}
	if areas["N11AA"] != 60 {
		t.Errorf("median floor area = %v, want 60", areas["N11AA"])
	}

	records := []Record{{Postcode: "N11AA"}, {Postcode: "N11AB"}}
	res, err := AddFloorArea(records, areas, 0.75)
	if !errors.Is(err, ErrLowMatchRate) {
		t.Errorf("error = %v, want ErrLowMatchRate", err)
	}
	if res.Matched != 1 || res.MatchRate != 0.5 || records[0].FloorArea != 60 {
		t.Errorf("result = %+v, records = %+v", res, records)
	}

	if _, err := AddFloorArea(records, areas, 0.5); err != nil {
		t.Errorf("match rate at threshold should pass, got %v", err)
	}
}

func TestFloorAreaByKey_MissingColumn(t *testing.T) {
	t.Parallel()

	_, err := FloorAreaByKey([]RawRow{{"postcode": "N1 1AA"}}, "postcode")
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("error = %v, want ErrSchemaMismatch", err)
	}
}

func TestBuildQualityReport(t *testing.T) {
	t.Parallel()

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var records []Record
	for i := 0; i < 20; i++ {
		records = append(records, Record{
			Price: float64(100000 + i*1000), Date: day, Postcode: "N11AA",
			PropertyType: "F", IsNewBuild: "N", IsLeasehold: "Y",
		})
	}
	records[0].Price = 10_000_000
	records[1].District = "Islington"

	rep := BuildQualityReport(records, 42)
	if rep.Rows != 20 {
		t.Errorf("Rows = %d", rep.Rows)
	}
	if rep.Missing["district"] != 0.95 {
		t.Errorf("district missing = %v, want 0.95", rep.Missing["district"])
	}
	if rep.Missing["floor_area"] != 1 {
		t.Errorf("floor_area missing = %v, want 1", rep.Missing["floor_area"])
	}
	if rep.Outliers["price"] != 1 {
		t.Errorf("price outliers = %d, want 1", rep.Outliers["price"])
	}
	if rep.CategoryDistribution["property_type"]["F"] != 1 {
		t.Errorf("property_type distribution = %v", rep.CategoryDistribution["property_type"])
	}
	if _, ok := rep.TrainValDrift["price"]; !ok {
		t.Error("expected price drift statistic")
	}
}

func TestFileSHA256(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.csv")
	if err := os.WriteFile(path, []byte("abc"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := FileSHA256(path)
	if err != nil {
		t.Fatal(err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("FileSHA256() = %s, want %s", got, want)
	}
}

func TestRecordGetSet(t *testing.T) {
	t.Parallel()

	var r Record
	if err := r.Set(ColDistrict, "Camden"); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.Get(ColDistrict); v != "Camden" {
		t.Errorf("Get(district) = %q", v)
	}
	if err := r.Set("price", "1"); err == nil {
		t.Error("Set(price) should fail, price is not categorical")
	}
	if ValidColumn("nope") || !ValidColumn(ColTownCity) {
		t.Error("ValidColumn mismatch")
	}
}
