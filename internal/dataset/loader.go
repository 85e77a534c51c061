// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrSchemaMismatch is returned when a file lacks a required column.
var ErrSchemaMismatch = errors.New("schema and column header don't match")

// PricePaidHeaders is the column layout of headerless Price Paid Data exports
// (files named *.noheader.csv).
var PricePaidHeaders = []string{
	"transaction_id", "price", "date", "postcode", "property_type", "old_new",
	"duration", "paon", "saon", "street", "locality", "town_city", "district",
	"county", "ppd_category", "record_status",
}

// headerAliases maps source header names to canonical record fields.
var headerAliases = map[string]string{
	"price":             "price",
	"sale_price":        "price",
	"date":              "date",
	"date_of_transfer":  "date",
	"deed_date":         "date",
	"postcode":          "postcode",
	"postal_code":       "postcode",
	"property_type":     "property_type",
	"old_new":           "is_new_build",
	"is_new_build":      "is_new_build",
	"duration":          "duration",
	"is_leasehold":      "is_leasehold",
	"town_city":         "town_city",
	"town":              "town_city",
	"city":              "town_city",
	"district":          "district",
	"floor_area":        "floor_area",
	"total_floor_area":  "floor_area",
	"total-floor-area":  "floor_area",
	"transaction_id":    "",
	"transaction_uuid":  "",
	"record_status":     "",
	"ppd_category_type": "",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
}

// RawRow is one source row keyed by canonical column name. Values are
// untrimmed strings exactly as read.
type RawRow map[string]string

// LoadOptions controls how source columns are interpreted.
type LoadOptions struct {
	// Headers overrides the header row. Used for headerless files.
	Headers []string

	// Sheet selects an XLSX sheet; the first sheet is used when empty.
	Sheet string

	// Required lists canonical columns that must be present. Nil means
	// the sale record columns (price, date, postcode, property_type).
	Required []string
}

var saleColumns = []string{"price", "date", "postcode", "property_type"}

func (o LoadOptions) required() []string {
	if o.Required == nil {
		return saleColumns
	}
	return o.Required
}

// Load reads records from a CSV or XLSX file chosen by extension.
// Files named *.noheader.csv use PricePaidHeaders unless opts.Headers is set.
// Rows are returned unparsed; Clean converts and filters them.
func Load(path string, opts LoadOptions) ([]RawRow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, opts)
	case ".csv":
		if opts.Headers == nil && strings.HasSuffix(strings.ToLower(path), ".noheader.csv") {
			opts.Headers = PricePaidHeaders
		}
		f, err := os.Open(path) //nolint:gosec // path comes from the operator's CLI flags
		if err != nil {
			return nil, fmt.Errorf("open dataset: %w", err)
		}
		defer f.Close()
		return ReadCSV(f, opts)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

// ReadCSV reads rows from r. The first line is the header unless opts.Headers is set.
func ReadCSV(r io.Reader, opts LoadOptions) ([]RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	headers := opts.Headers
	if headers == nil {
		first, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		headers = first
	}
	mapping, err := canonicalHeaders(headers, opts.required())
	if err != nil {
		return nil, err
	}

	var rows []RawRow
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, toRawRow(mapping, fields))
	}
	return rows, nil
}

// LoadXLSX reads rows from an Excel workbook.
func LoadXLSX(path string, opts LoadOptions) ([]RawRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(grid) == 0 {
		return nil, nil
	}

	headers := opts.Headers
	body := grid
	if headers == nil {
		headers, body = grid[0], grid[1:]
	}
	mapping, err := canonicalHeaders(headers, opts.required())
	if err != nil {
		return nil, err
	}

	rows := make([]RawRow, 0, len(body))
	for _, fields := range body {
		rows = append(rows, toRawRow(mapping, fields))
	}
	return rows, nil
}

func canonicalHeaders(headers, required []string) ([]string, error) {
	mapping := make([]string, len(headers))
	seen := make(map[string]bool)
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		canon, ok := headerAliases[key]
		if !ok {
			canon = key
		}
		mapping[i] = canon
		if canon != "" {
			seen[canon] = true
		}
	}
	for _, col := range required {
		if !seen[col] {
			return nil, fmt.Errorf("%w: missing %q", ErrSchemaMismatch, col)
		}
	}
	return mapping, nil
}

func toRawRow(mapping []string, fields []string) RawRow {
	row := make(RawRow, len(mapping))
	for i, name := range mapping {
		if name == "" || i >= len(fields) {
			continue
		}
		row[name] = fields[i]
	}
	return row
}

// ParseRow converts a RawRow into a Record. Missing or invalid price and
// date are errors; everything else is normalised by Clean.
func ParseRow(row RawRow) (Record, error) {
	priceText := strings.ReplaceAll(strings.TrimSpace(row["price"]), ",", "")
	price, err := strconv.ParseFloat(strings.TrimPrefix(priceText, "£"), 64)
	if err != nil {
		return Record{}, fmt.Errorf("price %q: %w", row["price"], err)
	}

	date, err := ParseDate(row["date"])
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		Price:        price,
		Date:         date,
		Postcode:     row["postcode"],
		District:     strings.TrimSpace(row["district"]),
		PropertyType: strings.ToUpper(strings.TrimSpace(row["property_type"])),
		IsNewBuild:   strings.ToUpper(strings.TrimSpace(row["is_new_build"])),
		IsLeasehold:  strings.ToUpper(strings.TrimSpace(row["is_leasehold"])),
		TownCity:     strings.TrimSpace(row["town_city"]),
	}
	if d, ok := row["duration"]; ok && rec.IsLeasehold == "" {
		rec.IsLeasehold = durationToLeasehold(d)
	}
	if fa := strings.TrimSpace(row["floor_area"]); fa != "" {
		if v, err := strconv.ParseFloat(fa, 64); err == nil && v > 0 {
			rec.FloorArea = v
		}
	}
	return rec, nil
}

// ParseDate accepts ISO dates, ISO timestamps and dd/mm/yyyy. The result is
// truncated to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q: unrecognised format", s)
}

// durationToLeasehold maps the Land Registry duration code (F/L) to Y/N.
func durationToLeasehold(d string) string {
	switch strings.ToUpper(strings.TrimSpace(d)) {
	case "L":
		return "Y"
	case "F":
		return "N"
	default:
		return ""
	}
}
