// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tomtom215/pricecast/internal/dataset"
	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/metrics"
)

const (
	tablePrefix = "london_housing_"

	// maxIdentifierLen keeps generated names portable to engines with a
	// 63 byte identifier limit.
	maxIdentifierLen = 63

	hashesTable = "dataset_hashes"
)

var checksumPattern = regexp.MustCompile(`^[0-9a-f]{1,64}$`)

// TableName returns the cache table for a lowercase hex checksum.
func TableName(checksum string) (string, error) {
	checksum = strings.ToLower(checksum)
	if !checksumPattern.MatchString(checksum) {
		return "", fmt.Errorf("invalid dataset checksum %q", checksum)
	}
	name := tablePrefix + checksum
	if len(name) > maxIdentifierLen {
		name = name[:maxIdentifierLen]
	}
	return name, nil
}

// EnsureChecksumTable creates the checksum registry if it does not exist.
func (db *DB) EnsureChecksumTable(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+hashesTable+` (
		hash CHAR(64) PRIMARY KEY,
		table_name TEXT NOT NULL,
		inserted_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", hashesTable, err)
	}
	return nil
}

// IsPersisted reports whether a dataset with checksum is cached and, if so,
// its table name.
func (db *DB) IsPersisted(ctx context.Context, checksum string) (string, bool, error) {
	start := time.Now()
	var table string
	err := db.conn.QueryRowContext(ctx,
		`SELECT table_name FROM `+hashesTable+` WHERE hash = ?`, strings.ToLower(checksum)).Scan(&table)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("select", hashesTable, time.Since(start), nil)
		return "", false, nil
	}
	metrics.RecordDBQuery("select", hashesTable, time.Since(start), err)
	if err != nil {
		return "", false, fmt.Errorf("query %s: %w", hashesTable, err)
	}
	return table, true, nil
}

// LatestTable returns the most recently persisted dataset table.
func (db *DB) LatestTable(ctx context.Context) (string, error) {
	var table string
	err := db.conn.QueryRowContext(ctx,
		`SELECT table_name FROM `+hashesTable+` ORDER BY inserted_at DESC LIMIT 1`).Scan(&table)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoDataset
	}
	if err != nil {
		return "", fmt.Errorf("query latest dataset: %w", err)
	}
	return table, nil
}

// Persist writes records into the checksum's table and registers it, in one
// transaction. Persisting an already registered checksum is a no-op.
func (db *DB) Persist(ctx context.Context, checksum string, records []dataset.Record) (table string, err error) {
	table, err = TableName(checksum)
	if err != nil {
		return "", err
	}
	if _, ok, err := db.IsPersisted(ctx, checksum); err != nil {
		return "", err
	} else if ok {
		return table, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", tablePrefix+"*", time.Since(start), err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).AnErr("original_error", err).Msg("Transaction rollback failed")
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `CREATE OR REPLACE TABLE `+table+` (
		price DOUBLE NOT NULL,
		date DATE NOT NULL,
		postcode VARCHAR NOT NULL,
		district VARCHAR,
		property_type VARCHAR NOT NULL,
		is_new_build VARCHAR NOT NULL,
		is_leasehold VARCHAR NOT NULL,
		town_city VARCHAR,
		floor_area DOUBLE
	)`); err != nil {
		return "", fmt.Errorf("create %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+` VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for i := range records {
		r := &records[i]
		if _, err = stmt.ExecContext(ctx,
			r.Price, r.Date, r.Postcode, nullString(r.District),
			r.PropertyType, r.IsNewBuild, r.IsLeasehold,
			nullString(r.TownCity), nullFloat(r.FloorArea),
		); err != nil {
			return "", fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO `+hashesTable+` (hash, table_name, inserted_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		strings.ToLower(checksum), table, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("register dataset: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit dataset: %w", err)
	}

	logging.Info().Str("table", table).Int("rows", len(records)).Msg("Dataset persisted")
	return table, nil
}

// Load reads every record of a cached dataset table.
func (db *DB) Load(ctx context.Context, table string) (records []dataset.Record, err error) {
	if !strings.HasPrefix(table, tablePrefix) || !checksumPattern.MatchString(strings.TrimPrefix(table, tablePrefix)) {
		return nil, fmt.Errorf("invalid dataset table %q", table)
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", tablePrefix+"*", time.Since(start), err) }()

	rows, err := db.conn.QueryContext(ctx, `SELECT price, date, postcode, district, property_type,
		is_new_build, is_leasehold, town_city, floor_area FROM `+table+` ORDER BY date, postcode`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var (
			r        dataset.Record
			district sql.NullString
			town     sql.NullString
			area     sql.NullFloat64
		)
		if err = rows.Scan(&r.Price, &r.Date, &r.Postcode, &district, &r.PropertyType,
			&r.IsNewBuild, &r.IsLeasehold, &town, &area); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		r.Date = r.Date.UTC()
		r.District = district.String
		r.TownCity = town.String
		r.FloorArea = area.Float64
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return records, nil
}

// Reset drops every cached dataset and empties the registry. Used in
// development mode to force a full rebuild.
func (db *DB) Reset(ctx context.Context) error {
	rows, err := db.conn.QueryContext(ctx, `SELECT table_name FROM `+hashesTable)
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}
	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			closeQuietly(rows)
			return fmt.Errorf("scan dataset name: %w", err)
		}
		tables = append(tables, t)
	}
	closeWithLog(rows, "rows")

	for _, t := range tables {
		if !strings.HasPrefix(t, tablePrefix) {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, `DROP TABLE IF EXISTS `+t); err != nil {
			return fmt.Errorf("drop %s: %w", t, err)
		}
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM `+hashesTable); err != nil {
		return fmt.Errorf("clear %s: %w", hashesTable, err)
	}
	logging.Warn().Int("tables", len(tables)).Msg("Dataset cache reset")
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f > 0}
}
