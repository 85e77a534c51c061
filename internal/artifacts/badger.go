// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/metrics"
)

// Key prefixes
const (
	runKeyPrefix      = "run:"
	artifactKeyPrefix = "artifact:"
)

func runKey(id string) []byte { return []byte(runKeyPrefix + id) }

func artifactKey(id, name string) []byte {
	return []byte(artifactKeyPrefix + id + ":" + name)
}

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens the store described by cfg.
func Open(cfg *config.ArtifactsConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.StorePath)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger artifact store: %w", err)
	}
	return NewBadgerStore(db), nil
}

// NewBadgerStore wraps an open database. The store owns db from then on.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// newRunID returns a 32 character hex id.
func newRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateRun starts a RUNNING run.
func (s *BadgerStore) CreateRun(ctx context.Context, experiment string) (*Run, error) {
	run := &Run{
		ID:         newRunID(),
		Experiment: experiment,
		Status:     StatusRunning,
		StartTime:  s.now().UTC(),
		Params:     map[string]string{},
		Metrics:    map[string]float64{},
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return putRun(txn, run)
	})
	metrics.RecordArtifactOp("create_run", err)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun sets the terminal status and end time.
func (s *BadgerStore) FinishRun(ctx context.Context, runID string, status RunStatus) error {
	err := s.updateRun(runID, func(r *Run) {
		end := s.now().UTC()
		r.Status = status
		r.EndTime = &end
	})
	metrics.RecordArtifactOp("finish_run", err)
	return err
}

// LogParams merges params into the run.
func (s *BadgerStore) LogParams(ctx context.Context, runID string, params map[string]string) error {
	err := s.updateRun(runID, func(r *Run) {
		if r.Params == nil {
			r.Params = make(map[string]string, len(params))
		}
		for k, v := range params {
			r.Params[k] = v
		}
	})
	metrics.RecordArtifactOp("log_params", err)
	return err
}

// LogMetrics merges values into the run.
func (s *BadgerStore) LogMetrics(ctx context.Context, runID string, values map[string]float64) error {
	err := s.updateRun(runID, func(r *Run) {
		if r.Metrics == nil {
			r.Metrics = make(map[string]float64, len(values))
		}
		for k, v := range values {
			r.Metrics[k] = v
		}
	})
	metrics.RecordArtifactOp("log_metrics", err)
	return err
}

// PutArtifact stores data under the run. The run must exist.
func (s *BadgerStore) PutArtifact(ctx context.Context, runID, name string, data []byte) error {
	if name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := getRun(txn, runID); err != nil {
			return err
		}
		return txn.Set(artifactKey(runID, name), data)
	})
	metrics.RecordArtifactOp("put_artifact", err)
	return err
}

// GetArtifact returns a copy of the stored bytes.
func (s *BadgerStore) GetArtifact(ctx context.Context, runID, name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(artifactKey(runID, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("artifact %s/%s: %w", runID, name, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get artifact: %w", err)
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	metrics.RecordArtifactOp("get_artifact", err)
	return data, err
}

// ListArtifacts lists the run's artifacts sorted by name.
func (s *BadgerStore) ListArtifacts(ctx context.Context, runID string) ([]ArtifactInfo, error) {
	var out []ArtifactInfo
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := getRun(txn, runID); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := artifactKey(runID, "")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			out = append(out, ArtifactInfo{
				Path:     string(item.Key()[len(prefix):]),
				FileSize: item.ValueSize(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// GetRun returns one run.
func (s *BadgerStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run *Run
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		run, err = getRun(txn, runID)
		return err
	})
	return run, err
}

// ListRuns returns up to limit runs of experiment, newest first. limit <= 0
// means no limit.
func (s *BadgerStore) ListRuns(ctx context.Context, experiment string, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(runKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r Run
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode run: %w", err)
			}
			if experiment == "" || r.Experiment == experiment {
				runs = append(runs, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// LatestFinishedRun returns the newest FINISHED run of experiment.
func (s *BadgerStore) LatestFinishedRun(ctx context.Context, experiment string) (*Run, error) {
	runs, err := s.ListRuns(ctx, experiment, 0)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Status == StatusFinished {
			return &runs[i], nil
		}
	}
	return nil, fmt.Errorf("finished run in %q: %w", experiment, ErrNotFound)
}

func (s *BadgerStore) updateRun(runID string, mutate func(*Run)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		run, err := getRun(txn, runID)
		if err != nil {
			return err
		}
		mutate(run)
		return putRun(txn, run)
	})
}

func getRun(txn *badger.Txn, runID string) (*Run, error) {
	item, err := txn.Get(runKey(runID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var run Run
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &run)
	}); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}

func putRun(txn *badger.Txn, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := txn.Set(runKey(run.ID), data); err != nil {
		return fmt.Errorf("set run: %w", err)
	}
	return nil
}
