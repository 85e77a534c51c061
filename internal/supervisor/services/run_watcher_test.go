// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/pricecast/internal/serving"
)

// scriptedWarmer returns the scripted results in order, repeating the last.
type scriptedWarmer struct {
	mu      sync.Mutex
	results []warmResult
	calls   int
}

type warmResult struct {
	runID string
	err   error
}

func (w *scriptedWarmer) Warmup(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.calls
	if i >= len(w.results) {
		i = len(w.results) - 1
	}
	w.calls++
	return w.results[i].runID, w.results[i].err
}

func (w *scriptedWarmer) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func TestRunWatcher_Check(t *testing.T) {
	t.Parallel()

	w := &scriptedWarmer{results: []warmResult{
		{err: serving.ErrNoRun},
		{runID: "run-a"},
		{runID: "run-b", err: errors.New("model.json: not found")},
		{runID: "run-b"},
	}}
	svc := NewRunWatcherService(w, time.Hour)
	ctx := context.Background()

	want := []string{"", "run-a", "run-a", "run-b"}
	for i, id := range want {
		svc.check(ctx)
		if got := svc.LastRunID(); got != id {
			t.Errorf("after check %d: LastRunID = %q, want %q", i+1, got, id)
		}
	}
}

func TestRunWatcher_ServeTicks(t *testing.T) {
	t.Parallel()

	w := &scriptedWarmer{results: []warmResult{{runID: "run-a"}}}
	svc := NewRunWatcherService(w, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for w.callCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if w.callCount() < 3 {
		t.Errorf("Warmup calls = %d, want at least 3", w.callCount())
	}
	if svc.LastRunID() != "run-a" {
		t.Errorf("LastRunID = %q", svc.LastRunID())
	}
}

func TestRunWatcher_Defaults(t *testing.T) {
	t.Parallel()

	svc := NewRunWatcherService(&scriptedWarmer{}, 0)
	if svc.interval != time.Minute || svc.String() != "run-watcher" {
		t.Errorf("defaults = %v %q", svc.interval, svc.String())
	}
}
