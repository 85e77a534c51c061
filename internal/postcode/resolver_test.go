// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package postcode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/pricecast/internal/config"
)

type stubTransport struct {
	mu          sync.Mutex
	calls       [][]string
	inflight    int
	maxInflight int
	delay       time.Duration

	bulk    func(call int, keys []string) (ChunkResult, error)
	lookups atomic.Int32
	lookup  func(key string) (string, bool, error)
}

func (s *stubTransport) Bulk(ctx context.Context, keys []string) (ChunkResult, error) {
	s.mu.Lock()
	call := len(s.calls)
	s.calls = append(s.calls, append([]string(nil), keys...))
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ChunkResult{}, ctx.Err()
		}
	}
	if s.bulk != nil {
		return s.bulk(call, keys)
	}
	out := ChunkResult{Resolved: make(map[string]string)}
	for _, k := range keys {
		out.Resolved[k] = "D-" + k
	}
	return out, nil
}

func (s *stubTransport) Lookup(_ context.Context, key string) (string, bool, error) {
	s.lookups.Add(1)
	if s.lookup != nil {
		return s.lookup(key)
	}
	return "D-" + key, true, nil
}

func testConfig() *config.PostcodeConfig {
	return &config.PostcodeConfig{
		ChunkSize:     100,
		Concurrency:   10,
		MaxRounds:     3,
		BackoffBase:   0,
		ChunkTimeout:  time.Second,
		LookupTimeout: time.Second,
	}
}

func postcodes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("n%d 1aa", i)
	}
	return out
}

func TestResolveMany_ChunksFirstRound(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{}
	r := NewResolver(testConfig(), stub)

	resolved, failed, err := r.ResolveMany(context.Background(), postcodes(250))
	if err != nil {
		t.Fatal(err)
	}
	if len(stub.calls) != 3 {
		t.Fatalf("chunk calls = %d, want 3", len(stub.calls))
	}
	sizes := []int{len(stub.calls[0]), len(stub.calls[1]), len(stub.calls[2])}
	sort.Ints(sizes)
	if sizes[0] != 50 || sizes[1] != 100 || sizes[2] != 100 {
		t.Errorf("chunk sizes = %v, want [50 100 100]", sizes)
	}
	if len(resolved) != 250 || len(failed) != 0 {
		t.Errorf("resolved = %d, failed = %d", len(resolved), len(failed))
	}
	if resolved["N01AA"] != "D-N01AA" {
		t.Errorf("keys should be normalized, got %v", resolved["N01AA"])
	}
}

func TestResolveMany_NormalizesAndDedupes(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{}
	r := NewResolver(testConfig(), stub)

	resolved, _, err := r.ResolveMany(context.Background(), []string{"sw1a 1aa", "SW1A1AA", " ", "Sw1A 1Aa "})
	if err != nil {
		t.Fatal(err)
	}
	if len(stub.calls) != 1 || len(stub.calls[0]) != 1 || stub.calls[0][0] != "SW1A1AA" {
		t.Errorf("calls = %v", stub.calls)
	}
	if len(resolved) != 1 {
		t.Errorf("resolved = %v", resolved)
	}
}

func TestResolveMany_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{delay: 20 * time.Millisecond}
	cfg := testConfig()
	cfg.ChunkSize = 1
	r := NewResolver(cfg, stub)

	if _, _, err := r.ResolveMany(context.Background(), postcodes(35)); err != nil {
		t.Fatal(err)
	}
	if stub.maxInflight > 10 {
		t.Errorf("max in-flight = %d, want <= 10", stub.maxInflight)
	}
	if len(stub.calls) != 35 {
		t.Errorf("calls = %d, want 35", len(stub.calls))
	}
}

func TestResolveMany_RetriesFailedChunks(t *testing.T) {
	t.Parallel()

	var round atomic.Int32
	stub := &stubTransport{}
	stub.bulk = func(_ int, keys []string) (ChunkResult, error) {
		// Every call of the first two rounds fails; the single-chunk
		// wave makes call index equal to round index.
		if round.Add(1) <= 2 {
			return ChunkResult{}, ErrRateLimited
		}
		out := ChunkResult{Resolved: make(map[string]string)}
		for _, k := range keys {
			out.Resolved[k] = "Camden"
		}
		return out, nil
	}

	var waits []int
	r := NewResolver(testConfig(), stub, WithBackoff(func(attempt int) time.Duration {
		waits = append(waits, attempt)
		return 0
	}))

	resolved, failed, err := r.ResolveMany(context.Background(), []string{"A1", "B2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Errorf("failed = %v, want empty", failed)
	}
	if resolved["A1"] != "Camden" || resolved["B2"] != "Camden" {
		t.Errorf("resolved = %v", resolved)
	}
	if len(stub.calls) != 3 || len(waits) != 2 {
		t.Errorf("calls = %d, waits = %v", len(stub.calls), waits)
	}
}

func TestResolveMany_PartialAndFailed(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{}
	stub.bulk = func(_ int, keys []string) (ChunkResult, error) {
		out := ChunkResult{Resolved: make(map[string]string)}
		for _, k := range keys {
			switch k {
			case "GONE1":
				out.Missing = append(out.Missing, k)
			case "DOWN1":
				return ChunkResult{}, errors.New("boom")
			default:
				out.Resolved[k] = "Hackney"
			}
		}
		return out, nil
	}
	cfg := testConfig()
	cfg.ChunkSize = 1
	r := NewResolver(cfg, stub)

	resolved, failed, err := r.ResolveMany(context.Background(), []string{"E8 1AA", "GONE1", "DOWN1"})
	if err != nil {
		t.Fatal(err)
	}
	if resolved["E81AA"] != "Hackney" || len(resolved) != 1 {
		t.Errorf("resolved = %v", resolved)
	}
	if len(failed) != 2 || failed[0] != "DOWN1" || failed[1] != "GONE1" {
		t.Errorf("failed = %v, want [DOWN1 GONE1]", failed)
	}
	// E81AA once, GONE1 once, DOWN1 three times.
	if len(stub.calls) != 5 {
		t.Errorf("calls = %d, want 5", len(stub.calls))
	}
}

func TestResolveOne_CachesFoundAndNotFound(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{lookup: func(key string) (string, bool, error) {
		if key == "ZZ99ZZ" {
			return "", false, nil
		}
		return "City of London", true, nil
	}}
	r := NewResolver(testConfig(), stub)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d, ok := r.ResolveOne(ctx, "ec1a 1bb"); !ok || d != "City of London" {
			t.Fatalf("ResolveOne() = %q, %v", d, ok)
		}
		if _, ok := r.ResolveOne(ctx, "ZZ99 ZZ"); ok {
			t.Fatal("expected not found")
		}
	}
	if n := stub.lookups.Load(); n != 2 {
		t.Errorf("lookups = %d, want 2", n)
	}
	if r.Cache().Len() != 2 {
		t.Errorf("cache size = %d, want 2", r.Cache().Len())
	}
}

func TestResolveOne_TransportErrorNotCached(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	stub := &stubTransport{lookup: func(string) (string, bool, error) {
		if fail.Load() {
			return "", false, errors.New("timeout")
		}
		return "Islington", true, nil
	}}
	r := NewResolver(testConfig(), stub)

	if _, ok := r.ResolveOne(context.Background(), "N1 9GU"); ok {
		t.Fatal("expected none on transport error")
	}
	fail.Store(false)
	if d, ok := r.ResolveOne(context.Background(), "N1 9GU"); !ok || d != "Islington" {
		t.Errorf("ResolveOne() = %q, %v after recovery", d, ok)
	}
}

func TestResolveOne_EmptyInput(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{}
	r := NewResolver(testConfig(), stub)
	if _, ok := r.ResolveOne(context.Background(), "   "); ok {
		t.Error("empty postcode must not resolve")
	}
	if stub.lookups.Load() != 0 {
		t.Error("empty postcode must not reach the transport")
	}
}

func TestResolveOne_CollapsesConcurrentMisses(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	stub := &stubTransport{lookup: func(string) (string, bool, error) {
		<-release
		return "Camden", true, nil
	}}
	r := NewResolver(testConfig(), stub)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, ok := r.ResolveOne(context.Background(), "NW1 8NP"); !ok || d != "Camden" {
				t.Errorf("ResolveOne() = %q, %v", d, ok)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := stub.lookups.Load(); n != 1 {
		t.Errorf("lookups = %d, want 1", n)
	}
}
