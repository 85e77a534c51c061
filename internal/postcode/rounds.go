// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package postcode

import (
	"context"
	"sort"
	"time"
)

// RoundConfig bounds the retry protocol.
type RoundConfig struct {
	// MaxRounds is the number of attempts per key, including the first.
	MaxRounds int

	// Backoff returns the wait after the given zero-based round.
	Backoff func(attempt int) time.Duration
}

// ExponentialBackoff returns base * 2^attempt.
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << uint(attempt)
	}
}

// AttemptFunc runs one round over todo. It returns the keys it resolved and
// the keys that are definitively unresolvable. Keys in neither are retried.
type AttemptFunc func(ctx context.Context, round int, todo []string) (resolved map[string]string, failed []string)

// RoundState is the outcome of RunRounds.
type RoundState struct {
	Resolved map[string]string
	Failed   []string
	Rounds   int
}

// RunRounds drives attempt until every key is resolved or failed, or
// MaxRounds is reached. A round starts only after the previous one has
// returned, and the backoff sleep happens only between rounds. Keys left
// over after the last round are added to Failed, which is sorted. The only
// error is ctx's, in which case the partial state is still returned.
func RunRounds(ctx context.Context, todo []string, cfg RoundConfig, attempt AttemptFunc) (RoundState, error) {
	st := RoundState{Resolved: make(map[string]string, len(todo))}
	failed := make(map[string]struct{})

	pending := append([]string(nil), todo...)
	maxRounds := cfg.MaxRounds
	if maxRounds < 1 {
		maxRounds = 1
	}

	var err error
	for round := 0; round < maxRounds && len(pending) > 0; round++ {
		if err = ctx.Err(); err != nil {
			break
		}
		st.Rounds++

		resolved, gaveUp := attempt(ctx, round, pending)
		for k, v := range resolved {
			st.Resolved[k] = v
		}
		for _, k := range gaveUp {
			failed[k] = struct{}{}
		}

		next := pending[:0:0]
		for _, k := range pending {
			if _, ok := st.Resolved[k]; ok {
				continue
			}
			if _, ok := failed[k]; ok {
				continue
			}
			next = append(next, k)
		}
		pending = next

		if len(pending) == 0 || round == maxRounds-1 || cfg.Backoff == nil {
			continue
		}
		if err = sleep(ctx, cfg.Backoff(round)); err != nil {
			break
		}
	}

	for _, k := range pending {
		failed[k] = struct{}{}
	}
	st.Failed = make([]string, 0, len(failed))
	for k := range failed {
		st.Failed = append(st.Failed, k)
	}
	sort.Strings(st.Failed)
	return st, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
