// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package postcode

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/pricecast/internal/config"
	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/metrics"
)

// Resolver maps postcodes to districts. It is safe for concurrent use and
// is meant to be shared by the whole process so its cache is too.
type Resolver struct {
	transport Transport
	cache     *Cache
	group     singleflight.Group

	chunkSize     int
	concurrency   int
	rounds        RoundConfig
	chunkTimeout  time.Duration
	lookupTimeout time.Duration
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithCache shares an existing cache.
func WithCache(c *Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithBackoff overrides the between-round wait.
func WithBackoff(fn func(int) time.Duration) Option {
	return func(r *Resolver) { r.rounds.Backoff = fn }
}

// NewResolver builds a resolver over t using the limits in cfg.
func NewResolver(cfg *config.PostcodeConfig, t Transport, opts ...Option) *Resolver {
	r := &Resolver{
		transport:     t,
		cache:         NewCacheSize(cfg.CacheSize, cfg.CacheTTL),
		chunkSize:     cfg.ChunkSize,
		concurrency:   cfg.Concurrency,
		chunkTimeout:  cfg.ChunkTimeout,
		lookupTimeout: cfg.LookupTimeout,
		rounds: RoundConfig{
			MaxRounds: cfg.MaxRounds,
			Backoff:   ExponentialBackoff(cfg.BackoffBase),
		},
	}
	if r.chunkSize <= 0 || r.chunkSize > MaxBulkPostcodes {
		r.chunkSize = MaxBulkPostcodes
	}
	if r.concurrency <= 0 {
		r.concurrency = 1
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// New builds a Resolver backed by a postcodes.io Client.
func New(cfg *config.PostcodeConfig, opts ...Option) (*Resolver, error) {
	c, err := NewClient(cfg, nil)
	if err != nil {
		return nil, err
	}
	return NewResolver(cfg, c, opts...), nil
}

// Cache exposes the single-lookup cache.
func (r *Resolver) Cache() *Cache { return r.cache }

// ResolveMany resolves every postcode it can. Keys in the returned map and
// failed list are normalized; empty inputs are skipped. Lookup failures are
// reported through failed, never through err; err is non-nil only when ctx
// ends first, and the partial result is returned with it.
func (r *Resolver) ResolveMany(ctx context.Context, postcodes []string) (map[string]string, []string, error) {
	todo := normalizeAll(postcodes)
	log := logging.Ctx(ctx)

	st, err := RunRounds(ctx, todo, r.rounds, func(ctx context.Context, round int, pending []string) (map[string]string, []string) {
		resolved, missing := r.wave(ctx, pending)
		log.Info().
			Int("round", round+1).
			Int("attempted", len(pending)).
			Int("resolved", len(resolved)).
			Int("no_district", len(missing)).
			Msg("postcode resolution round complete")
		return resolved, missing
	})

	metrics.RecordResolution(st.Rounds, len(st.Resolved), len(st.Failed))
	log.Info().
		Int("unique", len(todo)).
		Int("resolved", len(st.Resolved)).
		Int("failed", len(st.Failed)).
		Int("rounds", st.Rounds).
		Msg("postcode resolution complete")
	return st.Resolved, st.Failed, err
}

// wave dispatches every chunk of pending with at most r.concurrency calls in
// flight and waits for all of them.
func (r *Resolver) wave(ctx context.Context, pending []string) (map[string]string, []string) {
	var (
		mu       sync.Mutex
		resolved = make(map[string]string, len(pending))
		missing  []string
	)

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, keys := range chunk(pending, r.chunkSize) {
		g.Go(func() error {
			res, err := r.callChunk(ctx, keys)
			if err != nil {
				logging.Ctx(ctx).Warn().Err(err).Int("keys", len(keys)).Msg("postcode chunk failed")
				return nil
			}
			mu.Lock()
			for k, v := range res.Resolved {
				resolved[k] = v
			}
			missing = append(missing, res.Missing...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return resolved, missing
}

func (r *Resolver) callChunk(ctx context.Context, keys []string) (ChunkResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.chunkTimeout)
	defer cancel()

	start := time.Now()
	res, err := r.transport.Bulk(ctx, keys)
	metrics.RecordChunkCall(time.Since(start), err)
	return res, err
}

// ResolveOne returns the district for one postcode. Any failure yields
// ok=false. Resolved and not-found outcomes are cached; transport errors
// are not, so a later request may succeed. Concurrent misses for the same
// key share one outbound call.
func (r *Resolver) ResolveOne(ctx context.Context, raw string) (district string, ok bool) {
	key := Normalize(raw)
	if key == "" {
		return "", false
	}

	if d, found, hit := r.cache.Get(key); hit {
		metrics.PostcodeLookupCache.WithLabelValues("hit").Inc()
		return d, found
	}
	metrics.PostcodeLookupCache.WithLabelValues("miss").Inc()

	v, _, _ := r.group.Do(key, func() (any, error) {
		if d, found, hit := r.cache.Get(key); hit {
			return cacheEntry{district: d, ok: found}, nil
		}

		// Detached from the first caller so its cancellation does not fail
		// callers that joined the flight.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupTimeout)
		defer cancel()

		start := time.Now()
		d, found, err := r.transport.Lookup(lctx, key)
		metrics.PostcodeLookupDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("postcode", key).Msg("postcode lookup failed")
			return cacheEntry{}, nil
		}
		r.cache.Put(key, d, found)
		return cacheEntry{district: d, ok: found}, nil
	})

	e, _ := v.(cacheEntry)
	return e.district, e.ok
}
