// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package postcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pricecast/internal/config"
)

// MaxBulkPostcodes is the postcodes.io per-call limit for bulk lookups.
const MaxBulkPostcodes = 100

// DefaultUserAgent identifies this client to postcodes.io.
const DefaultUserAgent = "LondonHousing/0.1"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

var (
	// ErrNoEndpoint is a configuration error: no base URL was given.
	ErrNoEndpoint = errors.New("postcode service endpoint not configured")

	// ErrRateLimited is returned for HTTP 429 responses.
	ErrRateLimited = errors.New("postcode service rate limited")
)

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("postcode service returned status %d", e.Code)
}

// ChunkResult is the outcome of one successful bulk call.
type ChunkResult struct {
	// Resolved maps normalized postcode to admin district.
	Resolved map[string]string

	// Missing lists keys the service answered for without a district.
	Missing []string
}

// Transport is the wire boundary of the resolver. Client implements it
// against postcodes.io; tests use stubs.
type Transport interface {
	// Bulk resolves up to MaxBulkPostcodes keys in one call. An error means
	// the whole chunk is unresolved.
	Bulk(ctx context.Context, keys []string) (ChunkResult, error)

	// Lookup resolves one key. ok is false when the service has no
	// district for it; err is reserved for transport failures.
	Lookup(ctx context.Context, key string) (district string, ok bool, err error)
}

// Client talks to postcodes.io.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
	cb        *gobreaker.CircuitBreaker[any]
}

// NewClient builds a client from cfg. httpClient may be nil.
func NewClient(cfg *config.PostcodeConfig, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrNoEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	c := &Client{
		http:      httpClient,
		baseURL:   base,
		userAgent: ua,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.CircuitBreaker {
		c.cb = newBreaker()
	}
	return c, nil
}

type bulkRequest struct {
	Postcodes []string `json:"postcodes"`
}

type postcodeResult struct {
	AdminDistrict *string `json:"admin_district"`
}

type bulkResponse struct {
	Status int `json:"status"`
	Result []struct {
		Query  string          `json:"query"`
		Result *postcodeResult `json:"result"`
	} `json:"result"`
}

type singleResponse struct {
	Status int             `json:"status"`
	Result *postcodeResult `json:"result"`
}

// Bulk implements Transport.
func (c *Client) Bulk(ctx context.Context, keys []string) (ChunkResult, error) {
	if len(keys) > MaxBulkPostcodes {
		return ChunkResult{}, fmt.Errorf("bulk lookup of %d postcodes exceeds limit %d", len(keys), MaxBulkPostcodes)
	}
	body, err := json.Marshal(bulkRequest{Postcodes: keys})
	if err != nil {
		return ChunkResult{}, fmt.Errorf("encode bulk request: %w", err)
	}

	var resp bulkResponse
	err = c.guard(ctx, func() error {
		return c.do(ctx, http.MethodPost, c.baseURL+"/postcodes", body, &resp)
	})
	if err != nil {
		return ChunkResult{}, err
	}

	requested := make(map[string]bool, len(keys))
	for _, k := range keys {
		requested[k] = true
	}

	out := ChunkResult{Resolved: make(map[string]string, len(keys))}
	answered := make(map[string]bool, len(resp.Result))
	for _, row := range resp.Result {
		key := Normalize(row.Query)
		if !requested[key] || answered[key] {
			continue
		}
		answered[key] = true
		if d, ok := districtOf(row.Result); ok {
			out.Resolved[key] = d
		} else {
			out.Missing = append(out.Missing, key)
		}
	}
	for _, k := range keys {
		if !answered[k] {
			out.Missing = append(out.Missing, k)
		}
	}
	return out, nil
}

// Lookup implements Transport. A 404 is a not-found answer, not an error.
func (c *Client) Lookup(ctx context.Context, key string) (string, bool, error) {
	var resp singleResponse
	notFound := false
	err := c.guard(ctx, func() error {
		err := c.do(ctx, http.MethodGet, c.baseURL+"/postcodes/"+url.PathEscape(key), nil, &resp)
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			notFound = true
			return nil
		}
		return err
	})
	if err != nil {
		return "", false, err
	}
	if notFound {
		return "", false, nil
	}
	d, ok := districtOf(resp.Result)
	return d, ok, nil
}

// districtOf treats a missing result object, a missing field and an empty
// district the same way: not found.
func districtOf(r *postcodeResult) (string, bool) {
	if r == nil || r.AdminDistrict == nil {
		return "", false
	}
	d := strings.TrimSpace(*r.AdminDistrict)
	return d, d != ""
}

// guard applies the rate limiter and the circuit breaker around fn.
func (c *Client) guard(ctx context.Context, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	if c.cb == nil {
		return fn()
	}
	_, err := c.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	recordBreakerResult(err)
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var rdr io.Reader = http.NoBody
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query postcodes.io: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return &StatusError{Code: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode postcodes.io response: %w", err)
	}
	return nil
}
