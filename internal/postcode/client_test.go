// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package postcode

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pricecast/internal/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/postcodes":
			var body struct {
				Postcodes []string `json:"postcodes"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if len(body.Postcodes) > 0 && body.Postcodes[0] == "LIMIT" {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = io.WriteString(w, `{"status":200,"result":[
				{"query":"EC1A1BB","result":{"postcode":"EC1A 1BB","admin_district":"City of London"}},
				{"query":"ZZ99ZZ","result":null},
				{"query":"XX11XX","result":{"postcode":"XX1 1XX","admin_district":null}}
			]}`)

		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/postcodes/"):
			switch strings.TrimPrefix(r.URL.Path, "/postcodes/") {
			case "EC1A1BB":
				_, _ = io.WriteString(w, `{"status":200,"result":{"admin_district":"City of London"}}`)
			case "FAIL":
				w.WriteHeader(http.StatusBadGateway)
			default:
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"status":404,"error":"Postcode not found"}`)
			}

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	c, err := NewClient(&config.PostcodeConfig{BaseURL: url + "/"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClientBulk(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	res, err := c.Bulk(context.Background(), []string{"EC1A1BB", "ZZ99ZZ", "XX11XX", "UNANSWERED"})
	if err != nil {
		t.Fatalf("Bulk() error = %v", err)
	}
	if res.Resolved["EC1A1BB"] != "City of London" || len(res.Resolved) != 1 {
		t.Errorf("Resolved = %v", res.Resolved)
	}
	sort.Strings(res.Missing)
	want := []string{"UNANSWERED", "XX11XX", "ZZ99ZZ"}
	if strings.Join(res.Missing, ",") != strings.Join(want, ",") {
		t.Errorf("Missing = %v, want %v", res.Missing, want)
	}
}

func TestClientBulk_RateLimited(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	if _, err := c.Bulk(context.Background(), []string{"LIMIT"}); !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
}

func TestClientBulk_TooManyKeys(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "http://127.0.0.1:1")
	if _, err := c.Bulk(context.Background(), make([]string, MaxBulkPostcodes+1)); err == nil {
		t.Error("expected error for oversized chunk")
	}
}

func TestClientLookup(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	d, ok, err := c.Lookup(ctx, "EC1A1BB")
	if err != nil || !ok || d != "City of London" {
		t.Errorf("Lookup(EC1A1BB) = %q, %v, %v", d, ok, err)
	}

	_, ok, err = c.Lookup(ctx, "ZZ99ZZ")
	if err != nil || ok {
		t.Errorf("Lookup(404) = ok %v, err %v; want not found without error", ok, err)
	}

	_, _, err = c.Lookup(ctx, "FAIL")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Errorf("Lookup(502) error = %v", err)
	}
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(&config.PostcodeConfig{}, nil); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("error = %v, want ErrNoEndpoint", err)
	}
	if _, err := New(&config.PostcodeConfig{BaseURL: "  "}); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("New() error = %v, want ErrNoEndpoint", err)
	}
}

func TestResolverOverHTTP(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	defer srv.Close()

	cfg := testConfig()
	cfg.BaseURL = srv.URL
	cfg.CircuitBreaker = true
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 10
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	resolved, failed, err := r.ResolveMany(context.Background(), []string{"ec1a 1bb", "zz99 zz"})
	if err != nil {
		t.Fatal(err)
	}
	if resolved["EC1A1BB"] != "City of London" {
		t.Errorf("resolved = %v", resolved)
	}
	if len(failed) != 1 || failed[0] != "ZZ99ZZ" {
		t.Errorf("failed = %v", failed)
	}

	if d, ok := r.ResolveOne(context.Background(), "EC1A 1BB"); !ok || d != "City of London" {
		t.Errorf("ResolveOne() = %q, %v", d, ok)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"sw1a 1aa":   "SW1A1AA",
		" E1\t6AN\n": "E16AN",
		"":           "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
	if Outcode("SW1A1AA") != "SW1A" || Incode("SW1A1AA") != "1AA" {
		t.Error("Outcode/Incode mismatch")
	}
}
