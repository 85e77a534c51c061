// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package config

import (
	"fmt"
	"net/url"
	"time"
)

// maxBulkPostcodes is the postcodes.io bulk endpoint limit.
const maxBulkPostcodes = 100

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validatePostcode,
		c.validateArtifacts,
		c.validateServing,
		c.validateTraining,
		c.validateRateLimits,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("SERVER_TIMEOUT must be positive")
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{"json": true, "console": true}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

func (c *Config) validatePostcode() error {
	p := c.Postcode
	if p.BaseURL == "" {
		return fmt.Errorf("POSTCODE_URL is required")
	}
	if err := validateHTTPURL(p.BaseURL, "POSTCODE_URL"); err != nil {
		return err
	}
	if p.ChunkSize < 1 || p.ChunkSize > maxBulkPostcodes {
		return fmt.Errorf("POSTCODE_CHUNK_SIZE must be between 1 and %d", maxBulkPostcodes)
	}
	if p.Concurrency < 1 {
		return fmt.Errorf("POSTCODE_CONCURRENCY must be at least 1")
	}
	if p.MaxRounds < 1 {
		return fmt.Errorf("POSTCODE_MAX_ROUNDS must be at least 1")
	}
	if p.BackoffBase < 0 {
		return fmt.Errorf("POSTCODE_BACKOFF_BASE must not be negative")
	}
	if p.ChunkTimeout <= 0 || p.LookupTimeout <= 0 {
		return fmt.Errorf("POSTCODE_CHUNK_TIMEOUT and POSTCODE_LOOKUP_TIMEOUT must be positive")
	}
	if p.RequestsPerSecond < 0 {
		return fmt.Errorf("POSTCODE_RATE_LIMIT must not be negative")
	}
	if p.RequestsPerSecond > 0 && p.Burst < 1 {
		return fmt.Errorf("POSTCODE_RATE_BURST must be at least 1 when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateArtifacts() error {
	a := c.Artifacts
	if !a.InMemory && a.StorePath == "" {
		return fmt.Errorf("ARTIFACT_STORE_PATH is required unless ARTIFACT_STORE_MEMORY is set")
	}
	if a.ExperimentName == "" {
		return fmt.Errorf("EXPERIMENT_NAME is required")
	}
	if a.ModelArtifact == "" {
		return fmt.Errorf("MODEL_ARTIFACT_PATH is required")
	}
	if a.LookupArtifact == "" {
		return fmt.Errorf("LOOKUP_TABLE_ARTIFACT is required")
	}
	return nil
}

func (c *Config) validateServing() error {
	if c.Serving.BandRatio <= 0 || c.Serving.BandRatio >= 1 {
		return fmt.Errorf("CONFIDENCE_BAND must be between 0 and 1 (exclusive)")
	}
	if c.Serving.RefreshInterval < time.Second {
		return fmt.Errorf("RUN_REFRESH_INTERVAL must be at least 1s")
	}
	return nil
}

func (c *Config) validateTraining() error {
	t := c.Training
	if t.Cleaning.PriceClipQ < 0 || t.Cleaning.PriceClipQ > 1 {
		return fmt.Errorf("PRICE_CLIP_QUANTILE must be between 0 and 1")
	}
	if t.Features.DropNicheThreshold < 0 {
		return fmt.Errorf("DROP_NICHE_THRESHOLD must not be negative")
	}
	if t.Features.UseDistrict && t.Features.DistrictCol == "" {
		return fmt.Errorf("training.features.district_col is required when use_district is set")
	}

	m := t.Model
	if m.Iterations < 1 {
		return fmt.Errorf("TRAIN_ITERATIONS must be at least 1")
	}
	if m.Depth < 1 || m.Depth > 16 {
		return fmt.Errorf("TRAIN_DEPTH must be between 1 and 16")
	}
	if m.LearningRate <= 0 || m.LearningRate > 1 {
		return fmt.Errorf("TRAIN_LEARNING_RATE must be in (0, 1]")
	}
	if m.EarlyStop < 0 {
		return fmt.Errorf("TRAIN_EARLY_STOP must not be negative")
	}
	if m.ClipTargetQ < 0 || m.ClipTargetQ > 1 {
		return fmt.Errorf("training.model.clip_target_quantile must be between 0 and 1")
	}
	if m.TestSize <= 0 || m.ValSize <= 0 || m.TestSize+m.ValSize >= 1 {
		return fmt.Errorf("training.model test_size and val_size must be positive and sum below 1")
	}
	if m.MinLeafSamples < 1 {
		return fmt.Errorf("training.model.min_leaf_samples must be at least 1")
	}

	if t.Augment.MinMatchRate < 0 || t.Augment.MinMatchRate > 1 {
		return fmt.Errorf("AUGMENT_MIN_MATCH must be between 0 and 1")
	}
	return nil
}

const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// validateHTTPURL accepts http(s) base URLs with a host and no path or query.
func validateHTTPURL(rawURL, fieldName string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("%s should be base URL only, remove path: %s", fieldName, parsed.Path)
	}
	if parsed.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsed.RawQuery)
	}
	return nil
}
