// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

/*
Package config loads and validates the typed configuration shared by the
training binary (cmd/train) and the prediction server (cmd/server).

Sources are layered with Koanf v2, later layers winning:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file (CONFIG_PATH, config.yaml, /etc/pricecast/config.yaml)
 3. Environment variables (see envMappings in koanf.go)

Every section is validated at load time, so a missing tracking root or an
out-of-range resolver setting fails startup instead of the first request.
*/
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Postcode  PostcodeConfig  `koanf:"postcode"`
	Artifacts ArtifactsConfig `koanf:"artifacts"`
	Database  DatabaseConfig  `koanf:"database"`
	Serving   ServingConfig   `koanf:"serving"`
	Training  TrainingConfig  `koanf:"training"`
	Security  SecurityConfig  `koanf:"security"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development, staging, production
}

// LoggingConfig mirrors logging.Config.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// PostcodeConfig configures the postcodes.io resolver.
//
// ChunkSize is capped at 100 by the bulk endpoint. Backoff between retry
// rounds is BackoffBase * 2^round.
type PostcodeConfig struct {
	BaseURL           string        `koanf:"base_url"`
	UserAgent         string        `koanf:"user_agent"`
	ChunkSize         int           `koanf:"chunk_size"`
	Concurrency       int           `koanf:"concurrency"`
	MaxRounds         int           `koanf:"max_rounds"`
	BackoffBase       time.Duration `koanf:"backoff_base"`
	ChunkTimeout      time.Duration `koanf:"chunk_timeout"`
	LookupTimeout     time.Duration `koanf:"lookup_timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"` // 0 disables client-side throttling
	Burst             int           `koanf:"burst"`
	CircuitBreaker    bool          `koanf:"circuit_breaker"`
	CacheSize         int           `koanf:"cache_size"` // single-lookup LRU capacity
	CacheTTL          time.Duration `koanf:"cache_ttl"`
}

// ArtifactsConfig locates the run registry and artifact blobs.
type ArtifactsConfig struct {
	// StorePath is the badger directory holding runs and artifacts.
	StorePath string `koanf:"store_path"`

	// InMemory keeps the store in memory; used by tests and dry runs.
	InMemory bool `koanf:"in_memory"`

	// FileRoot is the fallback layout <root>/<run_id>/artifacts/<name>.
	FileRoot string `koanf:"file_root"`

	ExperimentName string `koanf:"experiment_name"`
	ModelArtifact  string `koanf:"model_artifact"`
	LookupArtifact string `koanf:"lookup_artifact"`

	// LookupFile overrides the fallback file name tried after LookupArtifact.
	LookupFile string `koanf:"lookup_file"`
}

// DatabaseConfig holds DuckDB settings for the dataset cache.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// ServingConfig controls how the server binds to trained runs.
type ServingConfig struct {
	// RunID pins serving to one run instead of the latest finished run.
	RunID string `koanf:"run_id"`

	// RefreshInterval is how often the run watcher checks for a newer run.
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// BandRatio is the half-width of the confidence band as a fraction of the prediction.
	BandRatio float64 `koanf:"band_ratio"`
}

// TrainingConfig groups the offline pipeline settings.
type TrainingConfig struct {
	Cleaning CleaningConfig `koanf:"cleaning"`
	Features FeatureConfig  `koanf:"features"`
	Model    ModelConfig    `koanf:"model"`
	Augment  AugmentConfig  `koanf:"augment"`

	// DevMode drops the dataset cache before every run.
	DevMode bool `koanf:"dev_mode"`
}

// CleaningConfig names the raw columns and the outlier clip.
type CleaningConfig struct {
	PostcodeCol   string  `koanf:"postcode_col"`
	PriceCol      string  `koanf:"price_col"`
	DateCol       string  `koanf:"date_col"`
	PriceClipQ    float64 `koanf:"price_clip_quantile"` // 0 disables clipping
	DropMissingPC bool    `koanf:"drop_missing_postcode"`
}

// FeatureConfig drives district resolution and category cleanup.
type FeatureConfig struct {
	UseDistrict        bool     `koanf:"use_district"`
	DistrictCol        string   `koanf:"district_col"`
	DropNicheThreshold int      `koanf:"drop_niche_threshold"`
	CityCol            string   `koanf:"city_col"`
	FilterKeywords     []string `koanf:"filter_keywords"`

	// MergeCategories maps a record column to merge targets and the values
	// folded into each, e.g. property_type: {F: [O]}.
	MergeCategories map[string]map[string][]string `koanf:"merge_categories"`
}

// ModelConfig holds the boosted tree hyperparameters.
type ModelConfig struct {
	Iterations     int     `koanf:"iterations"`
	Depth          int     `koanf:"depth"`
	LearningRate   float64 `koanf:"learning_rate"`
	EarlyStop      int     `koanf:"early_stop"`
	LogTarget      bool    `koanf:"log_target"`
	ClipTargetQ    float64 `koanf:"clip_target_quantile"`
	TestSize       float64 `koanf:"test_size"`
	ValSize        float64 `koanf:"val_size"`
	RandomState    uint64  `koanf:"random_state"`
	MinLeafSamples int     `koanf:"min_leaf_samples"`
}

// AugmentConfig configures the optional floor-area merge.
type AugmentConfig struct {
	MergeKey     string  `koanf:"merge_key"`
	MinMatchRate float64 `koanf:"min_match_rate"`
}

// SecurityConfig holds the browser-facing protections.
type SecurityConfig struct {
	CORSOrigins          []string      `koanf:"cors_origins"`
	CORSAllowCredentials bool          `koanf:"cors_allow_credentials"`
	RateLimitReqs        int           `koanf:"rate_limit_requests"`
	RateLimitWindow      time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled    bool          `koanf:"rate_limit_disabled"`
}

// Load reads configuration from defaults, the optional config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
