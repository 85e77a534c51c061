// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config files searched in order. The first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/pricecast/config.yaml",
	"/etc/pricecast/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8000,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Postcode: PostcodeConfig{
			BaseURL:           "https://api.postcodes.io",
			UserAgent:         "LondonHousing/0.1",
			ChunkSize:         100,
			Concurrency:       10,
			MaxRounds:         3,
			BackoffBase:       time.Second,
			ChunkTimeout:      30 * time.Second,
			LookupTimeout:     10 * time.Second,
			RequestsPerSecond: 8, // roughly one wave per 120ms
			Burst:             10,
			CircuitBreaker:    true,
			CacheSize:         50000,
			CacheTTL:          24 * time.Hour,
		},
		Artifacts: ArtifactsConfig{
			StorePath:      "/data/runs",
			FileRoot:       "/data/mlruns",
			ExperimentName: "LondonHousingAI",
			ModelArtifact:  "price_model.json",
			LookupArtifact: "lookup_tables.json",
		},
		Database: DatabaseConfig{
			Path:      "/data/pricecast.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Serving: ServingConfig{
			RefreshInterval: time.Minute,
			BandRatio:       0.10,
		},
		Training: TrainingConfig{
			Cleaning: CleaningConfig{
				PostcodeCol:   "postcode",
				PriceCol:      "price",
				DateCol:       "date",
				PriceClipQ:    0.99,
				DropMissingPC: true,
			},
			Features: FeatureConfig{
				UseDistrict:        true,
				DistrictCol:        "district",
				DropNicheThreshold: 10,
				CityCol:            "town_city",
				FilterKeywords:     []string{"london"},
			},
			Model: ModelConfig{
				Iterations:     4000,
				Depth:          8,
				LearningRate:   0.05,
				EarlyStop:      200,
				LogTarget:      true,
				ClipTargetQ:    0.99,
				TestSize:       0.15,
				ValSize:        0.15,
				RandomState:    42,
				MinLeafSamples: 5,
			},
			Augment: AugmentConfig{
				MergeKey:     "postcode",
				MinMatchRate: 0.5,
			},
		},
		Security: SecurityConfig{
			CORSOrigins:          []string{"http://localhost:5173"},
			CORSAllowCredentials: true,
			RateLimitReqs:        100,
			RateLimitWindow:      time.Minute,
		},
	}
}

// LoadWithKoanf loads configuration with layered sources (env > file > defaults),
// post-processes comma separated slices and validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, POSTCODE_MAX_ROUNDS -> postcode.max_rounds, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma separated strings when set via env.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"training.features.filter_keywords",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// The MLFLOW_* names are accepted for deployments migrating from the
// tracking-server layout.
var envMappings = map[string]string{
	"http_port":      "server.port",
	"http_host":      "server.host",
	"server_timeout": "server.timeout",
	"environment":    "server.environment",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"postcode_url":             "postcode.base_url",
	"postcode_user_agent":      "postcode.user_agent",
	"postcode_chunk_size":      "postcode.chunk_size",
	"postcode_concurrency":     "postcode.concurrency",
	"postcode_max_rounds":      "postcode.max_rounds",
	"postcode_backoff_base":    "postcode.backoff_base",
	"postcode_chunk_timeout":   "postcode.chunk_timeout",
	"postcode_lookup_timeout":  "postcode.lookup_timeout",
	"postcode_rate_limit":      "postcode.requests_per_second",
	"postcode_rate_burst":      "postcode.burst",
	"postcode_circuit_breaker": "postcode.circuit_breaker",
	"postcode_cache_size":      "postcode.cache_size",
	"postcode_cache_ttl":       "postcode.cache_ttl",

	"artifact_store_path":    "artifacts.store_path",
	"artifact_store_memory":  "artifacts.in_memory",
	"artifact_root":          "artifacts.file_root",
	"mlflow_model_dir":       "artifacts.file_root",
	"experiment_name":        "artifacts.experiment_name",
	"mlflow_experiment_name": "artifacts.experiment_name",
	"model_artifact_path":    "artifacts.model_artifact",
	"mlflow_artifact_path":   "artifacts.model_artifact",
	"lookup_table_artifact":  "artifacts.lookup_artifact",
	"lookup_table_file":      "artifacts.lookup_file",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"serving_run_id":       "serving.run_id",
	"mlflow_run_id":        "serving.run_id",
	"run_refresh_interval": "serving.refresh_interval",
	"confidence_band":      "serving.band_ratio",

	"dev_mode":              "training.dev_mode",
	"price_clip_quantile":   "training.cleaning.price_clip_quantile",
	"drop_niche_threshold":  "training.features.drop_niche_threshold",
	"filter_keywords":       "training.features.filter_keywords",
	"train_iterations":      "training.model.iterations",
	"train_depth":           "training.model.depth",
	"train_learning_rate":   "training.model.learning_rate",
	"train_early_stop":      "training.model.early_stop",
	"train_log_target":      "training.model.log_target",
	"train_random_state":    "training.model.random_state",
	"augment_min_match":     "training.augment.min_match_rate",
	"augment_merge_key":     "training.augment.merge_key",

	"cors_origins":           "security.cors_origins",
	"cors_allow_credentials": "security.cors_allow_credentials",
	"rate_limit_requests":    "security.rate_limit_requests",
	"rate_limit_window":      "security.rate_limit_window",
	"disable_rate_limit":     "security.rate_limit_disabled",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unknown variables return "" and are ignored by the provider.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
