package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces ragd environment variables.
const envPrefix = "RAGD_"

// ragEnabledKey is the one setting with no default: whether tenants without
// an explicit retrieval flag get augmentation. Guessing either way risks
// silently answering without documents or leaking them, so deployments must
// state it.
const ragEnabledKey = "retrieval.enabled_default"

// Load loads configuration with the following precedence, highest first:
//
//  1. Environment variables (RAGD_EMBEDDING_API_KEY, RAGD_STORE_BACKEND, ...)
//  2. YAML config file at configPath (skipped when empty or absent)
//  3. Hardcoded defaults
//
// Environment variables map to config keys by stripping the RAGD_ prefix,
// lowercasing, and splitting section from field on the first underscore:
// RAGD_SERVER_PORT -> server.port, RAGD_EMBEDDING_API_KEY ->
// embedding.api_key, RAGD_RETRIEVAL_ENABLED_DEFAULT ->
// retrieval.enabled_default.
//
// The loaded configuration is validated before being returned.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if !k.Exists(ragEnabledKey) {
		return nil, fmt.Errorf("%w: %s must be set explicitly (config file or RAGD_RETRIEVAL_ENABLED_DEFAULT)",
			ErrInvalidConfig, ragEnabledKey)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envToKey maps an environment variable name to a config key. The provider
// filters by the RAGD_ prefix but hands the full name to the callback, so
// the prefix is stripped here. After that, the first underscore separates
// section from field, remaining underscores stay part of the field name:
// RAGD_SERVER_PORT -> server.port, RAGD_EMBEDDING_API_KEY ->
// embedding.api_key. The qdrant settings nest one level deeper than every
// other section and are special-cased: RAGD_STORE_QDRANT_API_KEY ->
// store.qdrant.api_key.
func envToKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if rest, ok := strings.CutPrefix(lower, "store_qdrant_"); ok {
		return "store.qdrant." + rest
	}
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// defaults returns a Config pre-filled with defaults for everything that
// has a sensible one. Credentials and the retrieval default have none.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8090,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderTogether,
			Timeout:  15 * time.Second,
		},
		Store: StoreConfig{
			Backend: BackendQdrant,
			Qdrant: QdrantConfig{
				Host: "localhost",
				Port: 6334,
			},
			Timeout: 10 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Limit: 5,
		},
		Ingest: IngestConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			Kind:         "docs",
		},
		Telemetry: TelemetryConfig{
			Protocol:             "grpc",
			SampleRate:           1,
			MetricExportInterval: 60 * time.Second,
		},
	}
}
