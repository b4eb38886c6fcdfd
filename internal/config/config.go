// Package config provides configuration loading for ragd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. All required credentials and invariants are checked once at
// startup by Validate; pipelines treat the resulting Config as trusted
// input.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Provider names accepted by embedding.provider.
const (
	ProviderTogether = "together"
	ProviderOpenAI   = "openai"
	ProviderGemini   = "gemini"
)

// Store backends accepted by store.backend.
const (
	BackendQdrant  = "qdrant"
	BackendChromem = "chromem"
)

// ErrInvalidConfig indicates a fatal configuration error. These are never
// retried: the process refuses to start.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete ragd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Store     StoreConfig     `koanf:"store"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is the output encoding: json or console.
	Format string `koanf:"format"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is the active provider: together, openai, or gemini.
	Provider string `koanf:"provider"`

	// Model is the preferred embedding model for the provider.
	Model string `koanf:"model"`

	// APIKey is the provider credential. Required; missing credentials are
	// a fatal startup error, never retried.
	APIKey string `koanf:"api_key"`

	// BaseURL overrides the provider's default endpoint. Mainly used in
	// tests and for OpenAI-compatible gateways.
	BaseURL string `koanf:"base_url"`

	// FallbackModels are extra model candidates tried in order when the
	// preferred model is unavailable (gemini only).
	FallbackModels []string `koanf:"fallback_models"`

	// Timeout bounds each outbound embedding call.
	Timeout time.Duration `koanf:"timeout"`
}

// QdrantConfig holds the Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	APIKey string `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is the active store: qdrant or chromem.
	Backend string `koanf:"backend"`

	Qdrant QdrantConfig `koanf:"qdrant"`

	// ChromemPath is the persistence directory for the embedded chromem
	// backend. Empty means in-memory only.
	ChromemPath string `koanf:"chromem_path"`

	// Timeout bounds each store call (search, upsert, create-collection).
	Timeout time.Duration `koanf:"timeout"`
}

// RetrievalConfig holds retrieval pipeline settings.
type RetrievalConfig struct {
	// Limit is the default nearest-neighbor result count.
	Limit int `koanf:"limit"`

	// EnabledDefault decides whether retrieval augmentation runs for
	// tenants that carry no explicit flag of their own. The key must be
	// present in the config file or environment; there is no implicit
	// default and startup fails without it.
	EnabledDefault bool `koanf:"enabled_default"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	// ChunkSize is the chunk window in words.
	ChunkSize int `koanf:"chunk_size"`

	// ChunkOverlap is the overlap between consecutive windows in words.
	ChunkOverlap int `koanf:"chunk_overlap"`

	// Kind is the resource kind embedded in collection names.
	Kind string `koanf:"kind"`
}

// TelemetryConfig holds OTLP export settings. Disabled by default; spans
// and metrics stay no-op without a collector.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`

	// Protocol is the exporter wire format: grpc or http/protobuf.
	Protocol string `koanf:"protocol"`

	Insecure bool `koanf:"insecure"`

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `koanf:"sample_rate"`

	// MetricExportInterval is the periodic metric push interval.
	MetricExportInterval time.Duration `koanf:"metric_export_interval"`
}

// Validate checks the fatal-error invariants. Anything that fails here is a
// configuration error: raised immediately, never retried.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Logging.Format)
	}

	switch c.Embedding.Provider {
	case ProviderTogether, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("%w: embedding api_key required for provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("%w: embedding timeout must be positive", ErrInvalidConfig)
	}

	switch c.Store.Backend {
	case BackendQdrant:
		if c.Store.Qdrant.Host == "" {
			return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
		}
		if c.Store.Qdrant.Port < 1 || c.Store.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: qdrant port %d out of range", ErrInvalidConfig, c.Store.Qdrant.Port)
		}
	case BackendChromem:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("%w: store timeout must be positive", ErrInvalidConfig)
	}

	if c.Retrieval.Limit <= 0 {
		return fmt.Errorf("%w: retrieval limit must be positive", ErrInvalidConfig)
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidConfig, c.Ingest.ChunkOverlap)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("%w: telemetry endpoint required when telemetry is enabled", ErrInvalidConfig)
		}
		switch c.Telemetry.Protocol {
		case "", "grpc", "http/protobuf":
		default:
			return fmt.Errorf("%w: unknown telemetry protocol %q", ErrInvalidConfig, c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("%w: telemetry sample_rate %v out of [0, 1]", ErrInvalidConfig, c.Telemetry.SampleRate)
		}
	}

	return nil
}
