// Package embeddings generates vector embeddings via remote providers.
//
// Exactly one provider is active per process, selected by configuration at
// startup. Callers only see the resulting vectors and their dimensionality,
// never which provider ran. Embeddings are never cached locally; every call
// recomputes.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration. Fatal,
	// raised immediately, never retried.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrModelUnavailable indicates the requested model is unknown to or
	// unsupported by the provider.
	ErrModelUnavailable = errors.New("embedding model unavailable")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts, one vector
	// per input text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Model returns the model name last used to produce embeddings.
	Model() string

	// Close releases resources held by the provider.
	Close() error
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Provider is the provider type: "together", "openai", or "gemini".
	Provider string

	// Model is the preferred embedding model.
	Model string

	// APIKey is the provider credential. Required.
	APIKey string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// FallbackModels are extra candidates for the gemini fallback search.
	FallbackModels []string

	// Timeout bounds each outbound call.
	Timeout time.Duration
}

// NewProvider creates an embedding provider based on the configuration.
//
// Missing credentials or an unknown provider name are fatal configuration
// errors.
func NewProvider(cfg Config, logger *zap.Logger) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key required for provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "together":
		return newOpenAIWireProvider(cfg, defaultTogetherBaseURL, defaultTogetherModel, logger)
	case "openai":
		return newOpenAIWireProvider(cfg, defaultOpenAIBaseURL, defaultOpenAIModel, logger)
	case "gemini":
		return newGeminiProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
