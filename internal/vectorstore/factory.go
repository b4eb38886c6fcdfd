package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

// New creates a Store from configuration. The backend name selects the
// implementation: "qdrant" dials the gRPC server, "chromem" opens the
// embedded store.
func New(cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendQdrant:
		return NewQdrantStore(QdrantConfig{
			Host:    cfg.Qdrant.Host,
			Port:    cfg.Qdrant.Port,
			APIKey:  cfg.Qdrant.APIKey,
			UseTLS:  cfg.Qdrant.UseTLS,
			Timeout: cfg.Timeout,
		})
	case config.BackendChromem:
		return NewChromemStore(ChromemConfig{
			Path: cfg.ChromemPath,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, cfg.Backend)
	}
}
