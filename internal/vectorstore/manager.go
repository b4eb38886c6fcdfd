package vectorstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/collection"
)

var managerTracer = otel.Tracer("ragd.vectorstore.manager")

// Manager resolves tenant collections on top of a Store.
//
// New collections use the dimension-suffixed naming scheme; collections
// created before the scheme existed keep the legacy tenant_<id>_docs name
// and are reused in place as long as their vector size still matches.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager creates a Manager over the given store.
func NewManager(store Store, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}, nil
}

// EnsureCollection returns the name of a collection ready to accept vectors
// of the given dimension for the tenant, creating one if needed.
//
// Resolution order: the dimension-suffixed name wins when it exists; next a
// legacy collection is reused if its stored vector size equals dim; otherwise
// the suffixed collection is created. A create racing another writer is
// treated as success.
func (m *Manager) EnsureCollection(ctx context.Context, label, tenantID, kind string, dim int) (string, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.EnsureCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_label", label),
		attribute.String("kind", kind),
		attribute.Int("dimension", dim),
	)

	name, err := collection.Name(label, kind, dim)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	candidates, err := collection.Candidates(label, tenantID, kind, dim)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	for _, candidate := range candidates {
		exists, err := m.store.CollectionExists(ctx, candidate.Name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("checking collection %s: %w", candidate.Name, err)
		}
		if !exists {
			continue
		}

		if !candidate.Legacy {
			span.SetAttributes(attribute.String("collection", candidate.Name))
			span.SetStatus(codes.Ok, "success")
			return candidate.Name, nil
		}

		info, err := m.store.GetCollectionInfo(ctx, candidate.Name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("inspecting legacy collection %s: %w", candidate.Name, err)
		}
		if info.VectorSize == dim {
			m.logger.Debug("reusing legacy collection",
				zap.String("collection", candidate.Name),
				zap.Int("dimension", dim),
			)
			span.SetAttributes(
				attribute.String("collection", candidate.Name),
				attribute.Bool("legacy", true),
			)
			span.SetStatus(codes.Ok, "success")
			return candidate.Name, nil
		}

		// Dimension changed since the legacy collection was created,
		// typically after an embedding model switch. Leave it untouched
		// and promote the tenant to a suffixed collection.
		m.logger.Warn("legacy collection dimension mismatch, creating suffixed collection",
			zap.String("legacy_collection", candidate.Name),
			zap.Int("legacy_dimension", info.VectorSize),
			zap.Int("dimension", dim),
		)
	}

	if err := m.store.CreateCollection(ctx, name, dim); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("creating collection %s: %w", name, err)
	}

	m.logger.Info("created collection",
		zap.String("collection", name),
		zap.String("tenant_label", label),
		zap.Int("dimension", dim),
	)

	span.SetAttributes(attribute.String("collection", name))
	span.SetStatus(codes.Ok, "success")
	return name, nil
}

// SearchCandidates returns the existing collections to query for a tenant,
// suffixed name first, legacy second. Missing candidates are skipped.
func (m *Manager) SearchCandidates(ctx context.Context, label, tenantID, kind string, dim int) ([]string, error) {
	candidates, err := collection.Candidates(label, tenantID, kind, dim)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, candidate := range candidates {
		exists, err := m.store.CollectionExists(ctx, candidate.Name)
		if err != nil {
			return nil, fmt.Errorf("checking collection %s: %w", candidate.Name, err)
		}
		if exists {
			names = append(names, candidate.Name)
		}
	}
	return names, nil
}

// DeleteTenantCollections removes every collection belonging to the tenant,
// matched by the tenant id and label prefixes. It returns the names deleted.
func (m *Manager) DeleteTenantCollections(ctx context.Context, label, tenantID string) ([]string, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.DeleteTenantCollections")
	defer span.End()

	span.SetAttributes(attribute.String("tenant_label", label))

	all, err := m.store.ListCollections(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	prefixes := collection.TenantPrefixes(label, tenantID)
	var deleted []string
	for _, name := range all {
		if !matchesAnyPrefix(name, prefixes) {
			continue
		}
		if err := m.store.DeleteCollection(ctx, name); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return deleted, fmt.Errorf("deleting collection %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}

	m.logger.Info("deleted tenant collections",
		zap.String("tenant_label", label),
		zap.Int("count", len(deleted)),
	)

	span.SetAttributes(attribute.Int("deleted_count", len(deleted)))
	span.SetStatus(codes.Ok, "success")
	return deleted, nil
}

func matchesAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}
