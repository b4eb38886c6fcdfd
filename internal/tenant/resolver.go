// Package tenant resolves tenant identity for collection naming.
//
// Tenants are created and owned by an external account store; this package
// only reads from it. The display name feeds the human-auditable collection
// naming scheme, so resolution must stay stable even when the account store
// is unavailable.
package tenant

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Directory implementations when a tenant id is
// unknown.
var ErrNotFound = errors.New("tenant not found")

// Directory looks up tenant display names from the external account store.
type Directory interface {
	// Lookup returns the human-readable display name for a tenant id.
	// Returns ErrNotFound if the tenant does not exist.
	Lookup(ctx context.Context, tenantID string) (string, error)
}

// Resolver resolves the label used in collection names for a tenant.
//
// Lookup failures degrade to the raw tenant id rather than failing the
// calling pipeline: a missing display name must never block ingestion or
// search, and the fallback keeps names stable across directory outages.
type Resolver struct {
	directory Directory
	logger    *zap.Logger
}

// NewResolver creates a Resolver. directory may be nil, in which case every
// label resolves to the raw tenant id.
func NewResolver(directory Directory, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{directory: directory, logger: logger}
}

// Label returns the display name for tenantID, or tenantID itself when the
// directory is absent, errors, or returns an empty name.
func (r *Resolver) Label(ctx context.Context, tenantID string) string {
	if r.directory == nil {
		return tenantID
	}

	name, err := r.directory.Lookup(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("tenant label lookup failed, using raw id",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
		}
		return tenantID
	}
	if name == "" {
		return tenantID
	}
	return name
}
