// Package collection derives vector-store collection names from tenant
// identity, resource kind, and embedding dimension.
//
// Every (tenant, dimension) pair owns exactly one collection. Encoding the
// dimension in the name is what keeps indexes built by different embedding
// models from colliding: when the active model's output dimension changes, a
// new collection is created instead of mutating the old one.
//
// Deployments that predate the dimension suffix used the unsuffixed form
// tenant_<tenantId>_docs. Candidates returns both schemes in probe order so
// migration stays data-driven rather than branching.
package collection

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultKind is the resource kind used when none is given.
const DefaultKind = "docs"

// ErrInvalidDimension indicates a non-positive embedding dimension.
var ErrInvalidDimension = errors.New("invalid embedding dimension")

// Normalize lowercases s and maps it onto the [a-z0-9_] alphabet: runs of
// any other characters collapse to a single underscore, and leading and
// trailing underscores are trimmed.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}

// Name returns the dimension-suffixed collection name for a tenant label:
// tenant_<label>_<kind>_<dim>. The label and kind are normalized; an empty
// normalized kind falls back to DefaultKind.
//
// Returns ErrInvalidDimension if dim is not positive; a collection's vector
// size is immutable, so an unusable dimension must fail before any store
// call.
func Name(label, kind string, dim int) (string, error) {
	if dim <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}

	normKind := Normalize(kind)
	if normKind == "" {
		normKind = DefaultKind
	}

	return fmt.Sprintf("tenant_%s_%s_%d", Normalize(label), normKind, dim), nil
}

// LegacyName returns the unsuffixed collection name used before dimensions
// were encoded: tenant_<tenantId>_docs.
func LegacyName(tenantID string) string {
	return fmt.Sprintf("tenant_%s_%s", Normalize(tenantID), DefaultKind)
}

// Candidate is one collection name to probe, in order.
type Candidate struct {
	// Name is the collection name.
	Name string

	// Legacy marks the unsuffixed scheme. Legacy collections are only
	// usable when their configured vector size matches the requested
	// dimension.
	Legacy bool
}

// Candidates returns the ordered list of collection names to check for a
// tenant: the dimension-suffixed name first, then the legacy unsuffixed
// name. Duplicate names (label == tenantID under the legacy kind) are
// collapsed.
func Candidates(label, tenantID, kind string, dim int) ([]Candidate, error) {
	current, err := Name(label, kind, dim)
	if err != nil {
		return nil, err
	}

	out := []Candidate{{Name: current}}
	if legacy := LegacyName(tenantID); legacy != current {
		out = append(out, Candidate{Name: legacy, Legacy: true})
	}
	return out, nil
}

// TenantPrefixes returns the name prefixes that identify every collection a
// tenant may own under either scheme. Used by tenant offboarding to sweep
// all of a tenant's collections regardless of dimension.
func TenantPrefixes(label, tenantID string) []string {
	prefixes := []string{fmt.Sprintf("tenant_%s_", Normalize(tenantID))}
	if byLabel := fmt.Sprintf("tenant_%s_", Normalize(label)); byLabel != prefixes[0] {
		prefixes = append(prefixes, byLabel)
	}
	return prefixes
}
