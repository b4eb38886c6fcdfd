// Package pointid derives vector-store point identifiers from external
// chunk identifiers.
//
// Qdrant only accepts UUIDs (or unsigned integers) as point IDs, but the
// ingestion callers address chunks as "<tenant>_<doc>_<index>". Derive maps
// any such external identifier to a stable UUID so that re-ingesting the
// same document overwrites its points instead of duplicating them.
package pointid

import (
	"crypto/sha1"
	"github.com/google/uuid"
)

// Derive returns the point identifier for an external chunk identifier.
//
// Identifiers that already parse as canonical UUIDs pass through unchanged.
// Anything else is hashed with SHA-1 and the first 16 digest bytes are
// packed as a version-5, RFC 4122 variant UUID. The mapping is
// deterministic: equal inputs always derive the same UUID.
func Derive(externalID string) string {
	// uuid.Parse also accepts urn: and braced forms; only the plain
	// 8-4-4-4-12 grouping passes through untouched.
	if _, err := uuid.Parse(externalID); err == nil && len(externalID) == 36 {
		return externalID
	}

	sum := sha1.Sum([]byte(externalID))

	var id uuid.UUID
	copy(id[:], sum[:16])
	id[6] = (id[6] & 0x0f) | 0x50 // version 5
	id[8] = (id[8] & 0x3f) | 0x80 // RFC 4122 variant

	return id.String()
}
