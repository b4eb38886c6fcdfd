package vectorstore

// Payload field keys as persisted at the store boundary.
const (
	payloadKeyContent    = "content"
	payloadKeyTenantID   = "tenantId"
	payloadKeyDocID      = "docId"
	payloadKeyFilename   = "filename"
	payloadKeyUploadedAt = "uploadedAt"
	payloadKeyChunkIndex = "chunkIndex"
	payloadKeyType       = "type"
	payloadKeyModel      = "model"
)

// Payload is the metadata stored with every point.
type Payload struct {
	// Content is the chunk text.
	Content string

	// TenantID is the owning tenant's identifier.
	TenantID string

	// DocID is the source document's identifier.
	DocID string

	// Filename is the source document's filename.
	Filename string

	// UploadedAt is the document upload time as an ISO-8601 string.
	UploadedAt string

	// ChunkIndex is the chunk's position within the document.
	ChunkIndex int

	// Type is the source document's content type (pdf, txt, csv).
	Type string

	// Model is the embedding model that produced the point's vector.
	Model string
}

// Point is one stored (id, vector, payload) triple.
type Point struct {
	// ID is the point identifier, a UUID derived from the external chunk
	// identifier (see the pointid package).
	ID string

	// Vector is the embedding.
	Vector []float32

	// Payload is the point metadata.
	Payload Payload
}

// SearchResult is one nearest-neighbor hit.
type SearchResult struct {
	// ID is the point identifier.
	ID string

	// Score is the similarity score, higher is more similar. The store's
	// native ordering is authoritative.
	Score float32

	// Payload is the stored point metadata.
	Payload Payload
}
