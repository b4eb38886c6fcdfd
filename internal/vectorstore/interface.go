// Package vectorstore defines the interface for tenant-scoped vector
// storage and provides the Qdrant and chromem implementations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the store could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")
)

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// PointCount is the number of vectors in the collection.
	PointCount int `json:"point_count"`

	// VectorSize is the configured dimensionality of the collection.
	// Immutable after creation.
	VectorSize int `json:"vector_size"`
}

// Store is the interface for vector storage operations.
//
// The interface is transport-agnostic and vector-level: callers supply
// pre-computed embeddings, the store never embeds. Tenants are isolated by
// collection, one per (tenant, embedding dimension) pair; see the
// collection package for the naming scheme.
//
// Implementations:
//   - QdrantStore: external Qdrant over gRPC
//   - ChromemStore: embedded chromem-go, for local dev and tests
type Store interface {
	// CreateCollection creates a collection with the given vector size and
	// cosine distance. Creation racing another creator is safe: "already
	// exists" is success.
	CreateCollection(ctx context.Context, name string, vectorSize int) error

	// DeleteCollection deletes a collection and all its points. Deleting
	// an absent collection is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// CollectionExists checks if a collection exists. The error is non-nil
	// only if the check itself fails.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// GetCollectionInfo returns collection metadata including the
	// configured vector size. Returns ErrCollectionNotFound if absent.
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// Upsert writes points into a collection as one acknowledged batch.
	// Writing a point id that already exists overwrites it.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit nearest neighbors of vector, highest
	// similarity first, with payloads but without vectors.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error)

	// DeleteByDocument removes every point whose payload matches
	// (tenantID, docID). Removing nothing is not an error.
	DeleteByDocument(ctx context.Context, collection, tenantID, docID string) error

	// Close releases the store connection and resources.
	Close() error
}
