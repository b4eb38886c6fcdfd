package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("ragd.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory only.
	Path string

	// Compress enables gzip compression for persisted files.
	Compress bool
}

// ChromemStore is an embedded Store implementation backed by chromem-go.
//
// It serves local development and single-binary deployments where running a
// Qdrant server is overkill. All embeddings are supplied by the caller;
// chromem's own embedding functions are never invoked.
type ChromemStore struct {
	db     *chromem.DB
	logger *zap.Logger

	// sizes tracks the configured vector size per collection. chromem has
	// no per-collection vector size of its own; collections restored from
	// disk recover their size from the dimension suffix in their name,
	// legacy unsuffixed collections stay unknown (size 0).
	sizes sync.Map
}

// NewChromemStore creates a ChromemStore, persistent when config.Path is
// set, in-memory otherwise.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem at %s: %v", ErrConnectionFailed, config.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	s := &ChromemStore{db: db, logger: logger}

	// Recover sizes for collections restored from disk.
	for name := range db.ListCollections() {
		if size := dimensionFromName(name); size > 0 {
			s.sizes.Store(name, size)
		}
	}

	return s, nil
}

// noEmbedding is passed where chromem requires an embedding function; it
// must never run because every document and query carries a pre-computed
// vector.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem store only accepts pre-computed embeddings")
}

// dimensionFromName extracts the trailing _<dim> suffix of a
// dimension-suffixed collection name, or 0 if the name has none.
func dimensionFromName(name string) int {
	idx := strings.LastIndexByte(name, '_')
	if idx < 0 {
		return 0
	}
	dim, err := strconv.Atoi(name[idx+1:])
	if err != nil || dim <= 0 {
		return 0
	}
	return dim
}

// CreateCollection creates a collection. Racing creators are safe: chromem
// returns the existing collection for GetOrCreateCollection.
func (s *ChromemStore) CreateCollection(ctx context.Context, name string, vectorSize int) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CreateCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("vector_size", vectorSize),
	)

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if vectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive, got %d", ErrInvalidConfig, vectorSize)
	}

	meta := map[string]string{"vector_size": strconv.Itoa(vectorSize)}
	if _, err := s.db.GetOrCreateCollection(name, meta, noEmbedding); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.sizes.Store(name, vectorSize)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteCollection deletes a collection; deleting an absent one is a no-op.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}

	s.sizes.Delete(name)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CollectionExists")
	defer span.End()

	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}

	return s.db.GetCollection(name, noEmbedding) != nil, nil
}

// ListCollections returns all collection names.
func (s *ChromemStore) ListCollections(ctx context.Context) ([]string, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.ListCollections")
	defer span.End()

	collections := s.db.ListCollections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}

	span.SetAttributes(attribute.Int("collection_count", len(names)))
	return names, nil
}

// GetCollectionInfo returns collection metadata. VectorSize is 0 for
// legacy unsuffixed collections restored from disk, which the manager
// treats as a dimension mismatch.
func (s *ChromemStore) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.GetCollectionInfo")
	defer span.End()

	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	collection := s.db.GetCollection(name, noEmbedding)
	if collection == nil {
		return nil, ErrCollectionNotFound
	}

	size := 0
	if v, ok := s.sizes.Load(name); ok {
		size = v.(int)
	}

	return &CollectionInfo{
		Name:       name,
		PointCount: collection.Count(),
		VectorSize: size,
	}, nil
}

// Upsert writes points into a collection. chromem replaces documents with
// matching ids, preserving re-ingestion idempotence.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, points []Point) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("point_count", len(points)),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	coll := s.db.GetCollection(collection, noEmbedding)
	if coll == nil {
		return ErrCollectionNotFound
	}

	if v, ok := s.sizes.Load(collection); ok {
		if size := v.(int); size != len(points[0].Vector) {
			return fmt.Errorf("%w: vector size %d does not match collection %s size %d",
				ErrInvalidConfig, len(points[0].Vector), collection, size)
		}
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Payload.Content,
			Metadata:  payloadToChromem(p.Payload),
			Embedding: p.Vector,
		}
	}

	// Concurrency of 1: embeddings are pre-computed, nothing to parallelize.
	if err := coll.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting %d points to collection %s: %w", len(points), collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search returns up to limit nearest neighbors by cosine similarity.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("limit", limit),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}

	coll := s.db.GetCollection(collection, noEmbedding)
	if coll == nil {
		return nil, ErrCollectionNotFound
	}

	// chromem requires nResults <= document count.
	count := coll.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if limit > count {
		limit = count
	}

	hits, err := coll.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{
			ID:      h.ID,
			Score:   h.Similarity,
			Payload: payloadFromChromem(h.Content, h.Metadata),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// DeleteByDocument removes every point matching (tenantID, docID).
func (s *ChromemStore) DeleteByDocument(ctx context.Context, collection, tenantID, docID string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByDocument")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.String("doc_id", docID),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	coll := s.db.GetCollection(collection, noEmbedding)
	if coll == nil {
		// Absent collection means nothing to delete.
		return nil
	}

	where := map[string]string{
		payloadKeyTenantID: tenantID,
		payloadKeyDocID:    docID,
	}
	if err := coll.Delete(ctx, where, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting document %s from collection %s: %w", docID, collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

func payloadToChromem(p Payload) map[string]string {
	return map[string]string{
		payloadKeyTenantID:   p.TenantID,
		payloadKeyDocID:      p.DocID,
		payloadKeyFilename:   p.Filename,
		payloadKeyUploadedAt: p.UploadedAt,
		payloadKeyChunkIndex: strconv.Itoa(p.ChunkIndex),
		payloadKeyType:       p.Type,
		payloadKeyModel:      p.Model,
	}
}

func payloadFromChromem(content string, meta map[string]string) Payload {
	chunkIndex, _ := strconv.Atoi(meta[payloadKeyChunkIndex])
	return Payload{
		Content:    content,
		TenantID:   meta[payloadKeyTenantID],
		DocID:      meta[payloadKeyDocID],
		Filename:   meta[payloadKeyFilename],
		UploadedAt: meta[payloadKeyUploadedAt],
		ChunkIndex: chunkIndex,
		Type:       meta[payloadKeyType],
		Model:      meta[payloadKeyModel],
	}
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
