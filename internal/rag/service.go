// Package rag implements the tenant-scoped ingestion, retrieval, and
// deletion pipelines over an embedding provider and a vector store.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/collection"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/pointid"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var tracer = otel.Tracer("ragd.rag")

// Pipeline step discriminators carried on failures so callers can persist an
// accurate per-document error state.
const (
	StepValidate   = "validate"
	StepParse      = "parse"
	StepEmbed      = "embed"
	StepCollection = "collection"
	StepVector     = "vector"
)

var (
	// ErrEmptyDocument indicates a document whose text yields no chunks.
	ErrEmptyDocument = errors.New("document has no extractable content")

	// ErrNoVectors indicates an embedding call that returned zero vectors.
	ErrNoVectors = errors.New("embedding returned no vectors")
)

// PipelineError wraps a pipeline failure with the step it occurred in.
type PipelineError struct {
	Step string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// stepError wraps err in a PipelineError for the given step.
func stepError(step string, err error) error {
	return &PipelineError{Step: step, Err: err}
}

// Step extracts the step discriminator from err, or "unknown" when err does
// not carry one.
func Step(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Step
	}
	return "unknown"
}

// Document is the unit of ingestion: extracted text plus the metadata that
// ends up in every point payload.
type Document struct {
	ID          string
	Text        string
	Filename    string
	UploadedAt  time.Time
	ContentType string
}

// IngestResult reports what a successful ingestion wrote.
type IngestResult struct {
	PointIDs   []string `json:"pointIds"`
	ChunkCount int      `json:"chunkCount"`
	Collection string   `json:"collection"`
}

// Snippet is one retrieval hit: stored content plus its similarity score.
type Snippet struct {
	Content  string  `json:"content"`
	Score    float32 `json:"score"`
	DocID    string  `json:"docId"`
	Filename string  `json:"filename"`
}

// DeleteResult reports which collections a document deletion swept.
type DeleteResult struct {
	DeletedIn []string `json:"deletedIn"`
}

// Service wires the pipelines together. Construct once at startup and share;
// all methods are safe for concurrent use.
type Service struct {
	provider  embeddings.Provider
	store     vectorstore.Store
	manager   *vectorstore.Manager
	resolver  *tenant.Resolver
	retrieval config.RetrievalConfig
	ingest    config.IngestConfig
	logger    *zap.Logger
}

// NewService creates a Service. All collaborators are required except the
// resolver, which falls back to raw tenant ids when nil.
func NewService(provider embeddings.Provider, store vectorstore.Store, resolver *tenant.Resolver, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if provider == nil {
		return nil, errors.New("embedding provider is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = tenant.NewResolver(nil, logger)
	}

	manager, err := vectorstore.NewManager(store, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		provider:  provider,
		store:     store,
		manager:   manager,
		resolver:  resolver,
		retrieval: cfg.Retrieval,
		ingest:    cfg.Ingest,
		logger:    logger,
	}, nil
}

// Enabled reports whether retrieval augmentation runs for a tenant. A
// tenant-level override wins; tenants without one follow the configured
// default.
func (s *Service) Enabled(override *bool) bool {
	if override != nil {
		return *override
	}
	return s.retrieval.EnabledDefault
}

// Ingest chunks, embeds, and upserts a document into the tenant's
// collection. Re-ingesting the same document overwrites its points in place
// because point ids are stable per (tenant, document, chunk index).
//
// Failures carry a step discriminator; use Step to recover it.
func (s *Service) Ingest(ctx context.Context, tenantID string, doc Document) (*IngestResult, error) {
	ctx, span := tracer.Start(ctx, "Service.Ingest")
	defer span.End()

	span.SetAttributes(attribute.String("doc_id", doc.ID))

	if tenantID == "" {
		return nil, s.fail(span, stepError(StepValidate, errors.New("tenant id is required")))
	}
	if doc.ID == "" {
		return nil, s.fail(span, stepError(StepValidate, errors.New("document id is required")))
	}

	chunks, err := chunker.Chunk(doc.Text, s.ingest.ChunkSize, s.ingest.ChunkOverlap)
	if err != nil {
		return nil, s.fail(span, stepError(StepParse, err))
	}
	if len(chunks) == 0 {
		return nil, s.fail(span, stepError(StepParse, ErrEmptyDocument))
	}

	vectors, err := s.provider.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, s.fail(span, stepError(StepEmbed, err))
	}
	if len(vectors) == 0 {
		return nil, s.fail(span, stepError(StepEmbed, ErrNoVectors))
	}
	if len(vectors) != len(chunks) {
		return nil, s.fail(span, stepError(StepEmbed,
			fmt.Errorf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks))))
	}
	dim := len(vectors[0])

	label := s.resolver.Label(ctx, tenantID)
	coll, err := s.manager.EnsureCollection(ctx, label, tenantID, s.ingest.Kind, dim)
	if err != nil {
		return nil, s.fail(span, stepError(StepCollection, err))
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "document"
	}
	uploadedAt := doc.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = vectorstore.Point{
			ID:     pointid.Derive(fmt.Sprintf("%s_%s_%d", tenantID, doc.ID, i)),
			Vector: vectors[i],
			Payload: vectorstore.Payload{
				Content:    chunk,
				TenantID:   tenantID,
				DocID:      doc.ID,
				Filename:   doc.Filename,
				UploadedAt: uploadedAt.Format(time.RFC3339),
				ChunkIndex: i,
				Type:       contentType,
				Model:      s.provider.Model(),
			},
		}
	}

	if err := s.store.Upsert(ctx, coll, points); err != nil {
		return nil, s.fail(span, stepError(StepVector, err))
	}

	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}

	s.logger.Info("ingested document",
		zap.String("tenant_id", tenantID),
		zap.String("doc_id", doc.ID),
		zap.String("collection", coll),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimension", dim),
	)

	span.SetAttributes(
		attribute.String("collection", coll),
		attribute.Int("chunks", len(chunks)),
	)
	span.SetStatus(codes.Ok, "success")

	return &IngestResult{PointIDs: ids, ChunkCount: len(chunks), Collection: coll}, nil
}

// Retrieve returns up to limit snippets nearest to the query, best first.
// A tenant with no ingested documents yields an empty result, not an error.
// A limit of zero or less uses the configured default.
func (s *Service) Retrieve(ctx context.Context, tenantID, query string, limit int) ([]Snippet, error) {
	ctx, span := tracer.Start(ctx, "Service.Retrieve")
	defer span.End()

	if tenantID == "" {
		return nil, s.fail(span, stepError(StepValidate, errors.New("tenant id is required")))
	}
	if strings.TrimSpace(query) == "" {
		return nil, s.fail(span, stepError(StepValidate, errors.New("query is required")))
	}
	if limit <= 0 {
		limit = s.retrieval.Limit
	}
	span.SetAttributes(attribute.Int("limit", limit))

	vector, err := s.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, s.fail(span, stepError(StepEmbed, err))
	}

	label := s.resolver.Label(ctx, tenantID)
	coll, err := s.manager.EnsureCollection(ctx, label, tenantID, s.ingest.Kind, len(vector))
	if err != nil {
		return nil, s.fail(span, stepError(StepCollection, err))
	}

	hits, err := s.store.Search(ctx, coll, vector, limit)
	if err != nil {
		return nil, s.fail(span, stepError(StepVector, err))
	}

	snippets := make([]Snippet, len(hits))
	for i, h := range hits {
		snippets[i] = Snippet{
			Content:  h.Payload.Content,
			Score:    h.Score,
			DocID:    h.Payload.DocID,
			Filename: h.Payload.Filename,
		}
	}

	span.SetAttributes(
		attribute.String("collection", coll),
		attribute.Int("results", len(snippets)),
	)
	span.SetStatus(codes.Ok, "success")
	return snippets, nil
}

// Context retrieves snippets for a chat turn and assembles them into a
// single prompt-ready block. Retrieval is best-effort: any failure is logged
// and an empty string returned so the chat turn proceeds without context.
func (s *Service) Context(ctx context.Context, tenantID, query string, limit int) string {
	snippets, err := s.Retrieve(ctx, tenantID, query, limit)
	if err != nil {
		s.logger.Warn("retrieval failed, proceeding without context",
			zap.String("tenant_id", tenantID),
			zap.String("step", Step(err)),
			zap.Error(err),
		)
		return ""
	}
	if len(snippets) == 0 {
		return ""
	}

	var b strings.Builder
	for i, snippet := range snippets {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(snippet.Content)
	}
	return b.String()
}

// DeleteDocument removes every point belonging to (tenantID, docID) from all
// of the tenant's collections, sweeping suffixed and legacy names alike.
// Deleting an absent document succeeds with an empty DeletedIn.
func (s *Service) DeleteDocument(ctx context.Context, tenantID, docID string) (*DeleteResult, error) {
	ctx, span := tracer.Start(ctx, "Service.DeleteDocument")
	defer span.End()

	span.SetAttributes(attribute.String("doc_id", docID))

	if tenantID == "" {
		return nil, s.fail(span, stepError(StepValidate, errors.New("tenant id is required")))
	}
	if docID == "" {
		return nil, s.fail(span, stepError(StepValidate, errors.New("document id is required")))
	}

	names, err := s.tenantCollections(ctx, tenantID)
	if err != nil {
		return nil, s.fail(span, stepError(StepVector, err))
	}

	deletedIn := make([]string, 0, len(names))
	for _, name := range names {
		if err := s.store.DeleteByDocument(ctx, name, tenantID, docID); err != nil {
			return nil, s.fail(span, stepError(StepVector, fmt.Errorf("collection %s: %w", name, err)))
		}
		deletedIn = append(deletedIn, name)
	}

	s.logger.Info("deleted document",
		zap.String("tenant_id", tenantID),
		zap.String("doc_id", docID),
		zap.Strings("collections", deletedIn),
	)

	span.SetAttributes(attribute.Int("collections_swept", len(deletedIn)))
	span.SetStatus(codes.Ok, "success")
	return &DeleteResult{DeletedIn: deletedIn}, nil
}

// DeleteTenant removes every collection the tenant owns under either naming
// scheme. Used on tenant offboarding; idempotent.
func (s *Service) DeleteTenant(ctx context.Context, tenantID string) error {
	ctx, span := tracer.Start(ctx, "Service.DeleteTenant")
	defer span.End()

	if tenantID == "" {
		return s.fail(span, stepError(StepValidate, errors.New("tenant id is required")))
	}

	label := s.resolver.Label(ctx, tenantID)
	deleted, err := s.manager.DeleteTenantCollections(ctx, label, tenantID)
	if err != nil {
		return s.fail(span, stepError(StepVector, err))
	}

	span.SetAttributes(attribute.Int("collections_deleted", len(deleted)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// tenantCollections lists the existing collections matching the tenant's
// current and legacy prefixes.
func (s *Service) tenantCollections(ctx context.Context, tenantID string) ([]string, error) {
	all, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	label := s.resolver.Label(ctx, tenantID)
	prefixes := collection.TenantPrefixes(label, tenantID)

	var names []string
	for _, name := range all {
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				names = append(names, name)
				break
			}
		}
	}
	return names, nil
}

// fail records err on the span and returns it.
func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
