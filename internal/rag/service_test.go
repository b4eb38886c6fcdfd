package rag_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// stubProvider embeds text as a deterministic vector of the configured
// dimension: first component is the text length, the rest zero.
type stubProvider struct {
	dim      int
	embedErr error
}

func (p *stubProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = p.embed(t)
	}
	return vectors, nil
}

func (p *stubProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	return p.embed(text), nil
}

func (p *stubProvider) embed(text string) []float32 {
	v := make([]float32, p.dim)
	v[0] = float32(len(text))
	return v
}

func (p *stubProvider) Model() string { return "stub-model" }

func (p *stubProvider) Close() error { return nil }

var _ embeddings.Provider = (*stubProvider)(nil)

func testConfig() *config.Config {
	return &config.Config{
		Retrieval: config.RetrievalConfig{Limit: 5, EnabledDefault: true},
		Ingest:    config.IngestConfig{ChunkSize: 4, ChunkOverlap: 0, Kind: "docs"},
	}
}

func newTestService(t *testing.T, provider embeddings.Provider) (*rag.Service, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)

	service, err := rag.NewService(provider, store, nil, testConfig(), zap.NewNop())
	require.NoError(t, err)
	return service, store
}

// tenWords is 10 words, which chunks into 3 windows at size 4 / overlap 0.
const tenWords = "alpha beta gamma delta epsilon zeta eta theta iota kappa"

func TestIngestThreeChunks(t *testing.T) {
	service, store := newTestService(t, &stubProvider{dim: 4})
	ctx := context.Background()

	result, err := service.Ingest(ctx, "t1", rag.Document{
		ID:         "doc-1",
		Text:       tenWords,
		Filename:   "notes.txt",
		UploadedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "tenant_t1_docs_4", result.Collection)
	assert.Equal(t, 3, result.ChunkCount)
	assert.Len(t, result.PointIDs, 3)

	info, err := store.GetCollectionInfo(ctx, "tenant_t1_docs_4")
	require.NoError(t, err)
	assert.Equal(t, 3, info.PointCount)
	assert.Equal(t, 4, info.VectorSize)

	snippets, err := service.Retrieve(ctx, "t1", "alpha beta gamma delta", 5)
	require.NoError(t, err)
	assert.Len(t, snippets, 3)
	for _, s := range snippets {
		assert.Equal(t, "doc-1", s.DocID)
		assert.Equal(t, "notes.txt", s.Filename)
		assert.NotEmpty(t, s.Content)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	service, store := newTestService(t, &stubProvider{dim: 4})
	ctx := context.Background()

	doc := rag.Document{ID: "doc-1", Text: tenWords, Filename: "notes.txt"}

	first, err := service.Ingest(ctx, "t1", doc)
	require.NoError(t, err)
	second, err := service.Ingest(ctx, "t1", doc)
	require.NoError(t, err)

	assert.Equal(t, first.PointIDs, second.PointIDs)

	info, err := store.GetCollectionInfo(ctx, "tenant_t1_docs_4")
	require.NoError(t, err)
	assert.Equal(t, 3, info.PointCount)
}

func TestIngestDimensionIsolation(t *testing.T) {
	provider := &stubProvider{dim: 4}
	service, store := newTestService(t, provider)
	ctx := context.Background()

	_, err := service.Ingest(ctx, "t1", rag.Document{ID: "doc-1", Text: tenWords})
	require.NoError(t, err)

	// Model switch: same tenant, new dimension, new collection.
	provider.dim = 6
	_, err = service.Ingest(ctx, "t1", rag.Document{ID: "doc-2", Text: tenWords})
	require.NoError(t, err)

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tenant_t1_docs_4", "tenant_t1_docs_6"}, names)

	// A 6-dim query never sees 4-dim points.
	snippets, err := service.Retrieve(ctx, "t1", "alpha beta", 10)
	require.NoError(t, err)
	for _, s := range snippets {
		assert.Equal(t, "doc-2", s.DocID)
	}
}

func TestIngestValidation(t *testing.T) {
	service, _ := newTestService(t, &stubProvider{dim: 4})
	ctx := context.Background()

	_, err := service.Ingest(ctx, "", rag.Document{ID: "doc-1", Text: tenWords})
	assert.Equal(t, rag.StepValidate, rag.Step(err))

	_, err = service.Ingest(ctx, "t1", rag.Document{ID: "", Text: tenWords})
	assert.Equal(t, rag.StepValidate, rag.Step(err))
}

func TestIngestEmptyDocument(t *testing.T) {
	service, _ := newTestService(t, &stubProvider{dim: 4})

	_, err := service.Ingest(context.Background(), "t1", rag.Document{ID: "doc-1", Text: "   \n\t  "})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrEmptyDocument)
	assert.Equal(t, rag.StepParse, rag.Step(err))
}

func TestIngestEmbeddingFailureStep(t *testing.T) {
	service, _ := newTestService(t, &stubProvider{dim: 4, embedErr: fmt.Errorf("%w: upstream 502", embeddings.ErrEmbeddingFailed)})

	_, err := service.Ingest(context.Background(), "t1", rag.Document{ID: "doc-1", Text: tenWords})
	require.Error(t, err)
	assert.Equal(t, rag.StepEmbed, rag.Step(err))
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)
}

// truncatingProvider drops the last vector from every batch, mimicking a
// provider that silently skips inputs it cannot embed.
type truncatingProvider struct {
	stubProvider
}

func (p *truncatingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := p.stubProvider.EmbedDocuments(ctx, texts)
	if err != nil || len(vectors) == 0 {
		return vectors, err
	}
	return vectors[:len(vectors)-1], nil
}

func TestIngestShortEmbeddingBatch(t *testing.T) {
	service, _ := newTestService(t, &truncatingProvider{stubProvider{dim: 4}})

	_, err := service.Ingest(context.Background(), "t1", rag.Document{ID: "doc-1", Text: tenWords})
	require.Error(t, err)
	assert.Equal(t, rag.StepEmbed, rag.Step(err))
	assert.ErrorContains(t, err, "3 chunks")
}

func TestRetrieveEmptyTenant(t *testing.T) {
	service, _ := newTestService(t, &stubProvider{dim: 4})

	snippets, err := service.Retrieve(context.Background(), "t-fresh", "anything at all", 5)
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestRetrieveDefaultLimit(t *testing.T) {
	service, _ := newTestService(t, &stubProvider{dim: 4})
	ctx := context.Background()

	_, err := service.Ingest(ctx, "t1", rag.Document{ID: "doc-1", Text: tenWords})
	require.NoError(t, err)

	// limit <= 0 falls back to the configured default of 5.
	snippets, err := service.Retrieve(ctx, "t1", "alpha beta", 0)
	require.NoError(t, err)
	assert.Len(t, snippets, 3)
}

func TestContextDegradesGracefully(t *testing.T) {
	service, _ := newTestService(t, &stubProvider{dim: 4, embedErr: fmt.Errorf("%w: provider down", embeddings.ErrEmbeddingFailed)})

	text := service.Context(context.Background(), "t1", "alpha beta", 5)
	assert.Empty(t, text)
}

func TestContextAssemblesSnippets(t *testing.T) {
	service, _ := newTestService(t, &stubProvider{dim: 4})
	ctx := context.Background()

	_, err := service.Ingest(ctx, "t1", rag.Document{ID: "doc-1", Text: tenWords})
	require.NoError(t, err)

	text := service.Context(ctx, "t1", "alpha beta", 5)
	assert.Contains(t, text, "alpha")
	assert.Contains(t, text, "---")
}

func TestDeleteDocumentSweepsLegacyCollection(t *testing.T) {
	service, store := newTestService(t, &stubProvider{dim: 4})
	ctx := context.Background()

	// Points ingested before the dimension-suffixed scheme existed.
	require.NoError(t, store.CreateCollection(ctx, "tenant_t1_docs", 4))
	require.NoError(t, store.Upsert(ctx, "tenant_t1_docs", []vectorstore.Point{
		{
			ID:     "11111111-1111-5111-8111-111111111111",
			Vector: []float32{1, 0, 0, 0},
			Payload: vectorstore.Payload{
				Content:  "legacy chunk",
				TenantID: "t1",
				DocID:    "doc-legacy",
			},
		},
	}))

	result, err := service.DeleteDocument(ctx, "t1", "doc-legacy")
	require.NoError(t, err)
	assert.Contains(t, result.DeletedIn, "tenant_t1_docs")

	info, err := store.GetCollectionInfo(ctx, "tenant_t1_docs")
	require.NoError(t, err)
	assert.Equal(t, 0, info.PointCount)
}

func TestDeleteDocumentSweepsAllSchemes(t *testing.T) {
	provider := &stubProvider{dim: 4}
	service, store := newTestService(t, provider)
	ctx := context.Background()

	_, err := service.Ingest(ctx, "t1", rag.Document{ID: "doc-1", Text: tenWords})
	require.NoError(t, err)
	provider.dim = 6
	_, err = service.Ingest(ctx, "t1", rag.Document{ID: "doc-1", Text: tenWords})
	require.NoError(t, err)

	result, err := service.DeleteDocument(ctx, "t1", "doc-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tenant_t1_docs_4", "tenant_t1_docs_6"}, result.DeletedIn)

	for _, name := range result.DeletedIn {
		info, err := store.GetCollectionInfo(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, 0, info.PointCount)
	}
}

func TestDeleteDocumentAbsentIsIdempotent(t *testing.T) {
	service, _ := newTestService(t, &stubProvider{dim: 4})

	result, err := service.DeleteDocument(context.Background(), "t-ghost", "doc-ghost")
	require.NoError(t, err)
	assert.Empty(t, result.DeletedIn)
}

func TestDeleteTenant(t *testing.T) {
	provider := &stubProvider{dim: 4}
	service, store := newTestService(t, provider)
	ctx := context.Background()

	_, err := service.Ingest(ctx, "t1", rag.Document{ID: "doc-1", Text: tenWords})
	require.NoError(t, err)
	_, err = service.Ingest(ctx, "t2", rag.Document{ID: "doc-2", Text: tenWords})
	require.NoError(t, err)

	require.NoError(t, service.DeleteTenant(ctx, "t1"))

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant_t2_docs_4"}, names)

	// Offboarding an already-absent tenant succeeds.
	require.NoError(t, service.DeleteTenant(ctx, "t1"))
}

func TestEnabled(t *testing.T) {
	service, _ := newTestService(t, &stubProvider{dim: 4})

	on, off := true, false
	assert.True(t, service.Enabled(nil))
	assert.True(t, service.Enabled(&on))
	assert.False(t, service.Enabled(&off))
}

func TestPipelineErrorStep(t *testing.T) {
	assert.Equal(t, "unknown", rag.Step(fmt.Errorf("plain")))
	assert.Equal(t, "unknown", rag.Step(nil))
}
