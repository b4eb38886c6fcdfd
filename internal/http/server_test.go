package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// fixedProvider embeds every text as a constant-dimension vector whose first
// component is the text length.
type fixedProvider struct {
	dim  int
	fail error
}

func (p *fixedProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if p.fail != nil {
		return nil, p.fail
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, p.dim)
		v[0] = float32(len(t))
		vectors[i] = v
	}
	return vectors, nil
}

func (p *fixedProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if p.fail != nil {
		return nil, p.fail
	}
	v := make([]float32, p.dim)
	v[0] = float32(len(text))
	return v, nil
}

func (p *fixedProvider) Model() string { return "fixed-model" }

func (p *fixedProvider) Close() error { return nil }

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	return setupTestServerWithProvider(t, &fixedProvider{dim: 4})
}

func setupTestServerWithProvider(t *testing.T, provider *fixedProvider) *Server {
	t.Helper()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)

	cfg := &config.Config{
		Retrieval: config.RetrievalConfig{Limit: 5, EnabledDefault: true},
		Ingest:    config.IngestConfig{ChunkSize: 4, ChunkOverlap: 0, Kind: "docs"},
	}

	service, err := rag.NewService(provider, store, nil, cfg, zap.NewNop())
	require.NoError(t, err)

	server, err := NewServer(service, zap.NewNop(), nil)
	require.NoError(t, err)
	return server
}

func postJSON(t *testing.T, server *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set(echoContentType, echoJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

const (
	echoContentType = "Content-Type"
	echoJSON        = "application/json"
)

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server := setupTestServer(t)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8090, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(nil, nil, nil)
		assert.Error(t, err)
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleMetrics(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleIngest(t *testing.T) {
	server := setupTestServer(t)

	rec := postJSON(t, server, "/v1/ingest", IngestRequest{
		TenantID:   "t1",
		DocID:      "doc-1",
		Text:       "alpha beta gamma delta epsilon zeta eta theta iota kappa",
		Filename:   "notes.txt",
		UploadedAt: "2026-08-30T12:00:00Z",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp rag.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tenant_t1_docs_4", resp.Collection)
	assert.Equal(t, 3, resp.ChunkCount)
	assert.Len(t, resp.PointIDs, 3)
}

func TestHandleIngestValidation(t *testing.T) {
	server := setupTestServer(t)

	tests := []struct {
		name string
		req  IngestRequest
	}{
		{"missing tenant", IngestRequest{DocID: "doc-1", Text: "some words here"}},
		{"missing doc id", IngestRequest{TenantID: "t1", Text: "some words here"}},
		{"empty text", IngestRequest{TenantID: "t1", DocID: "doc-1", Text: "   "}},
		{"bad timestamp", IngestRequest{TenantID: "t1", DocID: "doc-1", Text: "words", UploadedAt: "yesterday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, server, "/v1/ingest", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Step)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleIngestEmbeddingFailure(t *testing.T) {
	provider := &fixedProvider{dim: 4}
	server := setupTestServerWithProvider(t, provider)
	provider.fail = assert.AnError

	rec := postJSON(t, server, "/v1/ingest", IngestRequest{
		TenantID: "t1",
		DocID:    "doc-1",
		Text:     "alpha beta gamma delta",
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, rag.StepEmbed, resp.Step)
}

func TestHandleRetrieve(t *testing.T) {
	server := setupTestServer(t)

	rec := postJSON(t, server, "/v1/ingest", IngestRequest{
		TenantID: "t1",
		DocID:    "doc-1",
		Text:     "alpha beta gamma delta epsilon zeta eta theta iota kappa",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, server, "/v1/retrieve", RetrieveRequest{
		TenantID: "t1",
		Query:    "alpha beta",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp RetrieveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 3)
	assert.Contains(t, resp.Context, "alpha")
}

func TestHandleRetrieveEmptyTenant(t *testing.T) {
	server := setupTestServer(t)

	rec := postJSON(t, server, "/v1/retrieve", RetrieveRequest{
		TenantID: "t-fresh",
		Query:    "anything",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp RetrieveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Results)
	assert.Empty(t, resp.Context)
}

func TestHandleDeleteDocument(t *testing.T) {
	server := setupTestServer(t)

	rec := postJSON(t, server, "/v1/ingest", IngestRequest{
		TenantID: "t1",
		DocID:    "doc-1",
		Text:     "alpha beta gamma delta epsilon zeta eta theta iota kappa",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodDelete, "/v1/tenants/t1/documents/doc-1", nil)
	del := httptest.NewRecorder()
	server.echo.ServeHTTP(del, req)

	assert.Equal(t, http.StatusOK, del.Code)

	var resp rag.DeleteResult
	require.NoError(t, json.Unmarshal(del.Body.Bytes(), &resp))
	assert.Contains(t, resp.DeletedIn, "tenant_t1_docs_4")
}

func TestHandleDeleteTenant(t *testing.T) {
	server := setupTestServer(t)

	rec := postJSON(t, server, "/v1/ingest", IngestRequest{
		TenantID: "t1",
		DocID:    "doc-1",
		Text:     "alpha beta gamma delta epsilon zeta eta theta iota kappa",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodDelete, "/v1/tenants/t1", nil)
	del := httptest.NewRecorder()
	server.echo.ServeHTTP(del, req)

	assert.Equal(t, http.StatusNoContent, del.Code)
}
