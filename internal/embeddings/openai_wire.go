package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Together AI serves embeddings on an OpenAI-compatible endpoint, so one
// wire client covers both providers.
const (
	defaultTogetherBaseURL = "https://api.together.xyz/v1"
	defaultTogetherModel   = "nomic-ai/nomic-embed-text-v1.5"

	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "text-embedding-3-small"

	defaultRequestsPerSecond = 5
	defaultBurst             = 10
)

// openAIWireProvider implements Provider against the OpenAI embeddings wire
// format: POST {base}/embeddings with a bearer credential.
type openAIWireProvider struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *Metrics
}

func newOpenAIWireProvider(cfg Config, defaultBaseURL, defaultModel string, logger *zap.Logger) (*openAIWireProvider, error) {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &openAIWireProvider{
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		metrics: NewMetrics(logger),
	}, nil
}

// embeddingsRequest is the OpenAI-compatible request body.
type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingsResponse is the OpenAI-compatible response body.
type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// EmbedDocuments generates embeddings for multiple texts in one batch call.
func (p *openAIWireProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed(ctx, texts, "embed_documents")
}

func (p *openAIWireProvider) embed(ctx context.Context, texts []string, operation string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, operation, time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	if err := p.limiter.Wait(ctx); err != nil {
		genErr = fmt.Errorf("rate limiter: %w", err)
		return nil, genErr
	}

	body, err := json.Marshal(embeddingsRequest{Model: p.model, Input: texts})
	if err != nil {
		genErr = fmt.Errorf("marshaling request: %w", err)
		return nil, genErr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		genErr = fmt.Errorf("creating request: %w", err)
		return nil, genErr
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound {
			genErr = fmt.Errorf("%w: model %q: status %d: %s", ErrModelUnavailable, p.model, resp.StatusCode, respBody)
		} else {
			genErr = fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, respBody)
		}
		return nil, genErr
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		genErr = fmt.Errorf("decoding response: %w", err)
		return nil, genErr
	}

	if len(parsed.Data) != len(texts) {
		genErr = fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingFailed, len(texts), len(parsed.Data))
		return nil, genErr
	}

	// The API documents data in input order; sort by index to be safe.
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vectors := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if len(d.Embedding) == 0 {
			genErr = fmt.Errorf("%w: empty embedding at index %d", ErrEmbeddingFailed, i)
			return nil, genErr
		}
		vectors[i] = d.Embedding
	}

	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *openAIWireProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embed(ctx, []string{text}, "embed_query")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Model returns the configured model name.
func (p *openAIWireProvider) Model() string {
	return p.model
}

// Close is a no-op; the provider holds no connections beyond the HTTP
// client's idle pool.
func (p *openAIWireProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
