package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiPreferredModels are the known-good embedding models tried first
// when the configured model is unavailable.
var geminiPreferredModels = []string{
	"text-embedding-004",
	"embedding-001",
}

// geminiProvider implements Provider against the Gemini API.
//
// Google retires embedding model versions on short notice, so a failing
// model walks an ordered candidate list instead of hard-failing: the
// configured model, then known-good models, then models discovered via the
// ListModels capability call, then any configured extras. Each candidate is
// tried at most once per embed call; the final error aggregates the last
// failure.
type geminiProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *Metrics
	extra      []string

	mu      sync.Mutex
	model   string // last model that worked, tried first next time
	listed  []string
	didList bool
}

func newGeminiProvider(cfg Config, logger *zap.Logger) (*geminiProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = geminiPreferredModels[0]
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &geminiProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		logger:  logger,
		metrics: NewMetrics(logger),
		extra:   cfg.FallbackModels,
		model:   model,
	}, nil
}

// geminiContent is a single text content in the Gemini wire format.
type geminiContent struct {
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

func newGeminiContent(text string) geminiContent {
	var c geminiContent
	c.Parts = []struct {
		Text string `json:"text"`
	}{{Text: text}}
	return c
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

type geminiModelList struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

// EmbedDocuments generates embeddings for multiple texts in one batch call,
// walking the model candidate list until one succeeds.
func (p *geminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed(ctx, texts, "embed_documents")
}

// EmbedQuery generates an embedding for a single query.
func (p *geminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := p.embed(ctx, []string{text}, "embed_query")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *geminiProvider) embed(ctx context.Context, texts []string, operation string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.Model(), operation, time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	var lastErr error
	for _, model := range p.candidates(ctx) {
		vectors, err := p.batchEmbed(ctx, model, texts)
		if err == nil {
			p.setModel(model)
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		p.logger.Warn("embedding model candidate failed",
			zap.String("model", model),
			zap.Error(err),
		)
	}

	genErr = fmt.Errorf("%w: all model candidates exhausted: %w", ErrEmbeddingFailed, lastErr)
	return nil, genErr
}

// Model returns the model that most recently produced embeddings.
func (p *geminiProvider) Model() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model
}

func (p *geminiProvider) setModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = model
}

// Close releases idle connections.
func (p *geminiProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// candidates returns the deduplicated, ordered model candidate list: the
// active model, preferred known-good models, models discovered via
// ListModels that support embedContent, then configured extras.
func (p *geminiProvider) candidates(ctx context.Context) []string {
	ordered := []string{p.Model()}
	ordered = append(ordered, geminiPreferredModels...)
	ordered = append(ordered, p.discoverModels(ctx)...)
	ordered = append(ordered, p.extra...)

	seen := make(map[string]bool, len(ordered))
	out := make([]string, 0, len(ordered))
	for _, m := range ordered {
		m = strings.TrimPrefix(m, "models/")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// discoverModels lists the provider's models that support embedContent.
// The listing is fetched at most once per provider; a listing failure just
// means no discovered candidates.
func (p *geminiProvider) discoverModels(ctx context.Context) []string {
	p.mu.Lock()
	if p.didList {
		listed := p.listed
		p.mu.Unlock()
		return listed
	}
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models?key="+p.apiKey, nil)
	if err != nil {
		return nil
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("listing embedding models failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("listing embedding models failed", zap.Int("status", resp.StatusCode))
		return nil
	}

	var list geminiModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		p.logger.Warn("decoding model list failed", zap.Error(err))
		return nil
	}

	var discovered []string
	for _, m := range list.Models {
		for _, method := range m.SupportedGenerationMethods {
			if method == "embedContent" {
				discovered = append(discovered, strings.TrimPrefix(m.Name, "models/"))
				break
			}
		}
	}

	p.mu.Lock()
	p.listed = discovered
	p.didList = true
	p.mu.Unlock()
	return discovered
}

// batchEmbed embeds texts with one model via batchEmbedContents.
func (p *geminiProvider) batchEmbed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqBody := geminiBatchRequest{Requests: make([]geminiEmbedRequest, len(texts))}
	for i, t := range texts {
		reqBody.Requests[i] = geminiEmbedRequest{
			Model:   "models/" + model,
			Content: newGeminiContent(t),
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", p.baseURL, model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: model %q: status %d: %s", ErrModelUnavailable, model, resp.StatusCode, respBody)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, respBody)
	}

	var parsed geminiBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingFailed, len(texts), len(parsed.Embeddings))
	}

	vectors := make([][]float32, len(parsed.Embeddings))
	for i, e := range parsed.Embeddings {
		if len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrEmbeddingFailed, i)
		}
		vectors[i] = e.Values
	}

	return vectors, nil
}
