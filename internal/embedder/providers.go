package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lukechampine.com/blake3"

	"github.com/dshills/ruleminer/internal/retry"
	"github.com/dshills/ruleminer/pkg/types"
)

// Provider names
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	DefaultJinaURL   = "https://api.jina.ai/v1"
	DefaultOpenAIURL = "https://api.openai.com/v1"

	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	MaxBatchSize = 100

	defaultHTTPTimeout = 30 * time.Second
)

// RemoteProvider calls an OpenAI-compatible /embeddings endpoint. Jina and
// OpenAI share the request and response shape.
type RemoteProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
	policy     retry.Policy
}

func newRemoteProvider(name string, cfg Config, defaultURL, defaultModel string, dimension int, cache *Cache) *RemoteProvider {
	policy := retry.DefaultPolicy()
	policy.Name = "embed"
	policy.Logger = cfg.Logger
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	return &RemoteProvider{
		name:       name,
		baseURL:    strings.TrimRight(firstNonEmpty(cfg.BaseURL, defaultURL), "/"),
		apiKey:     cfg.APIKey,
		model:      firstNonEmpty(cfg.Model, defaultModel),
		dimension:  dimension,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		cache:      cache,
		policy:     policy,
	}
}

// Embed returns one vector per text, calling the API only for cache misses
func (r *RemoteProvider) Embed(ctx context.Context, kind Kind, texts ...string) ([][]float32, error) {
	return embedAll(ctx, r.cache, kind, r.model, texts, func(ctx context.Context, batch []string) ([][]float32, error) {
		vecs, err := retry.Do(ctx, r.policy, func(ctx context.Context) ([][]float32, error) {
			return r.callAPI(ctx, kind, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}
		return vecs, nil
	})
}

// jinaTask maps a kind onto Jina's retrieval task adapters
func jinaTask(kind Kind) string {
	if kind == KindQuery {
		return "retrieval.query"
	}
	return "retrieval.passage"
}

func (r *RemoteProvider) callAPI(ctx context.Context, kind Kind, texts []string) ([][]float32, error) {
	payload := map[string]any{
		"input": texts,
		"model": r.model,
	}
	if r.name == ProviderJina {
		payload["task"] = jinaTask(kind)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s api error %d: %s", types.ErrRateLimited, r.name, resp.StatusCode, data)
		}
		return nil, fmt.Errorf("%s api error %d: %s", r.name, resp.StatusCode, data)
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vecs := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(vecs) || vecs[idx] != nil {
			idx = i
		}
		vecs[idx] = data.Embedding
	}
	return vecs, nil
}

func (r *RemoteProvider) Dimension() int { return r.dimension }

func (r *RemoteProvider) Provider() string { return r.name }

func (r *RemoteProvider) Model() string { return r.model }

func (r *RemoteProvider) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider derives deterministic vectors from content hashes. It needs no
// network and keeps vector search usable offline, but carries no semantics.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates an offline embedder
func NewLocalProvider(cache *Cache) *LocalProvider {
	return &LocalProvider{model: "local-hash", cache: cache}
}

// Embed hashes each word of each text into a fixed-size bag-of-words vector
func (l *LocalProvider) Embed(ctx context.Context, kind Kind, texts ...string) ([][]float32, error) {
	return embedAll(ctx, l.cache, kind, l.model, texts, func(_ context.Context, batch []string) ([][]float32, error) {
		vecs := make([][]float32, len(batch))
		for i, text := range batch {
			vecs[i] = wordHashVector(text)
		}
		return vecs, nil
	})
}

func wordHashVector(text string) []float32 {
	vector := make([]float32, LocalDimension)
	for i, word := range strings.Fields(strings.ToLower(text)) {
		sum := blake3.Sum256([]byte(word))
		slot := (int(sum[0])<<8 | int(sum[1])) % LocalDimension
		vector[slot] += 1 / float32(1+i%8)
	}
	return NormalizeVector(vector)
}

func (l *LocalProvider) Dimension() int { return LocalDimension }

func (l *LocalProvider) Provider() string { return ProviderLocal }

func (l *LocalProvider) Model() string { return l.model }

func (l *LocalProvider) Close() error { return nil }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
