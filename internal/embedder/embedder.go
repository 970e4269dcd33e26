package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"lukechampine.com/blake3"
)

// Common errors
var (
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// DefaultCacheSize is used when a cache is requested without a size
const DefaultCacheSize = 10000

// Kind is what a text represents. Rules and summaries are indexed passages,
// queries are matched against them.
type Kind string

const (
	KindRule    Kind = "rule"
	KindSummary Kind = "summary"
	KindQuery   Kind = "query"
)

// Embedder produces vectors for rule, summary and query text. Vectors are
// returned in the order of texts.
type Embedder interface {
	Embed(ctx context.Context, kind Kind, texts ...string) ([][]float32, error)
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// RuleText is the text embedded for a business rule
func RuleText(title, description string) string {
	return strings.TrimSpace(title + "\n" + description)
}

type cacheKey struct {
	kind  Kind
	model string
	sum   [32]byte
}

// Cache is an LRU of vectors keyed by kind, model and BLAKE3 of the text
type Cache struct {
	cache *lru.Cache[cacheKey, []float32]
}

// NewCache creates a cache holding at most maxLen vectors
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[cacheKey, []float32](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

func key(kind Kind, model, text string) cacheKey {
	return cacheKey{kind: kind, model: model, sum: blake3.Sum256([]byte(text))}
}

// Get returns a copy of the cached vector
func (c *Cache) Get(kind Kind, model, text string) ([]float32, bool) {
	vec, ok := c.cache.Get(key(kind, model, text))
	if !ok {
		return nil, false
	}
	return append([]float32(nil), vec...), true
}

// Add stores a vector, evicting the least recently used entry when full
func (c *Cache) Add(kind Kind, model, text string, vec []float32) {
	c.cache.Add(key(kind, model, text), append([]float32(nil), vec...))
}

// Size returns the number of cached vectors
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// fetchFunc embeds a batch of at most MaxBatchSize texts
type fetchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// embedAll serves texts from the cache and fetches the misses in batches
func embedAll(ctx context.Context, cache *Cache, kind Kind, model string, texts []string, fetch fetchFunc) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyText, i)
		}
		if cache != nil {
			if vec, ok := cache.Get(kind, model, text); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += MaxBatchSize {
		idx := missing[start:min(start+MaxBatchSize, len(missing))]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		vecs, err := fetch(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(vecs), len(batch))
		}
		for j, i := range idx {
			out[i] = vecs[j]
			if cache != nil {
				cache.Add(kind, model, texts[i], vecs[j])
			}
		}
	}
	return out, nil
}

// NormalizeVector scales v to unit length
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}
