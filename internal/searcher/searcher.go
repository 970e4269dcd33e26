package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"lukechampine.com/blake3"

	"github.com/dshills/ruleminer/internal/embedder"
	"github.com/dshills/ruleminer/internal/storage"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // vector + keyword fused with RRF
	SearchModeVector  SearchMode = "vector"  // vector similarity only
	SearchModeKeyword SearchMode = "keyword" // FTS5 BM25 only
)

// Defaults
const (
	DefaultLimit       = 10
	MaxLimit           = 100
	DefaultRRFConstant = 60
	DefaultCacheSize   = 1000
	DefaultCacheTTL    = time.Hour
)

// ErrNoEmbedder is returned for vector searches when embeddings are disabled
var ErrNoEmbedder = errors.New("vector search requires an embedding provider")

// SearchRequest contains parameters for a rule search
type SearchRequest struct {
	Query       string
	Limit       int
	Mode        SearchMode
	ProjectID   string
	RunID       string
	FilePattern string // doublestar glob over rule file paths
	UseCache    bool
	CacheTTL    time.Duration
	RRFConstant float64
}

// Result is one ranked business rule
type Result struct {
	Rule           *storage.BusinessRule
	Rank           int
	RelevanceScore float64
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []Result
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher runs keyword, vector and hybrid searches over stored rules
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder // nil degrades hybrid to keyword
	logger   *slog.Logger

	cacheMu sync.Mutex
	cache   *lru.Cache[[32]byte, *cacheEntry]
}

// NewSearcher creates a Searcher. emb may be nil.
func NewSearcher(store storage.Storage, emb embedder.Embedder, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[[32]byte, *cacheEntry](DefaultCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{
		storage:  store,
		embedder: emb,
		logger:   logger,
		cache:    cache,
	}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		if cached, ok := s.checkCache(req); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	var response *SearchResponse
	var err error
	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		response, err = s.keywordSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(start)
	response.SearchMode = req.Mode
	s.logger.Debug("searcher.search",
		"mode", req.Mode,
		"query", req.Query,
		"results", response.TotalResults,
		"duration", response.Duration,
	)

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}
	return response, nil
}

func (s *Searcher) filters(req SearchRequest) *storage.RuleFilters {
	return &storage.RuleFilters{ProjectID: req.ProjectID, RunID: req.RunID}
}

// candidateLimit over-fetches when a file pattern will drop results later
func candidateLimit(req SearchRequest) int {
	n := req.Limit * 2
	if req.FilePattern != "" {
		n = req.Limit * 5
	}
	return n
}

func (s *Searcher) queryVector(ctx context.Context, query string) ([]float32, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	vecs, err := s.embedder.Embed(ctx, embedder.KindQuery, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	return vecs[0], nil
}

// hybridSearch runs both searches concurrently and fuses them with RRF.
// One side may fail; both failing is an error.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	limit := candidateLimit(req)

	var (
		wg        sync.WaitGroup
		vector    []storage.VectorResult
		text      []storage.TextResult
		vectorErr error
		textErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vec, err := s.queryVector(ctx, req.Query)
		if err != nil {
			vectorErr = err
			return
		}
		vector, vectorErr = s.storage.SearchRulesVector(ctx, vec, limit, s.filters(req))
	}()
	go func() {
		defer wg.Done()
		text, textErr = s.storage.SearchRulesText(ctx, req.Query, limit, s.filters(req))
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vectorErr != nil && textErr != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%w", vectorErr, textErr)
	}
	if vectorErr != nil && !errors.Is(vectorErr, ErrNoEmbedder) {
		s.logger.Warn("searcher.vector.failed", "error", vectorErr)
	}
	if textErr != nil {
		s.logger.Warn("searcher.text.failed", "error", textErr)
	}

	ranked := applyRRF(vector, text, req.RRFConstant)
	results, err := s.fetchResults(ctx, ranked, req)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vector),
		TextResults:   len(text),
	}, nil
}

func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vec, err := s.queryVector(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	vector, err := s.storage.SearchRulesVector(ctx, vec, candidateLimit(req), s.filters(req))
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedResult, len(vector))
	for i, vr := range vector {
		ranked[i] = rankedResult{ruleID: vr.RuleID, score: vr.SimilarityScore}
	}
	results, err := s.fetchResults(ctx, ranked, req)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, TotalResults: len(results), VectorResults: len(vector)}, nil
}

func (s *Searcher) keywordSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	text, err := s.storage.SearchRulesText(ctx, req.Query, candidateLimit(req), s.filters(req))
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedResult, len(text))
	for i, tr := range text {
		ranked[i] = rankedResult{ruleID: tr.RuleID, score: tr.BM25Score}
	}
	results, err := s.fetchResults(ctx, ranked, req)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, TotalResults: len(results), TextResults: len(text)}, nil
}

type rankedResult struct {
	ruleID string
	score  float64
}

// applyRRF fuses result lists: RRF(d) = sum of 1/(k + rank(d))
func applyRRF(vector []storage.VectorResult, text []storage.TextResult, k float64) []rankedResult {
	if k == 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[string]float64)
	for rank, vr := range vector {
		scores[vr.RuleID] += 1.0 / (k + float64(rank+1))
	}
	for rank, tr := range text {
		scores[tr.RuleID] += 1.0 / (k + float64(rank+1))
	}

	results := make([]rankedResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, rankedResult{ruleID: id, score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].ruleID < results[j].ruleID
	})
	return results
}

// fetchResults loads rules in rank order, applies the file pattern and
// assigns final ranks
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult, req SearchRequest) ([]Result, error) {
	if len(ranked) == 0 {
		return nil, nil
	}

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ruleID
	}
	rules, err := s.storage.GetRules(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	byID := make(map[string]*storage.BusinessRule, len(rules))
	for _, r := range rules {
		byID[r.RuleID] = r
	}

	results := make([]Result, 0, req.Limit)
	for _, r := range ranked {
		rule, ok := byID[r.ruleID]
		if !ok {
			continue
		}
		if !matchesPattern(req.FilePattern, rule.FilePath) {
			continue
		}
		results = append(results, Result{Rule: rule, Rank: len(results) + 1, RelevanceScore: r.score})
		if len(results) == req.Limit {
			break
		}
	}
	return results, nil
}

// matchesPattern matches the whole path, or any trailing run of its
// segments, so "**/billing/*.py" and "billing/*.py" both work on absolute paths
func matchesPattern(pattern, filePath string) bool {
	if pattern == "" {
		return true
	}
	p := strings.TrimPrefix(filePathToSlash(filePath), "/")
	if ok, _ := doublestar.Match(pattern, p); ok {
		return true
	}
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			if ok, _ := doublestar.Match(pattern, p[i+1:]); ok {
				return true
			}
		}
	}
	return false
}

func filePathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFConstant
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	if req.FilePattern != "" && !doublestar.ValidatePattern(req.FilePattern) {
		return fmt.Errorf("invalid file pattern: %s", req.FilePattern)
	}
	return nil
}

func (s *Searcher) checkCache(req SearchRequest) (*SearchResponse, bool) {
	key := computeQueryHash(req)

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil, false
	}
	return copySearchResponse(entry.response), true
}

func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. New runs add rules, so
// callers purge after each pipeline invocation.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

func copySearchResponse(src *SearchResponse) *SearchResponse {
	dst := *src
	dst.Results = make([]Result, len(src.Results))
	for i, r := range src.Results {
		dst.Results[i] = r
		if r.Rule != nil {
			rule := *r.Rule
			rule.Embedding = nil
			dst.Results[i].Rule = &rule
		}
	}
	return &dst
}

func computeQueryHash(req SearchRequest) [32]byte {
	key := strings.Join([]string{
		req.Query,
		string(req.Mode),
		req.ProjectID,
		req.RunID,
		req.FilePattern,
		fmt.Sprintf("%d|%.2f", req.Limit, req.RRFConstant),
	}, "|")
	return blake3.Sum256([]byte(key))
}
