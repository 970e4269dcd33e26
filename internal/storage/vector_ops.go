package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// searchRulesVectorWithQuerier ranks rule embeddings by cosine similarity
func (s *SQLiteStorage) searchRulesVectorWithQuerier(ctx context.Context, q querier, queryVector []float32, limit int, filters *RuleFilters) ([]VectorResult, error) {
	if VectorExtensionAvailable {
		return searchRulesVectorOptimized(ctx, q, queryVector, limit, filters)
	}
	return searchRulesVectorFallback(ctx, q, queryVector, limit, filters)
}

// SearchRulesVector ranks rules by cosine similarity to vector
func (s *SQLiteStorage) SearchRulesVector(ctx context.Context, vector []float32, limit int, filters *RuleFilters) ([]VectorResult, error) {
	return s.searchRulesVectorWithQuerier(ctx, s.querier(), vector, limit, filters)
}

// searchRulesVectorOptimized computes distances in SQL with sqlite-vec
func searchRulesVectorOptimized(ctx context.Context, q querier, queryVector []float32, limit int, filters *RuleFilters) ([]VectorResult, error) {
	if limit <= 0 {
		return []VectorResult{}, nil
	}
	blob := serializeVector(queryVector)

	query := `
		SELECT b.rule_id, 1.0 - vec_distance_cosine(b.embedding, ?) AS similarity
		FROM business_rules b
		INNER JOIN analysis_runs r ON r.run_id = b.run_id
		WHERE b.embedding IS NOT NULL
	`
	args := []interface{}{blob}
	query, args = applyRuleFilters(query, args, filters)

	if filters != nil && filters.MinRelevance > 0 {
		query += " AND (1.0 - vec_distance_cosine(b.embedding, ?)) >= ?"
		args = append(args, blob, filters.MinRelevance)
	}
	query += " ORDER BY similarity DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.RuleID, &r.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// searchRulesVectorFallback loads candidate embeddings and ranks them in Go
func searchRulesVectorFallback(ctx context.Context, q querier, queryVector []float32, limit int, filters *RuleFilters) ([]VectorResult, error) {
	query := `
		SELECT b.rule_id, b.embedding
		FROM business_rules b
		INNER JOIN analysis_runs r ON r.run_id = b.run_id
		WHERE b.embedding IS NOT NULL
	`
	query, args := applyRuleFilters(query, nil, filters)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector, filters)
	if err != nil {
		return nil, err
	}
	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// searchRulesTextWithQuerier performs BM25 full-text search over titles and descriptions
func (s *SQLiteStorage) searchRulesTextWithQuerier(ctx context.Context, q querier, query string, limit int, filters *RuleFilters) ([]TextResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, fmt.Errorf("empty search query")
	}

	sqlQuery := `
		SELECT b.rule_id, bm25(business_rules_fts) AS score
		FROM business_rules_fts
		INNER JOIN business_rules b ON b.rowid = business_rules_fts.rowid
		INNER JOIN analysis_runs r ON r.run_id = b.run_id
		WHERE business_rules_fts MATCH ?
	`
	args := []interface{}{sanitized}
	sqlQuery, args = applyRuleFilters(sqlQuery, args, filters)

	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows, filters)
}

// SearchRulesText ranks rules by BM25 full-text relevance
func (s *SQLiteStorage) SearchRulesText(ctx context.Context, query string, limit int, filters *RuleFilters) ([]TextResult, error) {
	return s.searchRulesTextWithQuerier(ctx, s.querier(), query, limit, filters)
}

// Helper functions

// applyRuleFilters adds project and run conditions; the query must alias
// business_rules as b and analysis_runs as r
func applyRuleFilters(query string, args []interface{}, filters *RuleFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}
	if filters.ProjectID != "" {
		query += " AND r.project_id = ?"
		args = append(args, filters.ProjectID)
	}
	if filters.RunID != "" {
		query += " AND b.run_id = ?"
		args = append(args, filters.RunID)
	}
	return query, args
}

// candidate represents a rule with its similarity score
type candidate struct {
	ruleID string
	score  float64
}

func computeSimilarityScores(rows *sql.Rows, queryVector []float32, filters *RuleFilters) ([]candidate, error) {
	var candidates []candidate
	for rows.Next() {
		var ruleID string
		var blob []byte
		if err := rows.Scan(&ruleID, &blob); err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue
		}

		similarity := cosineSimilarity(queryVector, vector)
		if filters != nil && filters.MinRelevance > 0 && similarity < filters.MinRelevance {
			continue
		}
		candidates = append(candidates, candidate{ruleID: ruleID, score: similarity})
	}
	return candidates, rows.Err()
}

func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{RuleID: candidates[i].ruleID, SimilarityScore: candidates[i].score}
	}
	return results
}

// collectTextResults normalizes BM25 scores (negative, lower is better) into (0, 1]
func collectTextResults(rows *sql.Rows, filters *RuleFilters) ([]TextResult, error) {
	results := make([]TextResult, 0)
	for rows.Next() {
		var r TextResult
		if err := rows.Scan(&r.RuleID, &r.BM25Score); err != nil {
			return nil, err
		}
		r.BM25Score = 1.0 / (1.0 + math.Abs(r.BM25Score)/50.0)

		if filters != nil && filters.MinRelevance > 0 && r.BM25Score < filters.MinRelevance {
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
}

// sanitizeFTSQuery turns free text into an FTS5 query of quoted terms joined
// by OR, so operators and punctuation in user input are never interpreted.
func sanitizeFTSQuery(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(terms) == 0 {
		return ""
	}
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
