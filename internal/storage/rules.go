package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxBatchParams keeps IN (...) lists under SQLite's bound-parameter limit
const maxBatchParams = 500

// Business rule operations

// insertRulesWithQuerier appends rules; rule ids are generated when empty
func (s *SQLiteStorage) insertRulesWithQuerier(ctx context.Context, q querier, rules []*BusinessRule) error {
	now := time.Now()
	for _, r := range rules {
		if r.RuleID == "" {
			r.RuleID = uuid.New().String()
		}
		var embedding interface{}
		if len(r.Embedding) > 0 {
			embedding = serializeVector(r.Embedding)
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO business_rules (rule_id, run_id, file_path, title, description, code_snippet, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.RuleID, r.RunID, r.FilePath, r.Title, r.Description, r.CodeSnippet, embedding, now)
		if err != nil {
			return fmt.Errorf("failed to insert rule: %w", err)
		}
		r.CreatedAt = now
	}
	return nil
}

// InsertRules appends all rules atomically
func (s *SQLiteStorage) InsertRules(ctx context.Context, rules []*BusinessRule) error {
	if len(rules) == 0 {
		return nil
	}
	return s.inTx(ctx, func(q querier) error {
		return s.insertRulesWithQuerier(ctx, q, rules)
	})
}

const ruleColumns = `rule_id, run_id, file_path, title, description, code_snippet, embedding, created_at`

func scanRules(rows *sql.Rows) ([]*BusinessRule, error) {
	defer func() { _ = rows.Close() }()

	var rules []*BusinessRule
	for rows.Next() {
		var r BusinessRule
		var description, snippet sql.NullString
		var embedding []byte
		if err := rows.Scan(&r.RuleID, &r.RunID, &r.FilePath, &r.Title, &description, &snippet, &embedding, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Description = description.String
		r.CodeSnippet = snippet.String
		if len(embedding) > 0 {
			r.Embedding = deserializeVector(embedding)
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

func (s *SQLiteStorage) rulesForRunWithQuerier(ctx context.Context, q querier, runID string) ([]*BusinessRule, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM business_rules
		WHERE run_id = ?
		ORDER BY file_path, rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	return scanRules(rows)
}

// RulesForRun returns every rule extracted in a run, ordered by file path
func (s *SQLiteStorage) RulesForRun(ctx context.Context, runID string) ([]*BusinessRule, error) {
	return s.rulesForRunWithQuerier(ctx, s.querier(), runID)
}

// getRulesWithQuerier loads rules by id, preserving the order of ruleIDs
func (s *SQLiteStorage) getRulesWithQuerier(ctx context.Context, q querier, ruleIDs []string) ([]*BusinessRule, error) {
	byID := make(map[string]*BusinessRule, len(ruleIDs))
	for _, batch := range batches(ruleIDs, maxBatchParams) {
		rows, err := q.QueryContext(ctx, `
			SELECT `+ruleColumns+`
			FROM business_rules
			WHERE rule_id IN (`+placeholders(len(batch))+`)
		`, toArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query rules: %w", err)
		}
		rules, err := scanRules(rows)
		if err != nil {
			return nil, err
		}
		for _, r := range rules {
			byID[r.RuleID] = r
		}
	}

	out := make([]*BusinessRule, 0, len(byID))
	for _, id := range ruleIDs {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetRules retrieves rules by ID; unknown IDs are skipped
func (s *SQLiteStorage) GetRules(ctx context.Context, ruleIDs []string) ([]*BusinessRule, error) {
	return s.getRulesWithQuerier(ctx, s.querier(), ruleIDs)
}

func (s *SQLiteStorage) filePathsForRunWithQuerier(ctx context.Context, q querier, runID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT file_path FROM business_rules WHERE run_id = ? ORDER BY file_path
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// FilePathsForRun returns the distinct files that produced rules in a run
func (s *SQLiteStorage) FilePathsForRun(ctx context.Context, runID string) ([]string, error) {
	return s.filePathsForRunWithQuerier(ctx, s.querier(), runID)
}

func (s *SQLiteStorage) countRulesWithQuerier(ctx context.Context, q querier, runID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM business_rules WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// CountRules counts the rules of a run
func (s *SQLiteStorage) CountRules(ctx context.Context, runID string) (int, error) {
	return s.countRulesWithQuerier(ctx, s.querier(), runID)
}

// Helpers

func batches(items []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(items []string) []interface{} {
	args := make([]interface{}, len(items))
	for i, item := range items {
		args[i] = item
	}
	return args
}
