package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Graph operations

func (s *SQLiteStorage) upsertSummaryWithQuerier(ctx context.Context, q querier, summary *CodeSummary) error {
	var embedding interface{}
	if len(summary.Embedding) > 0 {
		embedding = serializeVector(summary.Embedding)
	}
	now := time.Now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO code_summaries (file_path, summary, embedding, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			summary = excluded.summary,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, summary.FilePath, summary.Summary, embedding, now)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	summary.UpdatedAt = now
	return nil
}

// UpsertSummary stores a graph node, replacing any previous summary for the path
func (s *SQLiteStorage) UpsertSummary(ctx context.Context, summary *CodeSummary) error {
	return s.upsertSummaryWithQuerier(ctx, s.querier(), summary)
}

func scanSummaries(rows *sql.Rows) ([]*CodeSummary, error) {
	defer func() { _ = rows.Close() }()

	var out []*CodeSummary
	for rows.Next() {
		var cs CodeSummary
		var embedding []byte
		if err := rows.Scan(&cs.FilePath, &cs.Summary, &embedding, &cs.UpdatedAt); err != nil {
			return nil, err
		}
		if len(embedding) > 0 {
			cs.Embedding = deserializeVector(embedding)
		}
		out = append(out, &cs)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) getSummariesWithQuerier(ctx context.Context, q querier, filePaths []string) ([]*CodeSummary, error) {
	var out []*CodeSummary
	for _, batch := range batches(filePaths, maxBatchParams) {
		rows, err := q.QueryContext(ctx, `
			SELECT file_path, summary, embedding, updated_at
			FROM code_summaries
			WHERE file_path IN (`+placeholders(len(batch))+`)
		`, toArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query summaries: %w", err)
		}
		summaries, err := scanSummaries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summaries...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

// GetSummaries returns the stored nodes among filePaths, ordered by path
func (s *SQLiteStorage) GetSummaries(ctx context.Context, filePaths []string) ([]*CodeSummary, error) {
	return s.getSummariesWithQuerier(ctx, s.querier(), filePaths)
}

func (s *SQLiteStorage) addDependencyWithQuerier(ctx context.Context, q querier, dep *FileDependency) error {
	relation := dep.RelationType
	if relation == "" {
		relation = "import"
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO file_dependencies (source_file, target_file, relation_type)
		VALUES (?, ?, ?)
		ON CONFLICT(source_file, target_file) DO NOTHING
	`, dep.SourceFile, dep.TargetFile, relation)
	if err != nil {
		return fmt.Errorf("failed to add dependency: %w", err)
	}
	return nil
}

// AddDependency inserts an edge unless the (source, target) pair already exists
func (s *SQLiteStorage) AddDependency(ctx context.Context, dep *FileDependency) error {
	return s.addDependencyWithQuerier(ctx, s.querier(), dep)
}

func (s *SQLiteStorage) dependenciesFromWithQuerier(ctx context.Context, q querier, sourceFiles []string, limit int) ([]*FileDependency, error) {
	var out []*FileDependency
	for _, batch := range batches(sourceFiles, maxBatchParams) {
		rows, err := q.QueryContext(ctx, `
			SELECT source_file, target_file, relation_type
			FROM file_dependencies
			WHERE source_file IN (`+placeholders(len(batch))+`)
		`, toArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query dependencies: %w", err)
		}
		deps, err := scanDependencies(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, deps...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceFile != out[j].SourceFile {
			return out[i].SourceFile < out[j].SourceFile
		}
		return out[i].TargetFile < out[j].TargetFile
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DependenciesFrom returns edges leaving sourceFiles, ordered by
// (source, target) and truncated to limit when limit > 0
func (s *SQLiteStorage) DependenciesFrom(ctx context.Context, sourceFiles []string, limit int) ([]*FileDependency, error) {
	return s.dependenciesFromWithQuerier(ctx, s.querier(), sourceFiles, limit)
}

func scanDependencies(rows *sql.Rows) ([]*FileDependency, error) {
	defer func() { _ = rows.Close() }()

	var out []*FileDependency
	for rows.Next() {
		var d FileDependency
		if err := rows.Scan(&d.SourceFile, &d.TargetFile, &d.RelationType); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) neighborSummariesWithQuerier(ctx context.Context, q querier, sourceFile string) ([]*CodeSummary, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT cs.file_path, cs.summary, cs.embedding, cs.updated_at
		FROM file_dependencies d
		INNER JOIN code_summaries cs ON cs.file_path = d.target_file
		WHERE d.source_file = ?
		ORDER BY d.target_file
	`, sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbors: %w", err)
	}
	return scanSummaries(rows)
}

// NeighborSummaries returns the stored summaries of every file sourceFile
// depends on, ordered by target path. Dangling targets are skipped.
func (s *SQLiteStorage) NeighborSummaries(ctx context.Context, sourceFile string) ([]*CodeSummary, error) {
	return s.neighborSummariesWithQuerier(ctx, s.querier(), sourceFile)
}
