// Package graph is the dependency graph store: file summaries as nodes and
// import relations as directed edges, persisted through internal/storage.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/ruleminer/internal/storage"
	"github.com/dshills/ruleminer/pkg/types"
)

const (
	// ContextHeader opens the neighbor context injected into extraction prompts
	ContextHeader = "### Explicit Dependencies (Graph)"

	// MaxReportEdges bounds the edges included in a report request
	MaxReportEdges = 200

	// RelationImport is the relation recorded for import edges
	RelationImport = "import"
)

// Store answers graph queries over a storage backend
type Store struct {
	db storage.Storage
}

// New creates a graph store
func New(db storage.Storage) *Store {
	return &Store{db: db}
}

// SaveNode upserts the summary node for path
func (s *Store) SaveNode(ctx context.Context, path, summary string, embedding []float32) error {
	err := s.db.UpsertSummary(ctx, &storage.CodeSummary{
		FilePath:  path,
		Summary:   summary,
		Embedding: embedding,
	})
	if err != nil {
		return fmt.Errorf("%w: save node %s: %v", types.ErrPersistence, path, err)
	}
	return nil
}

// AddEdge records source -> target unless the pair already exists
func (s *Store) AddEdge(ctx context.Context, source, target, relation string) error {
	if relation == "" {
		relation = RelationImport
	}
	err := s.db.AddDependency(ctx, &storage.FileDependency{
		SourceFile:   source,
		TargetFile:   target,
		RelationType: relation,
	})
	if err != nil {
		return fmt.Errorf("%w: add edge %s -> %s: %v", types.ErrPersistence, source, target, err)
	}
	return nil
}

// ContextFor renders the summaries of every file path depends on, ordered by
// target path and separated by blank lines. It returns "" when path has no
// edges with a stored, non-empty summary.
func (s *Store) ContextFor(ctx context.Context, path string) (string, error) {
	neighbors, err := s.db.NeighborSummaries(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: neighbors of %s: %v", types.ErrPersistence, path, err)
	}

	parts := make([]string, 0, len(neighbors)+1)
	parts = append(parts, ContextHeader)
	for _, n := range neighbors {
		if strings.TrimSpace(n.Summary) == "" {
			continue
		}
		parts = append(parts, n.Summary)
	}
	if len(parts) == 1 {
		return "", nil
	}
	return strings.Join(parts, "\n\n"), nil
}

// Summaries returns the stored summaries for paths, ordered by path
func (s *Store) Summaries(ctx context.Context, paths []string) ([]*storage.CodeSummary, error) {
	return s.db.GetSummaries(ctx, paths)
}

// EdgesFrom returns at most MaxReportEdges edges leaving paths
func (s *Store) EdgesFrom(ctx context.Context, paths []string) ([]*storage.FileDependency, error) {
	return s.db.DependenciesFrom(ctx, paths, MaxReportEdges)
}
