package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ruleminer/internal/storage"
	"github.com/dshills/ruleminer/pkg/types"
)

func setupStore(t *testing.T) *Store {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestContextFor_OrderedNeighbors(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveNode(ctx, "/repo/b.py", "File: /repo/b.py", nil))
	require.NoError(t, s.SaveNode(ctx, "/repo/c.py", "File: /repo/c.py", nil))
	require.NoError(t, s.AddEdge(ctx, "/repo/a.py", "/repo/c.py", ""))
	require.NoError(t, s.AddEdge(ctx, "/repo/a.py", "/repo/b.py", RelationImport))
	require.NoError(t, s.AddEdge(ctx, "/repo/a.py", "requests", ""))

	got, err := s.ContextFor(ctx, "/repo/a.py")
	require.NoError(t, err)
	assert.Equal(t, ContextHeader+"\n\nFile: /repo/b.py\n\nFile: /repo/c.py", got)
}

func TestContextFor_Empty(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	got, err := s.ContextFor(ctx, "/repo/alone.py")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	// Edges that only reach dangling or blank targets still yield nothing
	require.NoError(t, s.SaveNode(ctx, "/repo/blank.py", "   ", nil))
	require.NoError(t, s.AddEdge(ctx, "/repo/x.py", "/repo/blank.py", ""))
	require.NoError(t, s.AddEdge(ctx, "/repo/x.py", "os", ""))

	got, err = s.ContextFor(ctx, "/repo/x.py")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestContextFor_ReflectsLatestSummary(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveNode(ctx, "/repo/b.py", "old", nil))
	require.NoError(t, s.AddEdge(ctx, "/repo/a.py", "/repo/b.py", ""))
	require.NoError(t, s.SaveNode(ctx, "/repo/b.py", "new", nil))

	got, err := s.ContextFor(ctx, "/repo/a.py")
	require.NoError(t, err)
	assert.Equal(t, ContextHeader+"\n\nnew", got)
}

func TestAddEdge_Idempotent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddEdge(ctx, "/a.py", "/b.py", ""))
	}

	edges, err := s.EdgesFrom(ctx, []string{"/a.py"})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestEdgesFrom_Capped(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for i := 0; i < MaxReportEdges+50; i++ {
		require.NoError(t, s.AddEdge(ctx, "/a.py", fmt.Sprintf("mod%03d", i), ""))
	}

	edges, err := s.EdgesFrom(ctx, []string{"/a.py"})
	require.NoError(t, err)
	assert.Len(t, edges, MaxReportEdges)
}

type failingStorage struct {
	storage.Storage
}

func (failingStorage) UpsertSummary(context.Context, *storage.CodeSummary) error {
	return fmt.Errorf("disk full")
}

func TestSaveNode_PersistenceFailure(t *testing.T) {
	s := New(failingStorage{})

	err := s.SaveNode(context.Background(), "/a.py", "x", nil)
	assert.ErrorIs(t, err, types.ErrPersistence)
}
