package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ruleminer/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func setupRun(t *testing.T, s *SQLiteStorage, projectID string) *AnalysisRun {
	ctx := context.Background()
	_, err := s.EnsureProject(ctx, &Project{ID: projectID, Name: "Project " + projectID})
	require.NoError(t, err)
	run, err := s.RegisterRun(ctx, projectID)
	require.NoError(t, err)
	return run
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)

	version, err := SchemaVersion(context.Background(), storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestEnsureProject_CreateIfAbsent(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	created, err := storage.EnsureProject(ctx, &Project{ID: "shop", Name: "Shop"})
	require.NoError(t, err)
	assert.True(t, created)

	// A second call never updates the existing row
	again := &Project{ID: "shop", Name: "Renamed"}
	created, err = storage.EnsureProject(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Shop", again.Name)

	got, err := storage.GetProject(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, "Shop", got.Name)

	projects, err := storage.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestGetProject_NotFound(t *testing.T) {
	storage := setupTestDB(t)

	_, err := storage.GetProject(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterRun(t *testing.T) {
	storage := setupTestDB(t)
	run := setupRun(t, storage, "shop")

	assert.Len(t, run.RunID, 36)
	assert.Equal(t, types.RunInProgress, run.Status)

	got, err := storage.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "shop", got.ProjectID)
	assert.Equal(t, types.RunInProgress, got.Status)
}

func TestRegisterRun_UnknownProject(t *testing.T) {
	storage := setupTestDB(t)

	_, err := storage.RegisterRun(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRegisterRun_SupersedesUnfinished(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	first := setupRun(t, storage, "shop")
	require.NoError(t, storage.UpdateRunStatus(ctx, first.RunID, types.RunAnalyzing, ""))

	other := setupRun(t, storage, "other")

	second, err := storage.RegisterRun(ctx, "shop")
	require.NoError(t, err)

	old, err := storage.GetRun(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, old.Status)
	assert.Equal(t, SupersededMessage, old.Error)

	untouched, err := storage.GetRun(ctx, other.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunInProgress, untouched.Status)

	current, err := storage.GetRun(ctx, second.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunInProgress, current.Status)
}

func TestUpdateRunStatus_Transitions(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := setupRun(t, storage, "shop")

	// Skipping ANALYZING is rejected
	err := storage.UpdateRunStatus(ctx, run.RunID, types.RunReporting, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	for _, next := range []types.RunStatus{types.RunAnalyzing, types.RunReporting, types.RunCompleted} {
		require.NoError(t, storage.UpdateRunStatus(ctx, run.RunID, next, ""))
	}

	// Terminal runs never move again
	err = storage.UpdateRunStatus(ctx, run.RunID, types.RunFailed, "late")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := storage.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, got.Status)
	assert.Empty(t, got.Error)
}

func TestUpdateRunStatus_FailedRecordsError(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := setupRun(t, storage, "shop")

	require.NoError(t, storage.UpdateRunStatus(ctx, run.RunID, types.RunFailed, "report call failed"))

	got, err := storage.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, got.Status)
	assert.Equal(t, "report call failed", got.Error)
}

func TestUpdateRunStatus_NotFound(t *testing.T) {
	storage := setupTestDB(t)

	err := storage.UpdateRunStatus(context.Background(), "missing", types.RunAnalyzing, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertRules_AndQueries(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := setupRun(t, storage, "shop")
	otherRun := setupRun(t, storage, "other")

	rules := []*BusinessRule{
		{RunID: run.RunID, FilePath: "/repo/b.py", Title: "Credit limit", Description: "Orders over 1000 need approval"},
		{RunID: run.RunID, FilePath: "/repo/a.py", Title: "Tax", Description: "VAT applies", CodeSnippet: "rate = 0.2"},
		{RunID: run.RunID, FilePath: "/repo/a.py", Title: "Rounding"},
		{RunID: otherRun.RunID, FilePath: "/other/x.py", Title: "Elsewhere"},
	}
	require.NoError(t, storage.InsertRules(ctx, rules))
	for _, r := range rules {
		assert.NotEmpty(t, r.RuleID)
	}

	got, err := storage.RulesForRun(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Tax", got[0].Title)
	assert.Equal(t, "rate = 0.2", got[0].CodeSnippet)
	assert.Equal(t, "Rounding", got[1].Title)
	assert.Equal(t, "Credit limit", got[2].Title)

	paths, err := storage.FilePathsForRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/repo/a.py", "/repo/b.py"}, paths)

	n, err := storage.CountRules(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	byID, err := storage.GetRules(ctx, []string{rules[3].RuleID, "missing", rules[0].RuleID})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, "Elsewhere", byID[0].Title)
	assert.Equal(t, "Credit limit", byID[1].Title)
}

func TestInsertRules_RequiresRun(t *testing.T) {
	storage := setupTestDB(t)

	err := storage.InsertRules(context.Background(), []*BusinessRule{
		{RunID: "no-such-run", FilePath: "/x.py", Title: "orphan"},
	})
	assert.Error(t, err)
}

func TestInsertRules_Embedding(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := setupRun(t, storage, "shop")

	require.NoError(t, storage.InsertRules(ctx, []*BusinessRule{
		{RunID: run.RunID, FilePath: "/a.py", Title: "t", Embedding: []float32{0.5, -1, 2}},
	}))

	got, err := storage.RulesForRun(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{0.5, -1, 2}, got[0].Embedding)
}

func TestUpsertSummary_Replaces(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertSummary(ctx, &CodeSummary{FilePath: "/a.py", Summary: "old"}))
	require.NoError(t, storage.UpsertSummary(ctx, &CodeSummary{FilePath: "/a.py", Summary: "new"}))
	require.NoError(t, storage.UpsertSummary(ctx, &CodeSummary{FilePath: "/b.py", Summary: "b"}))

	got, err := storage.GetSummaries(ctx, []string{"/b.py", "/a.py", "/missing.py"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/a.py", got[0].FilePath)
	assert.Equal(t, "new", got[0].Summary)
	assert.Equal(t, "/b.py", got[1].FilePath)
}

func TestAddDependency_InsertIfAbsent(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	dep := &FileDependency{SourceFile: "/a.py", TargetFile: "requests"}
	require.NoError(t, storage.AddDependency(ctx, dep))
	require.NoError(t, storage.AddDependency(ctx, dep))

	deps, err := storage.DependenciesFrom(ctx, []string{"/a.py"}, 0)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "import", deps[0].RelationType)
}

func TestNeighborSummaries(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertSummary(ctx, &CodeSummary{FilePath: "/z.py", Summary: "File: /z.py"}))
	require.NoError(t, storage.UpsertSummary(ctx, &CodeSummary{FilePath: "/b.py", Summary: "File: /b.py"}))
	for _, target := range []string{"/z.py", "dangling.module", "/b.py"} {
		require.NoError(t, storage.AddDependency(ctx, &FileDependency{SourceFile: "/a.py", TargetFile: target}))
	}

	got, err := storage.NeighborSummaries(ctx, "/a.py")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/b.py", got[0].FilePath)
	assert.Equal(t, "/z.py", got[1].FilePath)

	none, err := storage.NeighborSummaries(ctx, "/isolated.py")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDependenciesFrom_BatchesAndLimit(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	sources := make([]string, 0, 700)
	for i := 0; i < 700; i++ {
		src := fmt.Sprintf("/repo/f%04d.py", i)
		sources = append(sources, src)
		require.NoError(t, storage.AddDependency(ctx, &FileDependency{SourceFile: src, TargetFile: "shared"}))
	}

	all, err := storage.DependenciesFrom(ctx, sources, 0)
	require.NoError(t, err)
	assert.Len(t, all, 700)

	limited, err := storage.DependenciesFrom(ctx, sources, 200)
	require.NoError(t, err)
	require.Len(t, limited, 200)
	assert.Equal(t, "/repo/f0000.py", limited[0].SourceFile)
	assert.Equal(t, "/repo/f0199.py", limited[199].SourceFile)
}

func TestLatestRuns(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	var last *AnalysisRun
	for i := 0; i < 7; i++ {
		last = setupRun(t, storage, fmt.Sprintf("p%d", i))
	}
	require.NoError(t, storage.InsertRules(ctx, []*BusinessRule{
		{RunID: last.RunID, FilePath: "/a.py", Title: "r1"},
		{RunID: last.RunID, FilePath: "/a.py", Title: "r2"},
	}))

	runs, err := storage.LatestRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 5)
	assert.Equal(t, last.RunID, runs[0].RunID)
	assert.Equal(t, "Project p6", runs[0].ProjectName)
	assert.Equal(t, 2, runs[0].RuleCount)
}

func TestSearchRulesText(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := setupRun(t, storage, "shop")
	other := setupRun(t, storage, "other")

	require.NoError(t, storage.InsertRules(ctx, []*BusinessRule{
		{RunID: run.RunID, FilePath: "/a.py", Title: "Credit limit", Description: "Orders above the credit limit require approval"},
		{RunID: run.RunID, FilePath: "/b.py", Title: "Tax", Description: "VAT is added to every invoice"},
		{RunID: other.RunID, FilePath: "/c.py", Title: "Credit check", Description: "Customers are credit checked"},
	}))

	results, err := storage.SearchRulesText(ctx, "credit", 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.Greater(t, r.BM25Score, 0.0)
		assert.LessOrEqual(t, r.BM25Score, 1.0)
	}

	scoped, err := storage.SearchRulesText(ctx, "credit", 10, &RuleFilters{ProjectID: "shop"})
	require.NoError(t, err)
	assert.Len(t, scoped, 1)

	// Operators and punctuation are treated as plain terms
	_, err = storage.SearchRulesText(ctx, `credit AND (NOT "tax*`, 10, nil)
	require.NoError(t, err)

	_, err = storage.SearchRulesText(ctx, "  ", 10, nil)
	assert.Error(t, err)
}

func TestSearchRulesVector_Fallback(t *testing.T) {
	if VectorExtensionAvailable {
		t.Skip("in-Go ranking only runs without the sqlite-vec extension")
	}
	storage := setupTestDB(t)
	ctx := context.Background()
	run := setupRun(t, storage, "shop")

	rules := []*BusinessRule{
		{RunID: run.RunID, FilePath: "/a.py", Title: "near", Embedding: []float32{1, 0, 0}},
		{RunID: run.RunID, FilePath: "/b.py", Title: "far", Embedding: []float32{0, 1, 0}},
		{RunID: run.RunID, FilePath: "/c.py", Title: "mid", Embedding: []float32{1, 1, 0}},
		{RunID: run.RunID, FilePath: "/d.py", Title: "wrong dims", Embedding: []float32{1, 0}},
		{RunID: run.RunID, FilePath: "/e.py", Title: "none"},
	}
	require.NoError(t, storage.InsertRules(ctx, rules))

	results, err := storage.SearchRulesVector(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, rules[0].RuleID, results[0].RuleID)
	assert.Equal(t, rules[2].RuleID, results[1].RuleID)
	assert.Equal(t, rules[1].RuleID, results[2].RuleID)

	filtered, err := storage.SearchRulesVector(ctx, []float32{1, 0, 0}, 10, &RuleFilters{MinRelevance: 0.5})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestBeginTx_CommitRollback(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertSummary(ctx, &CodeSummary{FilePath: "/rolled.py", Summary: "x"}))
	require.NoError(t, tx.Rollback())

	tx, err = storage.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertSummary(ctx, &CodeSummary{FilePath: "/kept.py", Summary: "y"}))
	require.NoError(t, tx.AddDependency(ctx, &FileDependency{SourceFile: "/kept.py", TargetFile: "/rolled.py"}))
	_, err = tx.BeginTx(ctx)
	assert.Error(t, err)
	require.NoError(t, tx.Commit())

	got, err := storage.GetSummaries(ctx, []string{"/rolled.py", "/kept.py"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/kept.py", got[0].FilePath)
}

func TestReset(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := setupRun(t, storage, "shop")
	require.NoError(t, storage.InsertRules(ctx, []*BusinessRule{{RunID: run.RunID, FilePath: "/a.py", Title: "t"}}))

	require.NoError(t, storage.Reset(ctx))

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Projects)
	assert.Equal(t, 0, status.Rules)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	run := setupRun(t, storage, "shop")
	require.NoError(t, storage.UpdateRunStatus(ctx, run.RunID, types.RunFailed, "boom"))
	setupRun(t, storage, "other")
	require.NoError(t, storage.UpsertSummary(ctx, &CodeSummary{FilePath: "/a.py", Summary: "s"}))

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Projects)
	assert.Equal(t, 2, status.Runs)
	assert.Equal(t, 1, status.RunsByStatus[types.RunFailed])
	assert.Equal(t, 1, status.RunsByStatus[types.RunInProgress])
	assert.Equal(t, 1, status.Summaries)
	assert.Equal(t, BuildMode, status.BuildMode)
}
