// Package storage provides SQLite-based persistence for analysis runs,
// extracted business rules and the file dependency graph.
//
// # Database Schema
//
// Tables:
//   - projects: configured codebases, created once and never updated
//   - analysis_runs: one row per pipeline run with its lifecycle status
//   - business_rules: extracted findings, append-only, tagged with run_id
//   - business_rules_fts: FTS5 index over rule titles and descriptions
//   - code_summaries: graph nodes keyed globally by file path
//   - file_dependencies: graph edges; targets may have no summary row
//
// Foreign keys are enforced for rules -> runs -> projects. Edges carry no
// foreign key so unresolved imports can be stored as dangling targets.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("ruleminer.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	created, err := store.EnsureProject(ctx, &storage.Project{ID: "shop", Name: "Shop"})
//	run, err := store.RegisterRun(ctx, "shop")
//	err = store.UpdateRunStatus(ctx, run.RunID, types.RunAnalyzing, "")
//
// # Run Lifecycle
//
// RegisterRun marks any unfinished run of the same project FAILED with the
// message "superseded" before inserting the new IN_PROGRESS run, so a project
// has at most one run in flight. UpdateRunStatus rejects moves not allowed
// by types.RunStatus.CanTransition with ErrInvalidTransition.
//
// # Transactions
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.UpsertSummary(ctx, node); err != nil {
//	    return err
//	}
//	for _, edge := range edges {
//	    if err := tx.AddDependency(ctx, edge); err != nil {
//	        return err
//	    }
//	}
//	return tx.Commit()
//
// # Concurrency
//
// The database runs in WAL mode with a single open connection. Concurrent
// callers queue on the connection pool; rules are append-only and edges are
// insert-if-absent, so no further locking is needed.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with the
// sqlite_vec tag switches to mattn/go-sqlite3 and computes vector similarity
// in SQL.
package storage
