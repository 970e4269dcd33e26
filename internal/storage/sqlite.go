package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/ruleminer/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a run status change is not allowed
	ErrInvalidTransition = errors.New("invalid run status transition")
)

// SupersededMessage is recorded on a run replaced by a newer one for the same project
const SupersededMessage = "superseded"

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; concurrent pipeline tasks queue on the pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Reset rolls back every migration and reapplies the schema, discarding all data
func (s *SQLiteStorage) Reset(ctx context.Context) error {
	for {
		v, err := currentVersion(ctx, s.db)
		if err != nil {
			return err
		}
		if v.String() == "0.0.0" {
			break
		}
		if err := RollbackMigration(ctx, s.db); err != nil {
			return err
		}
	}
	return ApplyMigrations(ctx, s.db)
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// inTx runs fn inside a transaction on the main handle
func (s *SQLiteStorage) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Project operations

// ensureProjectWithQuerier inserts the project unless a row with its id exists.
// Existing rows are never modified.
func (s *SQLiteStorage) ensureProjectWithQuerier(ctx context.Context, q querier, project *Project) (bool, error) {
	now := time.Now()
	result, err := q.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, project.ID, project.Name, now)
	if err != nil {
		return false, fmt.Errorf("failed to create project: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		project.CreatedAt = now
		return true, nil
	}

	existing, err := s.getProjectWithQuerier(ctx, q, project.ID)
	if err != nil {
		return false, err
	}
	*project = *existing
	return false, nil
}

// EnsureProject inserts the project if missing and reports whether it was created
func (s *SQLiteStorage) EnsureProject(ctx context.Context, project *Project) (bool, error) {
	return s.ensureProjectWithQuerier(ctx, s.querier(), project)
}

func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier, projectID string) (*Project, error) {
	var project Project
	err := q.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM projects WHERE id = ?
	`, projectID).Scan(&project.ID, &project.Name, &project.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetProject retrieves a project by ID
func (s *SQLiteStorage) GetProject(ctx context.Context, projectID string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) listProjectsWithQuerier(ctx context.Context, q querier) ([]*Project, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, created_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var projects []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// ListProjects returns all projects ordered by ID
func (s *SQLiteStorage) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.listProjectsWithQuerier(ctx, s.querier())
}

// Run operations

// registerRunWithQuerier fails any unfinished run of the project as
// superseded, then inserts a new IN_PROGRESS run.
func (s *SQLiteStorage) registerRunWithQuerier(ctx context.Context, q querier, projectID string) (*AnalysisRun, error) {
	now := time.Now()
	_, err := q.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status = ?, error = ?, updated_at = ?
		WHERE project_id = ? AND status NOT IN (?, ?)
	`, string(types.RunFailed), SupersededMessage, now, projectID, string(types.RunCompleted), string(types.RunFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to supersede runs: %w", err)
	}

	run := &AnalysisRun{
		RunID:     uuid.New().String(),
		ProjectID: projectID,
		Status:    types.RunInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO analysis_runs (run_id, project_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.RunID, run.ProjectID, string(run.Status), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to register run: %w", err)
	}
	return run, nil
}

// RegisterRun supersedes unfinished runs of the project and starts a new IN_PROGRESS run
func (s *SQLiteStorage) RegisterRun(ctx context.Context, projectID string) (*AnalysisRun, error) {
	var run *AnalysisRun
	err := s.inTx(ctx, func(q querier) error {
		var err error
		run, err = s.registerRunWithQuerier(ctx, q, projectID)
		return err
	})
	return run, err
}

func (s *SQLiteStorage) getRunWithQuerier(ctx context.Context, q querier, runID string) (*AnalysisRun, error) {
	var run AnalysisRun
	var status string
	var errMsg sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT run_id, project_id, status, error, created_at, updated_at
		FROM analysis_runs WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.ProjectID, &status, &errMsg, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Status = types.RunStatus(status)
	run.Error = errMsg.String
	return &run, nil
}

// GetRun retrieves an analysis run by ID
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*AnalysisRun, error) {
	return s.getRunWithQuerier(ctx, s.querier(), runID)
}

// updateRunStatusWithQuerier applies a status change allowed by
// types.RunStatus.CanTransition. errMsg is stored only for FAILED.
func (s *SQLiteStorage) updateRunStatusWithQuerier(ctx context.Context, q querier, runID string, status types.RunStatus, errMsg string) error {
	run, err := s.getRunWithQuerier(ctx, q, runID)
	if err != nil {
		return err
	}
	if !run.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, status)
	}

	var errValue interface{}
	if status == types.RunFailed && errMsg != "" {
		errValue = errMsg
	}

	_, err = q.ExecContext(ctx, `
		UPDATE analysis_runs SET status = ?, error = ?, updated_at = ? WHERE run_id = ?
	`, string(status), errValue, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// UpdateRunStatus moves a run to status, rejecting illegal transitions
func (s *SQLiteStorage) UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus, errMsg string) error {
	return s.inTx(ctx, func(q querier) error {
		return s.updateRunStatusWithQuerier(ctx, q, runID, status, errMsg)
	})
}

func (s *SQLiteStorage) latestRunsWithQuerier(ctx context.Context, q querier, limit int) ([]*RunInfo, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := q.QueryContext(ctx, `
		SELECT r.run_id, r.project_id, p.name, r.status, r.error, r.created_at, r.updated_at,
		       (SELECT COUNT(*) FROM business_rules b WHERE b.run_id = r.run_id)
		FROM analysis_runs r
		INNER JOIN projects p ON p.id = r.project_id
		ORDER BY r.created_at DESC, r.rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*RunInfo
	for rows.Next() {
		var info RunInfo
		var status string
		var errMsg sql.NullString
		if err := rows.Scan(&info.RunID, &info.ProjectID, &info.ProjectName, &status, &errMsg,
			&info.CreatedAt, &info.UpdatedAt, &info.RuleCount); err != nil {
			return nil, err
		}
		info.Status = types.RunStatus(status)
		info.Error = errMsg.String
		runs = append(runs, &info)
	}
	return runs, rows.Err()
}

// LatestRuns returns the most recent runs, newest first
func (s *SQLiteStorage) LatestRuns(ctx context.Context, limit int) ([]*RunInfo, error) {
	return s.latestRunsWithQuerier(ctx, s.querier(), limit)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*StoreStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*StoreStatus, error) {
	status := &StoreStatus{
		RunsByStatus: make(map[types.RunStatus]int),
		BuildMode:    BuildMode,
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM projects", &status.Projects},
		{"SELECT COUNT(*) FROM analysis_runs", &status.Runs},
		{"SELECT COUNT(*) FROM business_rules", &status.Rules},
		{"SELECT COUNT(*) FROM code_summaries", &status.Summaries},
		{"SELECT COUNT(*) FROM file_dependencies", &status.Dependencies},
		{"SELECT COUNT(*) FROM business_rules WHERE embedding IS NOT NULL", &status.RuleEmbeddings},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}

	rows, err := q.QueryContext(ctx, "SELECT status, COUNT(*) FROM analysis_runs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count runs by status: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		status.RunsByStatus[types.RunStatus(st)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	if v, err := currentVersion(ctx, q); err == nil {
		status.SchemaVersion = v.String()
	}

	return status, nil
}
