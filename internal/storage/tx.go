package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dshills/ruleminer/pkg/types"
)

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

func (t *sqliteTx) EnsureProject(ctx context.Context, project *Project) (bool, error) {
	return t.storage.ensureProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, projectID string) (*Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) ListProjects(ctx context.Context) ([]*Project, error) {
	return t.storage.listProjectsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) RegisterRun(ctx context.Context, projectID string) (*AnalysisRun, error) {
	return t.storage.registerRunWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) GetRun(ctx context.Context, runID string) (*AnalysisRun, error) {
	return t.storage.getRunWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus, errMsg string) error {
	return t.storage.updateRunStatusWithQuerier(ctx, t.querier(), runID, status, errMsg)
}

func (t *sqliteTx) LatestRuns(ctx context.Context, limit int) ([]*RunInfo, error) {
	return t.storage.latestRunsWithQuerier(ctx, t.querier(), limit)
}

func (t *sqliteTx) InsertRules(ctx context.Context, rules []*BusinessRule) error {
	return t.storage.insertRulesWithQuerier(ctx, t.querier(), rules)
}

func (t *sqliteTx) RulesForRun(ctx context.Context, runID string) ([]*BusinessRule, error) {
	return t.storage.rulesForRunWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) GetRules(ctx context.Context, ruleIDs []string) ([]*BusinessRule, error) {
	return t.storage.getRulesWithQuerier(ctx, t.querier(), ruleIDs)
}

func (t *sqliteTx) FilePathsForRun(ctx context.Context, runID string) ([]string, error) {
	return t.storage.filePathsForRunWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) CountRules(ctx context.Context, runID string) (int, error) {
	return t.storage.countRulesWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) UpsertSummary(ctx context.Context, summary *CodeSummary) error {
	return t.storage.upsertSummaryWithQuerier(ctx, t.querier(), summary)
}

func (t *sqliteTx) GetSummaries(ctx context.Context, filePaths []string) ([]*CodeSummary, error) {
	return t.storage.getSummariesWithQuerier(ctx, t.querier(), filePaths)
}

func (t *sqliteTx) AddDependency(ctx context.Context, dep *FileDependency) error {
	return t.storage.addDependencyWithQuerier(ctx, t.querier(), dep)
}

func (t *sqliteTx) DependenciesFrom(ctx context.Context, sourceFiles []string, limit int) ([]*FileDependency, error) {
	return t.storage.dependenciesFromWithQuerier(ctx, t.querier(), sourceFiles, limit)
}

func (t *sqliteTx) NeighborSummaries(ctx context.Context, sourceFile string) ([]*CodeSummary, error) {
	return t.storage.neighborSummariesWithQuerier(ctx, t.querier(), sourceFile)
}

func (t *sqliteTx) SearchRulesVector(ctx context.Context, vector []float32, limit int, filters *RuleFilters) ([]VectorResult, error) {
	return t.storage.searchRulesVectorWithQuerier(ctx, t.querier(), vector, limit, filters)
}

func (t *sqliteTx) SearchRulesText(ctx context.Context, query string, limit int, filters *RuleFilters) ([]TextResult, error) {
	return t.storage.searchRulesTextWithQuerier(ctx, t.querier(), query, limit, filters)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*StoreStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
