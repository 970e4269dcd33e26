package storage

import (
	"context"
	"time"

	"github.com/dshills/ruleminer/pkg/types"
)

// Storage defines the interface for persisting analysis runs, extracted
// rules and the dependency graph
type Storage interface {
	// Project operations
	EnsureProject(ctx context.Context, project *Project) (created bool, err error)
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)

	// Run operations
	RegisterRun(ctx context.Context, projectID string) (*AnalysisRun, error)
	GetRun(ctx context.Context, runID string) (*AnalysisRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus, errMsg string) error
	LatestRuns(ctx context.Context, limit int) ([]*RunInfo, error)

	// Business rule operations
	InsertRules(ctx context.Context, rules []*BusinessRule) error
	RulesForRun(ctx context.Context, runID string) ([]*BusinessRule, error)
	GetRules(ctx context.Context, ruleIDs []string) ([]*BusinessRule, error)
	FilePathsForRun(ctx context.Context, runID string) ([]string, error)
	CountRules(ctx context.Context, runID string) (int, error)

	// Graph operations
	UpsertSummary(ctx context.Context, summary *CodeSummary) error
	GetSummaries(ctx context.Context, filePaths []string) ([]*CodeSummary, error)
	AddDependency(ctx context.Context, dep *FileDependency) error
	DependenciesFrom(ctx context.Context, sourceFiles []string, limit int) ([]*FileDependency, error)
	NeighborSummaries(ctx context.Context, sourceFile string) ([]*CodeSummary, error)

	// Search operations
	SearchRulesVector(ctx context.Context, vector []float32, limit int, filters *RuleFilters) ([]VectorResult, error)
	SearchRulesText(ctx context.Context, query string, limit int, filters *RuleFilters) ([]TextResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*StoreStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// Project is one configured codebase. Rows are created once and never updated.
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// AnalysisRun is one end-to-end processing of a project
type AnalysisRun struct {
	RunID     string
	ProjectID string
	Status    types.RunStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunInfo is an AnalysisRun joined with its project name and rule count
type RunInfo struct {
	AnalysisRun
	ProjectName string
	RuleCount   int
}

// BusinessRule is one extracted finding. Rows are append-only.
type BusinessRule struct {
	RuleID      string
	RunID       string
	FilePath    string
	Title       string
	Description string
	CodeSnippet string
	Embedding   []float32 // nil when no embedder is configured
	CreatedAt   time.Time
}

// CodeSummary is a dependency-graph node, keyed globally by file path
type CodeSummary struct {
	FilePath  string
	Summary   string
	Embedding []float32
	UpdatedAt time.Time
}

// FileDependency is a directed dependency-graph edge. Targets may name files
// that have no CodeSummary row.
type FileDependency struct {
	SourceFile   string
	TargetFile   string
	RelationType string
}

// RuleFilters narrows rule searches
type RuleFilters struct {
	ProjectID    string
	RunID        string
	MinRelevance float64
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	RuleID          string
	SimilarityScore float64
}

// TextResult represents a result from full-text search
type TextResult struct {
	RuleID    string
	BM25Score float64
}

// StoreStatus contains row counts and health of the store
type StoreStatus struct {
	Projects       int
	Runs           int
	RunsByStatus   map[types.RunStatus]int
	Rules          int
	Summaries      int
	Dependencies   int
	RuleEmbeddings int
	SizeMB         float64
	SchemaVersion  string
	BuildMode      string
}

// ToFinding converts a stored rule to the shared finding type
func (r *BusinessRule) ToFinding() types.Finding {
	return types.Finding{
		FilePath:    r.FilePath,
		Title:       r.Title,
		Description: r.Description,
		CodeSnippet: r.CodeSnippet,
	}
}

// FromFinding builds a rule row for a finding produced in runID
func FromFinding(f types.Finding, runID string) *BusinessRule {
	return &BusinessRule{
		RunID:       runID,
		FilePath:    f.FilePath,
		Title:       f.Title,
		Description: f.Description,
		CodeSnippet: f.CodeSnippet,
	}
}
