package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/ruleminer/internal/config"
	"github.com/dshills/ruleminer/internal/embedder"
	"github.com/dshills/ruleminer/internal/extractor"
	"github.com/dshills/ruleminer/internal/graph"
	"github.com/dshills/ruleminer/internal/metrics"
	"github.com/dshills/ruleminer/internal/parser"
	"github.com/dshills/ruleminer/internal/storage"
	"github.com/dshills/ruleminer/pkg/types"
)

// Defaults
const (
	DefaultMaxConcurrentJobs = 6
	MaxFileTreeEntries       = 200
	FileTreeHeader           = "Project File Structure:"
)

// Phase names used in logs and metrics
const (
	PhaseDiscovery = "discovery"
	PhaseIndexing  = "indexing"
	PhaseAnalysis  = "analysis"
	PhaseReporting = "reporting"
)

// Extractor analyzes one file
type Extractor interface {
	Extract(ctx context.Context, path, language, graphContext string, opts ...extractor.Option) (*types.FileResult, error)
}

// Reporter writes the report for one run
type Reporter interface {
	Generate(ctx context.Context, runID, projectName string, files []string) (string, error)
}

// Repository resolves sources and enumerates their files
type Repository interface {
	Resolve(ctx context.Context, sourceRef string) (string, error)
	ListSourceFiles(root string, extensions, excludeDirs []string) ([]string, error)
	Revision(path string) string
}

// Config contains configuration for the pipeline
type Config struct {
	MaxConcurrentJobs int
	FileExtensions    []string
	ExcludeDirs       []string
	Logger            *slog.Logger
}

// Pipeline coordinates Discovery -> Indexing -> Analysis -> Reporting
type Pipeline struct {
	store     storage.Storage
	graph     *graph.Store
	repos     Repository
	indexer   *parser.Parser
	extractor Extractor
	reporter  Reporter
	embedder  embedder.Embedder // optional

	cfg    Config
	locks  projectLocks
	logger *slog.Logger
}

// New creates a Pipeline. emb may be nil to disable embeddings.
func New(store storage.Storage, repos Repository, ex Extractor, rep Reporter, emb embedder.Embedder, cfg Config) *Pipeline {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		graph:     graph.New(store),
		repos:     repos,
		indexer:   parser.New(logger),
		extractor: ex,
		reporter:  rep,
		embedder:  emb,
		cfg:       cfg,
		logger:    logger,
	}
}

// projectRun is the in-memory state of one project's run
type projectRun struct {
	codebase config.Codebase
	root     string
	run      *storage.AnalysisRun
	files    []string
	fileTree string
	summary  *RunSummary

	indexed       atomic.Int64
	indexFailures atomic.Int64
	analyzed      atomic.Int64
	failed        atomic.Int64
	rules         atomic.Int64
}

func (pr *projectRun) active() bool {
	return !pr.summary.Status.IsTerminal()
}

// task is one (project, file, language, run) unit of analysis work
type task struct {
	project  *projectRun
	path     string
	language string
}

// Run analyzes every codebase. Per-file, per-project and per-run failures
// are recorded in the Summary; only an error outside the phase loops (such
// as cancellation) is returned.
func (p *Pipeline) Run(ctx context.Context, codebases []config.Codebase) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	projects, tasks := p.discover(ctx, codebases, summary)
	defer func() {
		for _, pr := range projects {
			p.locks.Release(pr.codebase.ID)
		}
	}()

	if err := ctx.Err(); err == nil {
		p.index(ctx, projects, tasks)
		p.transitionAll(ctx, projects, types.RunAnalyzing)
	}

	if err := ctx.Err(); err == nil {
		results := p.analyze(ctx, tasks)
		p.logger.Info("pipeline.analysis.done", "files", len(results))
	}

	if err := ctx.Err(); err == nil {
		p.report(ctx, projects)
	}

	// cancelled runs must not stay in flight
	if err := ctx.Err(); err != nil {
		bg := context.WithoutCancel(ctx)
		for _, pr := range projects {
			if pr.active() {
				p.fail(bg, pr, fmt.Errorf("cancelled: %w", err))
			}
		}
		p.collect(projects, summary)
		summary.Duration = time.Since(start)
		return summary, err
	}

	p.collect(projects, summary)
	summary.Duration = time.Since(start)
	p.logger.Info("pipeline.done",
		"runs", len(summary.Runs),
		"completed", summary.Completed(),
		"skipped", len(summary.Skipped),
		"duration", summary.Duration,
	)
	return summary, nil
}

// discover prepares a run per valid codebase and the flat task list
func (p *Pipeline) discover(ctx context.Context, codebases []config.Codebase, summary *Summary) ([]*projectRun, []task) {
	defer observe(PhaseDiscovery, time.Now())
	p.logger.Info("pipeline.phase.start", "phase", PhaseDiscovery, "codebases", len(codebases))

	var projects []*projectRun
	var tasks []task
	skip := func(id string, err error) {
		p.logger.Error("pipeline.codebase.skipped", "codebase", id, "error", err)
		summary.Skipped = append(summary.Skipped, SkippedCodebase{ID: id, Reason: err.Error()})
	}

	for _, cb := range codebases {
		if ctx.Err() != nil {
			break
		}
		if err := cb.Validate(); err != nil {
			skip(cb.ID, err)
			continue
		}
		if !p.locks.TryAcquire(cb.ID) {
			skip(cb.ID, fmt.Errorf("an analysis of project %s is already running", cb.ID))
			continue
		}

		pr, err := p.discoverProject(ctx, cb)
		if err != nil {
			p.locks.Release(cb.ID)
			skip(cb.ID, err)
			continue
		}
		projects = append(projects, pr)

		if !pr.active() {
			continue
		}
		for _, f := range pr.files {
			tasks = append(tasks, task{project: pr, path: f, language: cb.LanguageFor(f)})
		}
	}

	p.logger.Info("pipeline.phase.done", "phase", PhaseDiscovery, "projects", len(projects), "files", len(tasks))
	return projects, tasks
}

func (p *Pipeline) discoverProject(ctx context.Context, cb config.Codebase) (*projectRun, error) {
	if _, err := p.store.EnsureProject(ctx, &storage.Project{ID: cb.ID, Name: cb.Name}); err != nil {
		return nil, fmt.Errorf("%w: ensure project: %w", types.ErrPersistence, err)
	}

	root, err := p.repos.Resolve(ctx, cb.Source)
	if err != nil {
		return nil, err
	}

	run, err := p.store.RegisterRun(ctx, cb.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: register run: %w", types.ErrPersistence, err)
	}
	metrics.RecordRunTransition(string(types.RunInProgress))

	pr := &projectRun{
		codebase: cb,
		root:     root,
		run:      run,
		summary: &RunSummary{
			ProjectID:   cb.ID,
			ProjectName: cb.Name,
			RunID:       run.RunID,
			Revision:    p.repos.Revision(root),
			Status:      types.RunInProgress,
		},
	}

	files, err := p.repos.ListSourceFiles(root, p.cfg.FileExtensions, p.cfg.ExcludeDirs)
	if err != nil {
		p.fail(ctx, pr, fmt.Errorf("list source files: %w", err))
		return pr, nil
	}
	pr.files = files
	pr.fileTree = fileTree(root, files)
	pr.summary.FilesDiscovered = len(files)
	metrics.RecordFilesDiscovered(len(files))

	p.logger.Info("pipeline.project.discovered",
		"project", cb.ID,
		"run_id", run.RunID,
		"root", root,
		"revision", pr.summary.Revision,
		"files", len(files),
	)
	return pr, nil
}

// index builds the dependency graph for every discovered file
func (p *Pipeline) index(ctx context.Context, projects []*projectRun, tasks []task) {
	defer observe(PhaseIndexing, time.Now())
	p.logger.Info("pipeline.phase.start", "phase", PhaseIndexing, "files", len(tasks))

	resolvers := make(map[*projectRun]*parser.Resolver, len(projects))
	for _, pr := range projects {
		resolvers[pr] = parser.NewResolver(pr.files)
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		if err := p.indexFile(ctx, t, resolvers[t.project]); err != nil {
			t.project.indexFailures.Add(1)
			metrics.RecordIndexFailure()
			p.logger.Warn("pipeline.index.failed", "path", t.path, "error", err)
			continue
		}
		t.project.indexed.Add(1)
		metrics.RecordFileIndexed()
	}

	p.logger.Info("pipeline.phase.done", "phase", PhaseIndexing)
}

func (p *Pipeline) indexFile(ctx context.Context, t task, resolver *parser.Resolver) error {
	meta := p.indexer.IndexFile(t.path, t.language)
	if meta.Err != nil {
		// the failure summary is still stored as the node
		p.logger.Warn("pipeline.index.parse", "path", t.path, "error", meta.Err)
	}

	if err := p.graph.SaveNode(ctx, t.path, meta.Summary, p.embedOne(ctx, embedder.KindSummary, meta.Summary)); err != nil {
		return err
	}

	for _, imp := range meta.Imports {
		targets, ok := resolver.Resolve(t.path, imp)
		if !ok {
			targets = []string{imp}
		}
		for _, target := range targets {
			if target == t.path {
				continue
			}
			if err := p.graph.AddEdge(ctx, t.path, target, graph.RelationImport); err != nil {
				return err
			}
		}
	}

	if meta.Err != nil {
		return meta.Err
	}
	return nil
}

// analyze runs every task behind the concurrency gate. Tasks never return
// errors to the group, so one failure cannot cancel its siblings.
func (p *Pipeline) analyze(ctx context.Context, tasks []task) []*types.FileResult {
	defer observe(PhaseAnalysis, time.Now())
	p.logger.Info("pipeline.phase.start", "phase", PhaseAnalysis, "files", len(tasks), "max_concurrent", p.cfg.MaxConcurrentJobs)

	gate := semaphore.NewWeighted(int64(p.cfg.MaxConcurrentJobs))
	results := make([]*types.FileResult, len(tasks))

	var g errgroup.Group
	for i, t := range tasks {
		g.Go(func() error {
			if err := gate.Acquire(ctx, 1); err != nil {
				results[i] = types.NewFailedResult(t.path, t.language, t.project.run.RunID, err)
				t.project.failed.Add(1)
				return nil
			}
			defer gate.Release(1)

			res := p.analyzeFile(ctx, t)
			results[i] = res
			if res.Succeeded() {
				t.project.analyzed.Add(1)
				t.project.rules.Add(int64(len(res.Findings)))
			} else {
				t.project.failed.Add(1)
				p.logger.Error("pipeline.analysis.failed", "path", t.path, "run_id", t.project.run.RunID, "error", res.Err)
			}
			metrics.RecordAnalysis(res.Succeeded())
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("pipeline.phase.done", "phase", PhaseAnalysis)
	return results
}

func (p *Pipeline) analyzeFile(ctx context.Context, t task) (res *types.FileResult) {
	runID := t.project.run.RunID
	defer func() {
		if r := recover(); r != nil {
			res = types.NewFailedResult(t.path, t.language, runID, fmt.Errorf("%w: panic: %v", types.ErrUnexpected, r))
		}
	}()

	graphContext, err := p.graph.ContextFor(ctx, t.path)
	if err != nil {
		p.logger.Warn("pipeline.context.failed", "path", t.path, "error", err)
		graphContext = ""
	}

	cb := t.project.codebase
	res, err = p.extractor.Extract(ctx, t.path, t.language, graphContext,
		extractor.WithProject(cb.Name, cb.EntryPoints),
		extractor.WithFileTree(t.project.fileTree))
	if err != nil {
		return types.NewFailedResult(t.path, t.language, runID, err)
	}
	res.RunID = runID

	if len(res.Findings) == 0 {
		return res
	}
	rules := make([]*storage.BusinessRule, 0, len(res.Findings))
	texts := make([]string, 0, len(res.Findings))
	for _, f := range res.Findings {
		rules = append(rules, storage.FromFinding(f, runID))
		texts = append(texts, embedder.RuleText(f.Title, f.Description))
	}
	for i, vec := range p.embed(ctx, embedder.KindRule, texts) {
		rules[i].Embedding = vec
	}
	if err := p.store.InsertRules(ctx, rules); err != nil {
		return types.NewFailedResult(t.path, t.language, runID, fmt.Errorf("%w: store rules: %w", types.ErrPersistence, err))
	}
	metrics.RecordRulesStored(len(rules))
	return res
}

// report generates each active run's report; one failure never stops the rest
func (p *Pipeline) report(ctx context.Context, projects []*projectRun) {
	defer observe(PhaseReporting, time.Now())
	p.logger.Info("pipeline.phase.start", "phase", PhaseReporting, "runs", len(projects))

	p.transitionAll(ctx, projects, types.RunReporting)

	for _, pr := range projects {
		if !pr.active() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		path, err := p.reporter.Generate(ctx, pr.run.RunID, pr.codebase.Name, pr.files)
		if err != nil {
			p.fail(ctx, pr, fmt.Errorf("report: %w", err))
			continue
		}
		pr.summary.ReportPath = path
		p.transition(ctx, pr, types.RunCompleted)
	}

	p.logger.Info("pipeline.phase.done", "phase", PhaseReporting)
}

func (p *Pipeline) transitionAll(ctx context.Context, projects []*projectRun, status types.RunStatus) {
	for _, pr := range projects {
		if pr.active() {
			p.transition(ctx, pr, status)
		}
	}
}

// transition moves a run forward; a storage failure fails the run
func (p *Pipeline) transition(ctx context.Context, pr *projectRun, status types.RunStatus) {
	if err := p.store.UpdateRunStatus(ctx, pr.run.RunID, status, ""); err != nil {
		p.logger.Error("pipeline.run.transition.failed", "run_id", pr.run.RunID, "status", status, "error", err)
		p.fail(ctx, pr, fmt.Errorf("%w: transition to %s: %w", types.ErrPersistence, status, err))
		return
	}
	pr.summary.Status = status
	metrics.RecordRunTransition(string(status))
	p.logger.Info("pipeline.run.transition", "run_id", pr.run.RunID, "project", pr.codebase.ID, "status", status)
}

func (p *Pipeline) fail(ctx context.Context, pr *projectRun, cause error) {
	pr.summary.Status = types.RunFailed
	pr.summary.Error = cause.Error()
	metrics.RecordRunTransition(string(types.RunFailed))
	p.logger.Error("pipeline.run.failed", "run_id", pr.run.RunID, "project", pr.codebase.ID, "error", cause)

	err := p.store.UpdateRunStatus(ctx, pr.run.RunID, types.RunFailed, cause.Error())
	if err != nil && !errors.Is(err, storage.ErrInvalidTransition) {
		p.logger.Error("pipeline.run.fail.persist", "run_id", pr.run.RunID, "error", err)
	}
}

func (p *Pipeline) collect(projects []*projectRun, summary *Summary) {
	for _, pr := range projects {
		s := pr.summary
		s.FilesIndexed = int(pr.indexed.Load())
		s.IndexFailures = int(pr.indexFailures.Load())
		s.FilesAnalyzed = int(pr.analyzed.Load())
		s.FilesFailed = int(pr.failed.Load())
		s.RulesStored = int(pr.rules.Load())
		summary.Runs = append(summary.Runs, s)
	}
}

// embed returns one vector per text, or nil when embeddings are disabled or fail
func (p *Pipeline) embed(ctx context.Context, kind embedder.Kind, texts []string) [][]float32 {
	if p.embedder == nil || len(texts) == 0 {
		return nil
	}
	vecs, err := p.embedder.Embed(ctx, kind, texts...)
	if err != nil {
		metrics.RecordEmbeddingError()
		p.logger.Warn("pipeline.embed.failed", "kind", kind, "texts", len(texts), "error", err)
		return nil
	}
	return vecs
}

func (p *Pipeline) embedOne(ctx context.Context, kind embedder.Kind, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if vecs := p.embed(ctx, kind, []string{text}); len(vecs) == 1 {
		return vecs[0]
	}
	return nil
}

// fileTree lists the project's files relative to root, bounded to
// MaxFileTreeEntries lines
func fileTree(root string, files []string) string {
	if len(files) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(FileTreeHeader)
	for i, f := range files {
		if i == MaxFileTreeEntries {
			fmt.Fprintf(&b, "\n- ... (%d more)", len(files)-MaxFileTreeEntries)
			break
		}
		rel, err := filepath.Rel(root, f)
		if err != nil {
			rel = f
		}
		b.WriteString("\n- ")
		b.WriteString(filepath.ToSlash(rel))
	}
	return b.String()
}

func observe(phase string, start time.Time) {
	metrics.ObservePhase(phase, time.Since(start))
}
