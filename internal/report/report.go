// Package report assembles the per-run project report: it gathers the run's
// rules and graph data, fits them into the completion budget, and writes the
// generated Markdown.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/ruleminer/internal/llm"
	"github.com/dshills/ruleminer/internal/metrics"
	"github.com/dshills/ruleminer/internal/prompts"
	"github.com/dshills/ruleminer/internal/retry"
	"github.com/dshills/ruleminer/internal/storage"
	"github.com/dshills/ruleminer/pkg/types"
)

// Defaults
const (
	DefaultTokenBudget     = 200000
	DefaultTokensPerMinute = 1000000
	DefaultMaxThrottle     = 60 * time.Second

	// truncated rule descriptions keep this many bytes
	descriptionLimit = 200
)

// RuleSource reads a run's persisted rules
type RuleSource interface {
	RulesForRun(ctx context.Context, runID string) ([]*storage.BusinessRule, error)
	FilePathsForRun(ctx context.Context, runID string) ([]string, error)
}

// GraphSource reads node summaries and edges for a set of files
type GraphSource interface {
	Summaries(ctx context.Context, paths []string) ([]*storage.CodeSummary, error)
	EdgesFrom(ctx context.Context, paths []string) ([]*storage.FileDependency, error)
}

// Config configures an Assembler
type Config struct {
	ReportsDir      string
	TokenBudget     int
	TokensPerMinute int
	MaxThrottle     time.Duration
	Policy          retry.Policy
	Logger          *slog.Logger

	// Now and Sleep are replaced in tests
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Assembler generates one report per run
type Assembler struct {
	rules    RuleSource
	graph    GraphSource
	provider llm.Provider
	cfg      Config
	logger   *slog.Logger
}

// New creates an Assembler
func New(rules RuleSource, graph GraphSource, provider llm.Provider, cfg Config) *Assembler {
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "reports"
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	if cfg.TokensPerMinute <= 0 {
		cfg.TokensPerMinute = DefaultTokensPerMinute
	}
	if cfg.MaxThrottle <= 0 {
		cfg.MaxThrottle = DefaultMaxThrottle
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
		cfg.Policy.Name = "report"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Policy.Logger = logger
	return &Assembler{rules: rules, graph: graph, provider: provider, cfg: cfg, logger: logger}
}

// Generate writes the report for runID and returns its path. When files is
// nil the run's file paths are loaded from its rules.
func (a *Assembler) Generate(ctx context.Context, runID, projectName string, files []string) (string, error) {
	a.logger.Info("report.generate.start", "run_id", runID, "project", projectName)
	now := a.cfg.Now()

	rules, err := a.rules.RulesForRun(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("%w: load rules: %w", types.ErrPersistence, err)
	}
	if len(rules) == 0 {
		a.logger.Warn("report.rules.empty", "run_id", runID)
	}
	if files == nil {
		if files, err = a.rules.FilePathsForRun(ctx, runID); err != nil {
			return "", fmt.Errorf("%w: load file paths: %w", types.ErrPersistence, err)
		}
	}

	summaries, err := a.graph.Summaries(ctx, files)
	if err != nil {
		return "", err
	}
	edges, err := a.graph.EdgesFrom(ctx, files)
	if err != nil {
		return "", err
	}

	doc := NewDocument(projectName, now, rules, summaries, edges)
	tokens := doc.FitBudget(a.cfg.TokenBudget)
	if doc.Truncated {
		a.logger.Warn("report.context.truncated", "run_id", runID, "tokens", tokens, "budget", a.cfg.TokenBudget)
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encode report context: %w", types.ErrUnexpected, err)
	}
	prompt, err := prompts.Render(prompts.ProjectSummary, prompts.SummaryData{
		ProjectName: projectName,
		Date:        doc.Date,
		Truncated:   doc.Truncated,
		Document:    string(body),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrUnexpected, err)
	}

	if wait := ThrottleDelay(types.EstimateTokens(prompt), a.cfg.TokensPerMinute, a.cfg.MaxThrottle); wait > 0 {
		a.logger.Info("report.throttle", "run_id", runID, "wait", wait)
		if err := a.cfg.Sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	content, err := retry.Do(ctx, a.cfg.Policy, func(ctx context.Context) (string, error) {
		start := time.Now()
		resp, err := a.provider.Complete(ctx, llm.Request{Prompt: prompt, System: prompts.ReportSystem})
		metrics.RecordLLMCall("report", time.Since(start), err)
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}

	if err := os.MkdirAll(a.cfg.ReportsDir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	path := filepath.Join(a.cfg.ReportsDir, FileName(projectName, runID, now))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	a.logger.Info("report.generate.done", "run_id", runID, "path", path, "rules", len(doc.BusinessRules))
	return path, nil
}

// FileName is <Project_Name>_<runID>_<YYYYMMDD-HHMMSS>_Summary.md
func FileName(projectName, runID string, at time.Time) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '_'
		}
		return r
	}, strings.TrimSpace(projectName))
	return fmt.Sprintf("%s_%s_%s_Summary.md", name, runID, at.Format("20060102-150405"))
}

// ThrottleDelay spreads a request of the given size over the per-minute
// token allowance, capped at max.
func ThrottleDelay(tokens, tokensPerMinute int, max time.Duration) time.Duration {
	if tokens <= 0 || tokensPerMinute <= 0 {
		return 0
	}
	d := time.Duration(float64(tokens) / float64(tokensPerMinute) * float64(time.Minute))
	if d > max {
		return max
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
