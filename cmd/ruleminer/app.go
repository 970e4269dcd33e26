package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/dshills/ruleminer/internal/config"
	"github.com/dshills/ruleminer/internal/embedder"
	"github.com/dshills/ruleminer/internal/extractor"
	"github.com/dshills/ruleminer/internal/graph"
	"github.com/dshills/ruleminer/internal/llm"
	"github.com/dshills/ruleminer/internal/logging"
	"github.com/dshills/ruleminer/internal/metrics"
	"github.com/dshills/ruleminer/internal/pipeline"
	"github.com/dshills/ruleminer/internal/report"
	"github.com/dshills/ruleminer/internal/repo"
	"github.com/dshills/ruleminer/internal/searcher"
	"github.com/dshills/ruleminer/internal/storage"
	"github.com/dshills/ruleminer/pkg/types"
)

// app holds the components shared by subcommands
type app struct {
	opts   *rootOptions
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
	store  *storage.SQLiteStorage
	emb    embedder.Embedder
	llm    llm.Provider
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.codebases != "" {
		cfg.CodebaseConfig = opts.codebases
	}

	logger, closer, err := logging.New(cfg.Logging, opts.stderr)
	if err != nil {
		return nil, fmt.Errorf("%w: logging: %w", types.ErrConfiguration, err)
	}
	slog.SetDefault(logger)

	return &app{opts: opts, cfg: cfg, logger: logger, closer: closer}, nil
}

func (a *app) Close() {
	if a.emb != nil {
		_ = a.emb.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

func (a *app) openStore() (*storage.SQLiteStorage, error) {
	if a.store != nil {
		return a.store, nil
	}
	if dir := filepath.Dir(a.cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %w", types.ErrPersistence, err)
		}
	}
	store, err := storage.NewSQLiteStorage(a.cfg.DBPath)
	if err != nil {
		return nil, &UserError{
			Message:  "Cannot open the ruleminer database",
			Cause:    err.Error(),
			Fix:      "Check RE_DB_PATH and file permissions, or run: ruleminer reset --yes",
			ExitCode: ExitDatabase,
			Err:      err,
		}
	}
	a.logger.Debug("storage.open", "path", a.cfg.DBPath, "driver", storage.DriverName, "mode", storage.BuildMode)
	a.store = store
	return store, nil
}

func (a *app) provider() (llm.Provider, error) {
	if a.llm != nil {
		return a.llm, nil
	}
	p, err := llm.NewProvider(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.logger.Info("llm.provider", "name", p.Name(), "model", a.cfg.LLM.Model)
	a.llm = p
	return p, nil
}

// embedder returns nil when embeddings are disabled
func (a *app) embedder() (embedder.Embedder, error) {
	if a.emb != nil {
		return a.emb, nil
	}
	emb, err := embedder.New(embedder.Config{
		Provider:  a.cfg.Embedding.Provider,
		CacheSize: a.cfg.Embedding.CacheSize,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedder: %w", types.ErrConfiguration, err)
	}
	if emb != nil {
		a.logger.Info("embedder.ready", "provider", emb.Provider(), "model", emb.Model())
	}
	a.emb = emb
	return emb, nil
}

func (a *app) repos() *repo.Manager {
	return repo.NewManager(a.cfg.RepoRoot, a.cfg.Exclude.FilesGlob, a.logger)
}

func (a *app) reporter(store storage.Storage, provider llm.Provider) *report.Assembler {
	return report.New(store, graph.New(store), provider, report.Config{
		ReportsDir:      a.cfg.ReportsDir,
		TokenBudget:     a.cfg.TokenBudget,
		TokensPerMinute: a.cfg.TokensPerMinute,
		MaxThrottle:     a.cfg.MaxThrottle,
		Logger:          a.logger,
	})
}

// pipeline wires every component the four phases need
func (a *app) pipeline() (*pipeline.Pipeline, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	provider, err := a.provider()
	if err != nil {
		return nil, err
	}
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}

	repos := a.repos()
	ex := extractor.New(repos, provider, extractor.Config{
		ChunkThreshold: a.cfg.ChunkThreshold,
		MaxUnitChars:   a.cfg.MaxUnitChars,
		Logger:         a.logger,
	})
	return pipeline.New(store, repos, ex, a.reporter(store, provider), emb, pipeline.Config{
		MaxConcurrentJobs: a.cfg.MaxConcurrentJobs,
		FileExtensions:    a.cfg.FileExtensions,
		ExcludeDirs:       a.cfg.Exclude.Dirs,
		Logger:            a.logger,
	}), nil
}

func (a *app) searcher() (*searcher.Searcher, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	return searcher.NewSearcher(store, emb, a.logger), nil
}

// selectedCodebases loads codebases.yaml and keeps the given ids, or all
func (a *app) selectedCodebases(ids []string) ([]config.Codebase, error) {
	all, err := config.LoadCodebases(a.cfg.CodebaseConfig)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]config.Codebase, len(all))
	for _, cb := range all {
		byID[cb.ID] = cb
	}
	selected := make([]config.Codebase, 0, len(ids))
	for _, id := range ids {
		cb, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: codebase %q not found in %s", types.ErrConfiguration, id, a.cfg.CodebaseConfig)
		}
		selected = append(selected, cb)
	}
	return selected, nil
}

func addMetricsFlag(fs *pflag.FlagSet, addr *string) {
	fs.StringVar(addr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

// serveMetrics exposes /metrics until ctx is done. An empty addr is a no-op.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics.http.start", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics.http.error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
