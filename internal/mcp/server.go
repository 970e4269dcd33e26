package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/ruleminer/internal/config"
	"github.com/dshills/ruleminer/internal/pipeline"
	"github.com/dshills/ruleminer/internal/searcher"
	"github.com/dshills/ruleminer/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "ruleminer"

	// RecentRuns is how many runs get_status lists
	RecentRuns = 5
)

// ServerVersion is set by the CLI from its build version
var ServerVersion = "dev"

// Analyzer runs the pipeline over a set of codebases
type Analyzer interface {
	Run(ctx context.Context, codebases []config.Codebase) (*pipeline.Summary, error)
}

// CodebaseLoader returns the configured codebases
type CodebaseLoader func() ([]config.Codebase, error)

// Deps are the application components the tools call into
type Deps struct {
	Storage   storage.Storage
	Analyzer  Analyzer
	Reporter  pipeline.Reporter
	Searcher  *searcher.Searcher
	Codebases CodebaseLoader
	Logger    *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp  *server.MCPServer
	deps Deps

	// one analyze call at a time; project locks in the pipeline guard the rest
	analyzeMu sync.Mutex
	logger    *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps) (*Server, error) {
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	s := &Server{
		mcp:    mcpServer,
		deps:   deps,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp.serve.start", "name", ServerName, "version", ServerVersion)
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	if s.deps.Analyzer != nil && s.deps.Codebases != nil {
		s.mcp.AddTool(analyzeCodebasesTool(), s.handleAnalyzeCodebases)
	}
	if s.deps.Reporter != nil {
		s.mcp.AddTool(generateReportTool(), s.handleGenerateReport)
	}
	if s.deps.Searcher != nil {
		s.mcp.AddTool(searchRulesTool(), s.handleSearchRules)
	}
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}

const instructions = `ruleminer extracts business rules from source code with an LLM and stores them per analysis run.
Use analyze_codebases to run the pipeline, get_status to list recent runs,
search_rules to find stored rules and generate_report to rebuild a run's report.`
