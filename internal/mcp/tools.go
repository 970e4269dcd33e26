package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/ruleminer/internal/config"
	"github.com/dshills/ruleminer/internal/searcher"
	"github.com/dshills/ruleminer/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeRunNotFound        = -32001 // Unknown analysis run
	ErrorCodeAnalysisInProgress = -32002 // Another analyze call is running
	ErrorCodeCodebaseNotFound   = -32003 // Unknown codebase id
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

func (s *Server) handleAnalyzeCodebases(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	ids, err := getStringSlice(args, "codebase_ids")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "codebase_ids must be an array of strings", map[string]interface{}{
			"param": "codebase_ids",
		})
	}

	all, err := s.deps.Codebases()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load codebases", map[string]interface{}{
			"error": err.Error(),
		})
	}
	selected, missing := selectCodebases(all, ids)
	if len(missing) > 0 {
		return nil, newMCPError(ErrorCodeCodebaseNotFound, "unknown codebase ids", map[string]interface{}{
			"ids": missing,
		})
	}

	if !s.analyzeMu.TryLock() {
		return nil, newMCPError(ErrorCodeAnalysisInProgress, "an analysis is already running", nil)
	}
	defer s.analyzeMu.Unlock()

	s.logger.Info("mcp.analyze.start", "codebases", len(selected))
	summary, err := s.deps.Analyzer.Run(ctx, selected)
	if s.deps.Searcher != nil {
		s.deps.Searcher.InvalidateCache()
	}
	if err != nil && summary == nil {
		return nil, newMCPError(ErrorCodeInternalError, "analysis failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	runs := make([]map[string]interface{}, 0, len(summary.Runs))
	for _, r := range summary.Runs {
		runs = append(runs, map[string]interface{}{
			"project_id":     r.ProjectID,
			"run_id":         r.RunID,
			"revision":       r.Revision,
			"status":         r.Status,
			"error":          r.Error,
			"files":          r.FilesDiscovered,
			"files_analyzed": r.FilesAnalyzed,
			"files_failed":   r.FilesFailed,
			"rules":          r.RulesStored,
			"report_path":    r.ReportPath,
		})
	}
	skipped := make([]map[string]interface{}, 0, len(summary.Skipped))
	for _, sk := range summary.Skipped {
		skipped = append(skipped, map[string]interface{}{"id": sk.ID, "reason": sk.Reason})
	}

	response := map[string]interface{}{
		"runs":        runs,
		"skipped":     skipped,
		"completed":   summary.Completed(),
		"duration_ms": summary.Duration.Milliseconds(),
	}
	if err != nil {
		response["error"] = err.Error()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleGenerateReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	runID := getStringDefault(args, "run_id", "")
	if runID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "run_id parameter is required", map[string]interface{}{
			"param":  "run_id",
			"reason": "missing or empty",
		})
	}

	run, err := s.deps.Storage.GetRun(ctx, runID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeRunNotFound, "run not found", map[string]interface{}{"run_id": runID})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load run", map[string]interface{}{"error": err.Error()})
	}

	projectName := run.ProjectID
	if project, err := s.deps.Storage.GetProject(ctx, run.ProjectID); err == nil {
		projectName = project.Name
	}

	path, err := s.deps.Reporter.Generate(ctx, runID, projectName, nil)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "report generation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"run_id":      runID,
		"project":     projectName,
		"report_path": path,
	})), nil
}

func (s *Server) handleSearchRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	query := getStringDefault(args, "query", "")
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := searcher.SearchMode(getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid)))
	switch mode {
	case searcher.SearchModeHybrid, searcher.SearchModeVector, searcher.SearchModeKeyword:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   mode,
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	resp, err := s.deps.Searcher.Search(ctx, searcher.SearchRequest{
		Query:       query,
		Limit:       limit,
		Mode:        mode,
		ProjectID:   getStringDefault(args, "project_id", ""),
		RunID:       getStringDefault(args, "run_id", ""),
		FilePattern: getStringDefault(args, "file_pattern", ""),
		UseCache:    true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"rank":         r.Rank,
			"score":        r.RelevanceScore,
			"rule_id":      r.Rule.RuleID,
			"run_id":       r.Rule.RunID,
			"file_path":    r.Rule.FilePath,
			"title":        r.Rule.Title,
			"description":  r.Rule.Description,
			"code_snippet": r.Rule.CodeSnippet,
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results":     results,
		"total":       resp.TotalResults,
		"search_mode": resp.SearchMode,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	})), nil
}

func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.deps.Storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	runs, err := s.deps.Storage.LatestRuns(ctx, RecentRuns)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list runs", map[string]interface{}{
			"error": err.Error(),
		})
	}

	recent := make([]map[string]interface{}, 0, len(runs))
	for _, r := range runs {
		recent = append(recent, map[string]interface{}{
			"run_id":     r.RunID,
			"project":    r.ProjectName,
			"status":     r.Status,
			"error":      r.Error,
			"rules":      r.RuleCount,
			"created_at": r.CreatedAt.Format(time.RFC3339),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"statistics": map[string]interface{}{
			"projects":        status.Projects,
			"runs":            status.Runs,
			"runs_by_status":  status.RunsByStatus,
			"rules":           status.Rules,
			"summaries":       status.Summaries,
			"dependencies":    status.Dependencies,
			"rule_embeddings": status.RuleEmbeddings,
			"size_mb":         fmt.Sprintf("%.2f", status.SizeMB),
			"schema_version":  status.SchemaVersion,
		},
		"recent_runs": recent,
	})), nil
}

// selectCodebases keeps the codebases named by ids, in configuration order.
// No ids selects all.
func selectCodebases(all []config.Codebase, ids []string) ([]config.Codebase, []string) {
	if len(ids) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var selected []config.Codebase
	for _, cb := range all {
		if want[cb.ID] {
			selected = append(selected, cb)
			delete(want, cb.ID)
		}
	}
	var missing []string
	for _, id := range ids {
		if want[id] {
			missing = append(missing, id)
			delete(want, id)
		}
	}
	return selected, missing
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	return args
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: non-string element", key)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: not an array", key)
}
