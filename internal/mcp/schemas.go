package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/ruleminer/internal/searcher"
)

func analyzeCodebasesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_codebases",
		Description: "Run discovery, indexing, rule extraction and reporting over the configured codebases",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"codebase_ids": map[string]interface{}{
					"type":        "array",
					"description": "Ids from codebases.yaml to analyze; all codebases when omitted",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
		},
	}
}

func generateReportTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate_report",
		Description: "Regenerate the markdown summary report for an existing analysis run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Analysis run id",
				},
			},
			Required: []string{"run_id"},
		},
	}
}

func searchRulesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_rules",
		Description: "Search extracted business rules by keywords or meaning",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"project_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to one project",
				},
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to one analysis run",
				},
				"file_pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob pattern for file paths (e.g., '**/billing/*.py')",
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + keyword), vector (semantic only), or keyword (BM25 only)",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
			},
			Required: []string{"query"},
		},
	}
}

func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Show store statistics and the most recent analysis runs",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
