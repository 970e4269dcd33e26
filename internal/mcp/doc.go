// Package mcp exposes the rule mining pipeline as a Model Context Protocol
// server over stdio.
//
// Tools:
//   - analyze_codebases: run the pipeline over some or all configured codebases
//   - generate_report: rebuild the report of an existing run
//   - search_rules: hybrid search over stored business rules
//   - get_status: store statistics and the five most recent runs
//
// Example request:
//
//	{
//	  "name": "search_rules",
//	  "arguments": {
//	    "query": "refund window",
//	    "project_id": "shop",
//	    "limit": 5
//	  }
//	}
//
// Responses are indented JSON text content. Invalid parameters and failures
// are returned as *MCPError with a JSON-RPC style code.
//
// Only one analyze_codebases call runs at a time per server; a concurrent
// call fails with ErrorCodeAnalysisInProgress.
package mcp
