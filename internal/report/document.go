package report

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/dshills/ruleminer/internal/storage"
	"github.com/dshills/ruleminer/pkg/types"
)

// Document is the JSON context sent with the report prompt
type Document struct {
	ProjectName   string      `json:"project_name"`
	Date          string      `json:"date"`
	Truncated     bool        `json:"truncated,omitempty"`
	BusinessRules []RuleEntry `json:"business_rules"`
	CodeSummaries []NodeEntry `json:"code_summaries"`
	Dependencies  []EdgeEntry `json:"dependencies"`
}

// RuleEntry is one business rule in the report document
type RuleEntry struct {
	FilePath    string `json:"file_path"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// NodeEntry is one dependency-graph node summary
type NodeEntry struct {
	FilePath string `json:"file_path"`
	Summary  string `json:"summary"`
}

// EdgeEntry is one dependency edge
type EdgeEntry struct {
	SourceFile   string `json:"source_file"`
	TargetFile   string `json:"target_file"`
	RelationType string `json:"relation_type"`
}

// NewDocument converts stored rows into the report context
func NewDocument(projectName string, at time.Time, rules []*storage.BusinessRule, summaries []*storage.CodeSummary, edges []*storage.FileDependency) *Document {
	doc := &Document{
		ProjectName:   projectName,
		Date:          at.Format("2006-01-02"),
		BusinessRules: make([]RuleEntry, 0, len(rules)),
		CodeSummaries: make([]NodeEntry, 0, len(summaries)),
		Dependencies:  make([]EdgeEntry, 0, len(edges)),
	}
	for _, r := range rules {
		doc.BusinessRules = append(doc.BusinessRules, RuleEntry{FilePath: r.FilePath, Title: r.Title, Description: r.Description})
	}
	for _, s := range summaries {
		doc.CodeSummaries = append(doc.CodeSummaries, NodeEntry{FilePath: s.FilePath, Summary: s.Summary})
	}
	for _, e := range edges {
		doc.Dependencies = append(doc.Dependencies, EdgeEntry{SourceFile: e.SourceFile, TargetFile: e.TargetFile, RelationType: e.RelationType})
	}
	return doc
}

// Tokens estimates the encoded size of the document
func (d *Document) Tokens() int {
	data, _ := json.Marshal(d)
	return types.EstimateTokens(string(data))
}

// FitBudget trims the document until it fits budget tokens: dependencies
// go first, then summaries, then rule descriptions are shortened, then
// trailing rules are dropped. Returns the final estimate.
func (d *Document) FitBudget(budget int) int {
	tokens := d.Tokens()
	if tokens <= budget {
		return tokens
	}
	d.Truncated = true

	if len(d.Dependencies) > 0 {
		d.Dependencies = []EdgeEntry{}
		if tokens = d.Tokens(); tokens <= budget {
			return tokens
		}
	}
	if len(d.CodeSummaries) > 0 {
		d.CodeSummaries = []NodeEntry{}
		if tokens = d.Tokens(); tokens <= budget {
			return tokens
		}
	}

	for i := range d.BusinessRules {
		d.BusinessRules[i].Description = truncate(d.BusinessRules[i].Description, descriptionLimit)
	}
	tokens = d.Tokens()

	// drop from the end, subtracting each entry's own estimate
	for tokens > budget && len(d.BusinessRules) > 0 {
		last := d.BusinessRules[len(d.BusinessRules)-1]
		entry, _ := json.Marshal(last)
		d.BusinessRules = d.BusinessRules[:len(d.BusinessRules)-1]
		tokens -= types.EstimateTokens(string(entry) + ",")
	}
	tokens = d.Tokens()
	for tokens > budget && len(d.BusinessRules) > 0 {
		d.BusinessRules = d.BusinessRules[:len(d.BusinessRules)-1]
		tokens = d.Tokens()
	}
	return tokens
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
