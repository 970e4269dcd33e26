// Package prompts renders the prompt templates sent to the completion
// service.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"
)

// Template names
const (
	ExtractBusinessRules = "extract_business_rules"
	ProjectSummary       = "project_summary"
)

// ExtractionSystem is the system instruction for extraction calls
const ExtractionSystem = "You are an expert reverse engineer. Return ONLY valid JSON matching the schema."

// ReportSystem is the system instruction for report calls
const ReportSystem = "You are a senior software architect writing clear technical documentation in Markdown."

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	parseOnce sync.Once
	parsed    *template.Template
	parseErr  error
)

// ExtractionData feeds the extract_business_rules template
type ExtractionData struct {
	ProjectName string
	FilePath    string
	Language    string
	UnitName    string
	Context     string
	FileTree    string // shown only when Context is empty
	EntryPoints []string
	Code        string
}

// SummaryData feeds the project_summary template
type SummaryData struct {
	ProjectName string
	Date        string
	Truncated   bool
	Document    string
}

func load() (*template.Template, error) {
	parseOnce.Do(func() {
		parsed, parseErr = template.New("prompts").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl")
	})
	return parsed, parseErr
}

// Render executes the named template (without extension)
func Render(name string, data any) (string, error) {
	tmpl, err := load()
	if err != nil {
		return "", fmt.Errorf("parse prompt templates: %w", err)
	}
	t := tmpl.Lookup(name + ".tmpl")
	if t == nil {
		return "", fmt.Errorf("unknown prompt template: %s", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}
