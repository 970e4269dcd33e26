package types

import (
	"fmt"
	"strings"
)

// MaxSummaryDefinitions caps how many definitions a node summary lists
const MaxSummaryDefinitions = 20

// DefinitionKind is the kind of a top-level or class-level definition
type DefinitionKind string

const (
	DefFunction  DefinitionKind = "function"
	DefMethod    DefinitionKind = "method"
	DefClass     DefinitionKind = "class"
	DefInterface DefinitionKind = "interface"
	DefType      DefinitionKind = "type"
	DefRaw       DefinitionKind = "raw" // regex-matched source line
)

// Definition is one definition captured by the static indexer
type Definition struct {
	Name      string
	Kind      DefinitionKind
	Signature string   // one-line signature, or the matched line for DefRaw
	Doc       string   // first line of the attached description, if any
	Bases     []string // declared base types (classes only)
	Role      string   // architectural role hint, e.g. "repository"
}

// Line renders the definition as a single summary line
func (d Definition) Line() string {
	line := d.Signature
	if d.Doc != "" {
		line += ": " + d.Doc
	}
	if d.Role != "" {
		line += " [" + d.Role + "]"
	}
	return line
}

// FileMetadata holds the extracted structure of one file: a graph node
// (Summary) and its raw outgoing edge targets (Imports).
type FileMetadata struct {
	FilePath    string
	Language    string
	Imports     []string // raw import identifiers, sorted and de-duplicated
	Definitions []Definition
	Summary     string

	// Err is set when reading or parsing failed; Summary then records the failure
	Err error
}

// BuildSummary renders the text injected into other files' LLM context
func (m *FileMetadata) BuildSummary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("File: %s", m.FilePath))

	if len(m.Definitions) > 0 {
		sb.WriteString("\nDefinitions:")
		for i, d := range m.Definitions {
			if i == MaxSummaryDefinitions {
				sb.WriteString("\n  - ... (more)")
				break
			}
			sb.WriteString("\n  - ")
			sb.WriteString(d.Line())
		}
	}

	return sb.String()
}

// FailureSummary is the summary recorded for a file that could not be analyzed
func FailureSummary(filePath string) string {
	return fmt.Sprintf("Error analyzing %s", filePath)
}
