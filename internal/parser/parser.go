package parser

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dshills/ruleminer/internal/chunker"
	"github.com/dshills/ruleminer/pkg/types"
)

// Parser is the static indexer: it derives a graph node (summary) and its
// outgoing edge targets (imports) from one source file without any LLM call.
type Parser struct {
	logger *slog.Logger
}

// New creates a new Parser instance
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// IndexFile reads and indexes a file. It never returns nil; read failures are
// recorded on the metadata's Err and Summary.
func (p *Parser) IndexFile(filePath, language string) *types.FileMetadata {
	content, err := os.ReadFile(filePath)
	if err != nil {
		meta := &types.FileMetadata{FilePath: filePath, Language: chunker.Normalize(language)}
		meta.Err = fmt.Errorf("failed to read file: %w", err)
		meta.Summary = types.FailureSummary(filePath)
		p.logger.Warn("parser.index.failed", "path", filePath, "error", err)
		return meta
	}
	return p.IndexSource(filePath, language, content)
}

// IndexSource indexes already-loaded file content
func (p *Parser) IndexSource(filePath, language string, content []byte) (meta *types.FileMetadata) {
	meta = &types.FileMetadata{
		FilePath: filePath,
		Language: chunker.Normalize(language),
	}

	defer func() {
		if r := recover(); r != nil {
			meta.Imports = nil
			meta.Definitions = nil
			meta.Err = fmt.Errorf("%w: panic indexing %s: %v", types.ErrParse, filePath, r)
			meta.Summary = types.FailureSummary(filePath)
			p.logger.Warn("parser.index.failed", "path", filePath, "error", meta.Err)
		}
	}()

	imports := newImportSet()
	switch meta.Language {
	case "python":
		if err := indexPython(content, imports, meta); err != nil {
			p.logger.Debug("parser.python.fallback", "path", filePath, "error", err)
			meta.Definitions = nil
			indexGeneric(content, imports, meta)
		}
	case "go":
		if err := indexGo(filePath, content, imports, meta); err != nil {
			p.logger.Debug("parser.go.fallback", "path", filePath, "error", err)
			meta.Definitions = nil
			indexGeneric(content, imports, meta)
		}
	default:
		indexGeneric(content, imports, meta)
	}

	for i := range meta.Definitions {
		annotateRole(&meta.Definitions[i])
	}

	meta.Imports = imports.sorted()
	meta.Summary = meta.BuildSummary()
	return meta
}

type importSet map[string]struct{}

func newImportSet() importSet {
	return make(importSet)
}

func (s importSet) add(id string) {
	if id != "" {
		s[id] = struct{}{}
	}
}

func (s importSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
