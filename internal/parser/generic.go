package parser

import (
	"regexp"
	"strings"

	"github.com/dshills/ruleminer/pkg/types"
)

// maxDefinitionLine skips long matched lines, which are rarely declarations
const maxDefinitionLine = 100

var importPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*import\s+["']?([\w\-\./]+)["']?`),
	regexp.MustCompile(`^\s*from\s+([\w\.]+)\s+import`),
	regexp.MustCompile(`^\s*using\s+([\w\.]+);`),
	regexp.MustCompile(`^\s*package\s+([\w\.]+);`),
	// JavaScript module forms
	regexp.MustCompile(`\brequire\(\s*["']([^"']+)["']\s*\)`),
	regexp.MustCompile(`^\s*(?:import|export)\b.*\bfrom\s+["']([^"']+)["']`),
}

var (
	definitionPattern = regexp.MustCompile(`^\s*(class|def|function|public|private)\s+([A-Za-z0-9_]+)`)
	classNamePattern  = regexp.MustCompile(`\b(class|interface)\s+([A-Za-z0-9_]+)`)
)

// indexGeneric is the line-oriented regex indexer used for languages without
// a precise parser and as the fallback when one fails.
func indexGeneric(content []byte, imports importSet, meta *types.FileMetadata) {
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimRight(line, "\r")

		for _, re := range importPatterns {
			if m := re.FindStringSubmatch(line); m != nil {
				imports.add(m[1])
			}
		}

		m := definitionPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if len(trimmed) >= maxDefinitionLine {
			continue
		}
		def := types.Definition{
			Name:      m[2],
			Kind:      genericKind(m[1]),
			Signature: strings.TrimSpace(strings.TrimRight(trimmed, "{:")),
		}
		if cm := classNamePattern.FindStringSubmatch(trimmed); cm != nil {
			def.Name = cm[2]
			def.Kind = genericKind(cm[1])
		}
		meta.Definitions = append(meta.Definitions, def)
	}
}

func genericKind(keyword string) types.DefinitionKind {
	switch keyword {
	case "class":
		return types.DefClass
	case "interface":
		return types.DefInterface
	case "def", "function":
		return types.DefFunction
	}
	return types.DefRaw
}
