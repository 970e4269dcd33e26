package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/ruleminer/internal/chunker"
	"github.com/dshills/ruleminer/pkg/types"
)

// LanguageAuto derives each file's language from its extension
const LanguageAuto = "auto"

// DefaultPriority applies when a codebase does not set one
const DefaultPriority = 5

// Codebase is one repository to analyze.
type Codebase struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Source      string   `yaml:"source"`
	Language    string   `yaml:"language"`
	Priority    int      `yaml:"priority,omitempty"`
	EntryPoints []string `yaml:"entry_points,omitempty"`
}

type codebaseFile struct {
	Codebases []Codebase `yaml:"codebases"`
}

// Validate checks the required fields.
func (c Codebase) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(c.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(c.Source) == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: codebase %q missing %s", types.ErrConfiguration, c.ID, strings.Join(missing, ", "))
	}
	return nil
}

// LanguageFor returns the language tag used for path. Languages without a
// grammar are kept as given; the chunker and indexer fall back for them.
func (c Codebase) LanguageFor(path string) string {
	if c.Language != "" && c.Language != LanguageAuto {
		return chunker.Normalize(c.Language)
	}
	ext := filepath.Ext(path)
	if tag, ok := chunker.LanguageForExtension(ext); ok {
		return tag
	}
	return strings.TrimPrefix(strings.ToLower(ext), ".")
}

// ExampleCodebases is written when the codebase file is missing.
var ExampleCodebases = []Codebase{{
	ID:       "my-project",
	Name:     "My Project",
	Source:   "projects/my-app",
	Language: "python",
}}

// LoadCodebases reads the codebase list sorted by priority (higher first,
// file order kept for ties). Validation happens per codebase in the
// pipeline so one bad entry does not block the rest. When the file does not
// exist an example is written and ErrConfiguration returned.
func LoadCodebases(path string) ([]Codebase, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if werr := writeExample(path); werr != nil {
			return nil, fmt.Errorf("%w: %s not found and example could not be written: %w", types.ErrConfiguration, path, werr)
		}
		return nil, fmt.Errorf("%w: %s not found, example written; edit it and rerun", types.ErrConfiguration, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", types.ErrConfiguration, path, err)
	}

	var file codebaseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", types.ErrConfiguration, path, err)
	}

	for i := range file.Codebases {
		if file.Codebases[i].Priority == 0 {
			file.Codebases[i].Priority = DefaultPriority
		}
	}
	sort.SliceStable(file.Codebases, func(i, j int) bool {
		return file.Codebases[i].Priority > file.Codebases[j].Priority
	})
	return file.Codebases, nil
}

func writeExample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(codebaseFile{Codebases: ExampleCodebases})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
