package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ruleminer/pkg/types"
)

func TestLoadCodebasesWritesExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "codebases.yaml")

	_, err := LoadCodebases(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	// the example is now loadable
	cbs, err := LoadCodebases(path)
	require.NoError(t, err)
	require.Len(t, cbs, 1)
	assert.Equal(t, "my-project", cbs[0].ID)
	assert.Equal(t, DefaultPriority, cbs[0].Priority)
}

func TestLoadCodebasesPriorityOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codebases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
codebases:
  - {id: a, name: A, source: ./a, language: python}
  - {id: b, name: B, source: ./b, language: java, priority: 9}
  - {id: c, name: C, source: ./c, language: auto, entry_points: [main.go]}
  - {id: d, name: D, source: ./d, language: go, priority: 1}
`), 0o644))

	cbs, err := LoadCodebases(path)
	require.NoError(t, err)

	var ids []string
	for _, cb := range cbs {
		ids = append(ids, cb.ID)
	}
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids)
	assert.Equal(t, []string{"main.go"}, cbs[2].EntryPoints)
}

func TestLoadCodebasesBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codebases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("codebases: {"), 0o644))

	_, err := LoadCodebases(path)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestCodebaseValidate(t *testing.T) {
	tests := []struct {
		name    string
		cb      Codebase
		wantErr bool
	}{
		{"complete", Codebase{ID: "x", Name: "X", Source: "."}, false},
		{"unknown language is allowed", Codebase{ID: "x", Name: "X", Source: ".", Language: "cobol"}, false},
		{"missing id", Codebase{Name: "X", Source: "."}, true},
		{"blank name", Codebase{ID: "x", Name: "  ", Source: "."}, true},
		{"missing source", Codebase{ID: "x", Name: "X"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cb.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLanguageFor(t *testing.T) {
	tests := []struct {
		language string
		path     string
		want     string
	}{
		{"python", "a/b.js", "python"},
		{"cs", "a/b.cs", "c_sharp"},
		{"auto", "a/b.ts", "javascript"},
		{"", "a/b.go", "go"},
		{"auto", "a/b.rb", "rb"},
	}
	for _, tt := range tests {
		t.Run(tt.language+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Codebase{Language: tt.language}.LanguageFor(tt.path))
		})
	}
}
