package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ruleminer/pkg/types"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 6, cfg.MaxConcurrentJobs)
	assert.Equal(t, 25000, cfg.ChunkThreshold)
	assert.Equal(t, 15000, cfg.MaxUnitChars)
	assert.Equal(t, 200000, cfg.TokenBudget)
	assert.Equal(t, 1000000, cfg.TokensPerMinute)
	assert.Equal(t, 60*time.Second, cfg.MaxThrottle)
	assert.Equal(t, "gemini", cfg.LLM.Type)
	assert.Contains(t, cfg.Exclude.Dirs, "node_modules")
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().DBPath, cfg.DBPath)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ruleminer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /tmp/kb.db
max_concurrent_jobs: 2
llm:
  type: openai
  model: gpt-4o
exclude:
  files_glob: ["**/*_gen.go"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/kb.db", cfg.DBPath)
	assert.Equal(t, 2, cfg.MaxConcurrentJobs)
	assert.Equal(t, "openai", cfg.LLM.Type)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, []string{"**/*_gen.go"}, cfg.Exclude.FilesGlob)
	// untouched fields keep defaults
	assert.Equal(t, 25000, cfg.ChunkThreshold)
	assert.Contains(t, cfg.Exclude.Dirs, ".git")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: [unclosed"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RE_DB_PATH":             "env.db",
		"RE_LLM_PROVIDER":        "ollama",
		"RE_MODEL_NAME":          "llama3",
		"RE_MAX_CONCURRENT_JOBS": "3",
		"RE_LOG_FORMAT":          "json",
		"RE_TEMPERATURE":         "0.4",
		"RE_REPORTS_DIR":         "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "env.db", cfg.DBPath)
	assert.Equal(t, "ollama", cfg.LLM.Type)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.MaxConcurrentJobs)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.InDelta(t, 0.4, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "reports", cfg.ReportsDir)
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	tests := map[string]string{
		"RE_MAX_CONCURRENT_JOBS": "many",
		"RE_TEMPERATURE":         "warm",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(func(k string) (string, bool) {
				if k == key {
					return val, true
				}
				return "", false
			})
			assert.ErrorIs(t, err, types.ErrConfiguration)
		})
	}
}

func TestLoadAppliesEnv(t *testing.T) {
	t.Setenv("RE_MAX_CONCURRENT_JOBS", "0")

	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero jobs", func(c *Config) { c.MaxConcurrentJobs = 0 }},
		{"zero budget", func(c *Config) { c.TokenBudget = 0 }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), types.ErrConfiguration)
		})
	}
}
