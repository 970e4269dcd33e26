// Package config loads ruleminer settings and the codebase list.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/ruleminer/internal/llm"
	"github.com/dshills/ruleminer/internal/repo"
	"github.com/dshills/ruleminer/pkg/types"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "RE_"

// Config represents the ruleminer settings.
type Config struct {
	DBPath         string `yaml:"db_path"`
	RepoRoot       string `yaml:"repo_root"`
	CodebaseConfig string `yaml:"codebase_config"`
	ReportsDir     string `yaml:"reports_dir"`

	LLM       llm.ProviderConfig `yaml:"llm"`
	Embedding EmbeddingConfig    `yaml:"embedding"`
	Logging   LoggingConfig      `yaml:"logging"`

	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
	ChunkThreshold    int `yaml:"chunk_threshold"`
	MaxUnitChars      int `yaml:"max_unit_chars"`

	TokenBudget     int           `yaml:"token_budget"`
	TokensPerMinute int           `yaml:"tokens_per_minute"`
	MaxThrottle     time.Duration `yaml:"max_throttle"`

	FileExtensions []string `yaml:"file_extensions"`
	Exclude        Exclude  `yaml:"exclude"`
}

// EmbeddingConfig selects the optional embedding provider. An empty provider
// disables embeddings.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	CacheSize int    `yaml:"cache_size"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	Dir    string `yaml:"dir"`    // JSON log file directory; empty disables the file
}

// Exclude defines paths skipped during discovery.
type Exclude struct {
	Dirs      []string `yaml:"dirs"`
	FilesGlob []string `yaml:"files_glob"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath:         "ruleminer.db",
		RepoRoot:       "repos",
		CodebaseConfig: filepath.Join("config", "codebases.yaml"),
		ReportsDir:     "reports",
		LLM: llm.ProviderConfig{
			Type:        "gemini",
			Model:       "gemini-2.5-pro",
			Temperature: llm.DefaultTemperature,
			MaxTokens:   llm.DefaultMaxTokens,
			Timeout:     llm.DefaultTimeout,
		},
		Embedding: EmbeddingConfig{CacheSize: 10000},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    "logs",
		},
		MaxConcurrentJobs: 6,
		ChunkThreshold:    25000,
		MaxUnitChars:      15000,
		TokenBudget:       200000,
		TokensPerMinute:   1000000,
		MaxThrottle:       60 * time.Second,
		FileExtensions:    append([]string(nil), repo.DefaultExtensions...),
		Exclude: Exclude{
			Dirs: append([]string(nil), repo.DefaultExcludeDirs...),
		},
	}
}

// Load reads configuration from file, falling back to defaults, then applies
// RE_* environment overrides. If configPath is empty, it looks for
// ruleminer.yaml in the current directory.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = "ruleminer.yaml"
	}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", types.ErrConfiguration, configPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// No config file, use defaults
	default:
		return nil, fmt.Errorf("%w: read %s: %w", types.ErrConfiguration, configPath, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from RE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("DB_PATH", &c.DBPath)
	str("REPO_ROOT", &c.RepoRoot)
	str("CODEBASE_CONFIG", &c.CodebaseConfig)
	str("REPORTS_DIR", &c.ReportsDir)
	str("LLM_PROVIDER", &c.LLM.Type)
	str("MODEL_NAME", &c.LLM.Model)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_DIR", &c.Logging.Dir)

	ints := []struct {
		name string
		dst  *int
	}{
		{"MAX_CONCURRENT_JOBS", &c.MaxConcurrentJobs},
		{"MAX_TOKENS", &c.LLM.MaxTokens},
		{"TOKEN_BUDGET", &c.TokenBudget},
		{"TOKENS_PER_MINUTE", &c.TokensPerMinute},
	}
	for _, iv := range ints {
		v, ok := lookup(EnvPrefix + iv.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not an integer", types.ErrConfiguration, EnvPrefix, iv.name, v)
		}
		*iv.dst = n
	}

	if v, ok := lookup(EnvPrefix + "TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sTEMPERATURE=%q is not a number", types.ErrConfiguration, EnvPrefix, v)
		}
		c.LLM.Temperature = f
	}
	return nil
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var problems []string
	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.MaxConcurrentJobs < 1 {
		problems = append(problems, "max_concurrent_jobs must be at least 1")
	}
	if c.ChunkThreshold < 1 || c.MaxUnitChars < 1 {
		problems = append(problems, "chunk_threshold and max_unit_chars must be positive")
	}
	if c.TokenBudget < 1 || c.TokensPerMinute < 1 {
		problems = append(problems, "token_budget and tokens_per_minute must be positive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be text or json", c.Logging.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", types.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}
