// Package extractor turns one source file into business-rule findings by
// prompting the completion service per code unit.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/ruleminer/internal/chunker"
	"github.com/dshills/ruleminer/internal/llm"
	"github.com/dshills/ruleminer/internal/metrics"
	"github.com/dshills/ruleminer/internal/prompts"
	"github.com/dshills/ruleminer/internal/retry"
	"github.com/dshills/ruleminer/pkg/types"
)

// Defaults
const (
	DefaultChunkThreshold = 25000
	DefaultMaxUnitChars   = chunker.MaxUnitChars
)

// Reader reads source files
type Reader interface {
	ReadFile(path string) (string, error)
}

// Config configures an Extractor
type Config struct {
	ChunkThreshold int // files longer than this are split into units
	MaxUnitChars   int
	Policy         retry.Policy
	Logger         *slog.Logger
}

// Extractor prompts the completion service for each unit of a file
type Extractor struct {
	reader   Reader
	provider llm.Provider
	chunker  *chunker.Chunker
	cfg      Config
	logger   *slog.Logger
}

// New creates an Extractor
func New(reader Reader, provider llm.Provider, cfg Config) *Extractor {
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = DefaultChunkThreshold
	}
	if cfg.MaxUnitChars <= 0 {
		cfg.MaxUnitChars = DefaultMaxUnitChars
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.ExtractionPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Policy.Logger = logger
	return &Extractor{
		reader:   reader,
		provider: provider,
		chunker:  chunker.New(logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// Option adds project details to the extraction prompt
type Option func(*prompts.ExtractionData)

// WithProject names the project and its entry points in the prompt
func WithProject(name string, entryPoints []string) Option {
	return func(d *prompts.ExtractionData) {
		d.ProjectName = name
		d.EntryPoints = entryPoints
	}
}

// WithFileTree adds the project file listing, used by the prompt when the
// file has no graph context
func WithFileTree(tree string) Option {
	return func(d *prompts.ExtractionData) {
		d.FileTree = tree
	}
}

// Extract analyzes one file. Unparseable responses are recorded on the unit
// with zero findings; an error is returned only when a completion call fails
// after retries or the file cannot be read.
func (e *Extractor) Extract(ctx context.Context, path, language, graphContext string, opts ...Option) (*types.FileResult, error) {
	content, err := e.reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	result := &types.FileResult{
		FilePath: path,
		Language: language,
		Status:   types.FileSuccess,
	}
	if strings.TrimSpace(content) == "" {
		e.logger.Debug("extract.file.empty", "path", path)
		return result, nil
	}

	base := prompts.ExtractionData{
		FilePath: path,
		Language: language,
		Context:  graphContext,
	}
	for _, opt := range opts {
		opt(&base)
	}

	for _, unit := range e.units(content, language) {
		data := base
		data.Code = unit.Content
		if unit.Kind != types.UnitFile {
			data.UnitName = unit.Name
		}

		findings, outcome, err := e.extractUnit(ctx, data, unit.Name)
		if err != nil {
			return nil, fmt.Errorf("extract %s (%s): %w", path, unit.Name, err)
		}
		for i := range findings {
			findings[i].FilePath = path
		}
		result.Findings = append(result.Findings, findings...)
		result.Units = append(result.Units, outcome)
	}

	e.logger.Info("extract.file.done", "path", path, "units", len(result.Units), "rules", len(result.Findings))
	return result, nil
}

// units returns the whole file as one unit unless it exceeds the threshold
func (e *Extractor) units(content, language string) []types.CodeUnit {
	if len(content) <= e.cfg.ChunkThreshold {
		return []types.CodeUnit{{
			Content:   content,
			StartLine: 1,
			EndLine:   strings.Count(content, "\n") + 1,
			Name:      "file",
			Kind:      types.UnitFile,
		}}
	}
	units := e.chunker.Chunk([]byte(content), language, e.cfg.MaxUnitChars)
	e.logger.Debug("extract.file.chunked", "chars", len(content), "units", len(units))
	return units
}

func (e *Extractor) extractUnit(ctx context.Context, data prompts.ExtractionData, name string) ([]types.Finding, types.UnitOutcome, error) {
	outcome := types.UnitOutcome{Name: name}

	prompt, err := prompts.Render(prompts.ExtractBusinessRules, data)
	if err != nil {
		return nil, outcome, fmt.Errorf("%w: %w", types.ErrUnexpected, err)
	}

	raw, err := retry.Do(ctx, e.cfg.Policy, func(ctx context.Context) (string, error) {
		start := time.Now()
		resp, err := e.provider.Complete(ctx, llm.Request{
			Prompt: prompt,
			System: prompts.ExtractionSystem,
			JSON:   true,
		})
		metrics.RecordLLMCall("extract", time.Since(start), err)
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})
	if err != nil {
		return nil, outcome, err
	}

	findings, perr := ParseFindings(raw)
	if perr != nil {
		e.logger.Warn("extract.parse.failed", "path", data.FilePath, "unit", name, "error", perr)
		outcome.RawOutput = raw
		outcome.ParseError = perr.Error()
		return nil, outcome, nil
	}
	outcome.Findings = len(findings)
	return findings, outcome, nil
}
