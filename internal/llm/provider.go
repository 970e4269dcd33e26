// Package llm provides the completion service used by the extraction worker
// and the report assembler. Supports Gemini, OpenAI-compatible APIs, Ollama
// and a scripted mock.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/ruleminer/pkg/types"
)

// Provider produces a completion for a prompt.
type Provider interface {
	// Complete sends the prompt with an optional system instruction.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider identifier.
	Name() string
}

// Request is one completion call.
type Request struct {
	Prompt string
	System string
	// JSON asks the service for a JSON-only response when it supports it.
	JSON bool
}

// Response contains the completion text.
type Response struct {
	Text         string
	Model        string
	PromptTokens int
	OutputTokens int
	Duration     time.Duration
}

// ProviderConfig holds configuration for creating providers.
type ProviderConfig struct {
	// Provider type: "gemini", "openai", "ollama", "mock"
	Type string `yaml:"type"`

	// BaseURL for the API endpoint
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey for authenticated providers; read from the environment when empty
	APIKey string `yaml:"-"`

	Model       string        `yaml:"model,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// Defaults
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 8192
	DefaultTimeout     = 300 * time.Second
)

// NewProvider creates a Provider based on configuration.
//
// Environment variables:
//   - GOOGLE_API_KEY: Gemini API key
//   - OPENAI_API_KEY, OPENAI_BASE_URL: OpenAI-compatible API
//   - OLLAMA_HOST: Ollama server URL (default: http://localhost:11434)
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch strings.ToLower(cfg.Type) {
	case "gemini", "google", "":
		return newGeminiProvider(cfg)
	case "openai", "openai-compatible":
		return newOpenAIProvider(cfg)
	case "ollama", "local":
		return newOllamaProvider(cfg)
	case "mock", "test":
		return &MockProvider{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown LLM provider type: %s (supported: gemini, openai, ollama, mock)",
			types.ErrConfiguration, cfg.Type)
	}
}

// RateLimitError is returned for HTTP 429 and quota responses.
type RateLimitError struct {
	Provider string
	Status   int
	Body     string
	Wait     time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (status %d): %s", e.Provider, e.Status, e.Body)
}

// RetryAfter returns the server-suggested wait, zero when unknown.
func (e *RateLimitError) RetryAfter() time.Duration { return e.Wait }

// Is makes errors.Is(err, types.ErrRateLimited) and types.ErrCompletion match.
func (e *RateLimitError) Is(target error) bool {
	return target == types.ErrRateLimited || target == types.ErrCompletion
}

var bodyRetryDelay = regexp.MustCompile(`"retryDelay"\s*:\s*"(\d+(?:\.\d+)?)s"`)

// checkResponse converts a non-200 response into an error. The body is
// consumed.
func checkResponse(provider string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	body := strings.TrimSpace(string(bodyBytes))

	if resp.StatusCode == http.StatusTooManyRequests || isQuotaBody(body) {
		return &RateLimitError{
			Provider: provider,
			Status:   resp.StatusCode,
			Body:     body,
			Wait:     parseRetryAfter(resp.Header.Get("Retry-After"), body),
		}
	}
	return fmt.Errorf("%w: %s error (status %d): %s", types.ErrCompletion, provider, resp.StatusCode, body)
}

func isQuotaBody(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "quota")
}

// parseRetryAfter reads a Retry-After header (seconds or HTTP date) or a
// Google-style retryDelay from the body.
func parseRetryAfter(header, body string) time.Duration {
	if header != "" {
		if secs, err := strconv.ParseFloat(header, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if at, err := http.ParseTime(header); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	if m := bodyRetryDelay.FindStringSubmatch(body); m != nil {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
