package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dshills/ruleminer/internal/retry"
)

// API key environment variables
const (
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string // falls back to the provider's environment variable
	BaseURL   string
	Model     string
	CacheSize int // 0 disables caching
	Logger    *slog.Logger
	Policy    *retry.Policy // nil uses retry.DefaultPolicy
}

// New creates an embedder. An empty provider returns (nil, nil): embeddings
// are optional and callers treat a nil Embedder as disabled.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, nil
	case "auto":
		cfg.Provider = DetectProvider()
		return New(cfg)
	case ProviderJina:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv(EnvJinaAPIKey)
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
		}
		return newRemoteProvider(ProviderJina, cfg, DefaultJinaURL, DefaultJinaModel, JinaDimension, cache), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv(EnvOpenAIAPIKey)
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
		}
		return newRemoteProvider(ProviderOpenAI, cfg, DefaultOpenAIURL, DefaultOpenAIModel, OpenAIDimension, cache), nil
	case ProviderLocal:
		return NewLocalProvider(cache), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider picks the provider for "auto" from the API keys present,
// falling back to the offline provider
func DetectProvider() string {
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
