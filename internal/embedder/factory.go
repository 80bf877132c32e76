package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider          string        `koanf:"provider"`
	APIKey            string        `koanf:"api_key"`
	BaseURL           string        `koanf:"base_url"`
	Model             string        `koanf:"model"`
	Dimension         int           `koanf:"dimension"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Timeout           time.Duration `koanf:"timeout"`
}

// New creates an embedder with explicit configuration.
// An empty provider is resolved with DetectProvider.
func New(cfg Config) (Embedder, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider(cfg)
	}

	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case ProviderLocal:
		return NewLocalProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used for cfg
// Priority:
// 1. cfg.Provider
// 2. cfg.BaseURL (an OpenAI-compatible server)
// 3. API keys in the environment: JINA_API_KEY, OPENAI_API_KEY
// 4. local
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}

	if cfg.BaseURL != "" {
		return ProviderOpenAI
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
