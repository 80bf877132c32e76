// Package config loads ragcontext settings from defaults, an optional YAML
// file and RAGCTX_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dshills/ragcontext-mcp/internal/assembler"
	"github.com/dshills/ragcontext-mcp/internal/cache"
	"github.com/dshills/ragcontext-mcp/internal/embedder"
	"github.com/dshills/ragcontext-mcp/internal/fusion"
	"github.com/dshills/ragcontext-mcp/internal/reranker"
	"github.com/dshills/ragcontext-mcp/internal/retriever"
	"github.com/dshills/ragcontext-mcp/internal/searcher"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: RAGCTX_DATABASE__PATH sets database.path.
const EnvPrefix = "RAGCTX_"

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheSQL    = "sql"
)

// Config is the complete application configuration
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Embedding embedder.Config `koanf:"embedding"`
	Rerank    RerankConfig    `koanf:"rerank"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Context   ContextConfig   `koanf:"context"`
	Cache     CacheConfig     `koanf:"cache"`
	Log       LogConfig       `koanf:"log"`
}

// DatabaseConfig selects and configures the chunk store
type DatabaseConfig struct {
	Driver   string `koanf:"driver"`
	Path     string `koanf:"path"`
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

// RerankConfig configures the optional rerank service
type RerankConfig struct {
	Enabled           bool          `koanf:"enabled"`
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	Model             string        `koanf:"model"`
	TopN              int           `koanf:"top_n"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// RetrievalConfig holds retriever and fusion settings
type RetrievalConfig struct {
	Threshold       float64        `koanf:"threshold"`
	Weights         fusion.Weights `koanf:"weights"`
	VectorTimeout   time.Duration  `koanf:"vector_timeout"`
	FullTextTimeout time.Duration  `koanf:"fulltext_timeout"`
	EmbedTimeout    time.Duration  `koanf:"embed_timeout"`
	CandidateFactor int            `koanf:"candidate_factor"`
	HistoryLimit    int            `koanf:"history_limit"`
}

// ContextConfig holds context assembly settings
type ContextConfig struct {
	MaxTokens        int `koanf:"max_tokens"`
	assembler.Config `koanf:",squash"`
}

// CacheConfig configures the embedding and search caches
type CacheConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Backend      string        `koanf:"backend"`
	Size         int           `koanf:"size"`
	EmbeddingTTL time.Duration `koanf:"embedding_ttl"`
	SearchTTL    time.Duration `koanf:"search_ttl"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// LogConfig configures the structured logger
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   DriverSQLite,
			Path:     DefaultDatabasePath(),
			MaxConns: 10,
			MinConns: 2,
		},
		Embedding: embedder.Config{
			Timeout: embedder.DefaultQueryTimeout,
		},
		Rerank: RerankConfig{
			Model:   reranker.DefaultModel,
			Timeout: reranker.DefaultTimeout,
		},
		Retrieval: RetrievalConfig{
			Threshold:       searcher.DefaultThreshold,
			Weights:         fusion.DefaultWeights(),
			VectorTimeout:   retriever.DefaultTimeout,
			FullTextTimeout: retriever.DefaultTimeout,
			EmbedTimeout:    embedder.DefaultQueryTimeout,
			CandidateFactor: searcher.DefaultCandidateFactor,
			HistoryLimit:    searcher.DefaultHistoryLimit,
		},
		Context: ContextConfig{
			MaxTokens: searcher.DefaultMaxContextTokens,
			Config:    assembler.DefaultConfig(),
		},
		Cache: CacheConfig{
			Enabled:      true,
			Backend:      CacheSQL,
			Size:         cache.DefaultMemoryEntries,
			EmbeddingTTL: 24 * time.Hour,
			SearchTTL:    5 * time.Minute,
			WriteTimeout: cache.DefaultWriteTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultDatabasePath returns ~/.ragcontext/ragcontext.db, or a relative
// path when the home directory cannot be resolved
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ragcontext", "ragcontext.db")
	}
	return filepath.Join(home, ".ragcontext", "ragcontext.db")
}

// DefaultConfigPath returns ~/.ragcontext/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(filepath.Dir(DefaultDatabasePath()), "config.yaml")
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps RAGCTX_EMBEDDING__API_KEY to embedding.api_key
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks that the configuration contains valid values
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
		if c.Cache.Enabled && c.Cache.Backend == CacheSQL {
			return fmt.Errorf("cache.backend %q is only available with the sqlite driver", CacheSQL)
		}
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of sqlite, postgres", c.Database.Driver)
	}

	if c.Rerank.Enabled && c.Rerank.BaseURL == "" {
		return fmt.Errorf("rerank.base_url is required when rerank is enabled")
	}
	if c.Rerank.TopN < 0 {
		return fmt.Errorf("rerank.top_n must be non-negative")
	}

	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be within [0, 1]")
	}
	if err := c.Retrieval.Weights.Validate(); err != nil {
		return fmt.Errorf("retrieval.weights: %w", err)
	}

	if c.Context.MaxTokens <= 0 {
		return fmt.Errorf("context.max_tokens must be positive")
	}
	if err := c.Context.Config.Validate(); err != nil {
		return fmt.Errorf("context: %w", err)
	}

	if c.Cache.Enabled && c.Cache.Backend != CacheMemory && c.Cache.Backend != CacheSQL {
		return fmt.Errorf("invalid cache.backend %q: must be one of memory, sql", c.Cache.Backend)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log.format %q: must be one of json, text", c.Log.Format)
	}

	return nil
}
