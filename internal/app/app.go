// Package app builds the ragcontext component graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/ragcontext-mcp/internal/assembler"
	"github.com/dshills/ragcontext-mcp/internal/cache"
	"github.com/dshills/ragcontext-mcp/internal/config"
	"github.com/dshills/ragcontext-mcp/internal/embedder"
	"github.com/dshills/ragcontext-mcp/internal/indexer"
	"github.com/dshills/ragcontext-mcp/internal/reranker"
	"github.com/dshills/ragcontext-mcp/internal/retriever"
	"github.com/dshills/ragcontext-mcp/internal/searcher"
	"github.com/dshills/ragcontext-mcp/internal/storage"
)

// App owns every long-lived component. Close releases them in reverse order.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    storage.Storage
	Provider embedder.Embedder
	Searcher *searcher.Searcher
	Indexer  *indexer.Indexer

	embeddingCache *cache.Cache[[]float32]
	searchCache    *cache.Cache[searcher.SearchResponse]
}

// New opens the store and builds the pipeline described by cfg
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := embedder.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	store, err := OpenStore(ctx, cfg.Database, provider.Dimension())
	if err != nil {
		_ = provider.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Provider: provider,
	}

	if err := a.buildCaches(store); err != nil {
		_ = a.Close()
		return nil, err
	}

	if err := a.buildPipeline(); err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Info("app_initialized",
		slog.String("driver", cfg.Database.Driver),
		slog.String("embedding_provider", provider.Provider()),
		slog.String("embedding_model", provider.Model()),
		slog.Int("embedding_dimension", provider.Dimension()),
		slog.Bool("rerank_enabled", cfg.Rerank.Enabled),
		slog.Bool("cache_enabled", cfg.Cache.Enabled))
	return a, nil
}

// OpenStore opens the configured chunk store. dimension sizes the pgvector
// column and is ignored by SQLite.
func OpenStore(ctx context.Context, db config.DatabaseConfig, dimension int) (storage.Storage, error) {
	switch db.Driver {
	case config.DriverPostgres:
		store, err := storage.NewPostgresStorage(ctx, storage.PostgresConfig{
			DSN:       db.DSN,
			Dimension: dimension,
			MaxConns:  int(db.MaxConns),
			MinConns:  int(db.MinConns),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	case config.DriverSQLite, "":
		if db.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(db.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := storage.NewSQLiteStorage(db.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", db.Driver)
	}
}

func (a *App) buildCaches(store storage.Storage) error {
	cc := a.Config.Cache
	if !cc.Enabled {
		return nil
	}

	// Each cache gets its own backend so purging search responses keeps embeddings
	embeddingBackend, err := newCacheBackend(cc, store)
	if err != nil {
		return err
	}
	searchBackend, err := newCacheBackend(cc, store)
	if err != nil {
		return err
	}

	a.embeddingCache = cache.New[[]float32](embeddingBackend, cache.Options{
		Name:         "embedding",
		TTL:          cc.EmbeddingTTL,
		WriteTimeout: cc.WriteTimeout,
		Logger:       a.Logger,
	})
	a.searchCache = cache.New[searcher.SearchResponse](searchBackend, cache.Options{
		Name:         "search",
		TTL:          cc.SearchTTL,
		WriteTimeout: cc.WriteTimeout,
		Logger:       a.Logger,
	})
	return nil
}

// newCacheBackend returns a fresh memory backend, or a handle on the store's
// cache_entries table
func newCacheBackend(cc config.CacheConfig, store storage.Storage) (cache.Backend, error) {
	if cc.Backend == config.CacheSQL {
		sqlite, ok := store.(*storage.SQLiteStorage)
		if !ok {
			return nil, fmt.Errorf("cache backend %q requires the sqlite driver", cc.Backend)
		}
		return cache.NewSQLBackend(sqlite.DB()), nil
	}
	mem, err := cache.NewMemoryBackend(cc.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return mem, nil
}

func (a *App) buildPipeline() error {
	cfg := a.Config

	queryEmbedder := embedder.NewQueryEmbedder(a.Provider, embedder.QueryEmbedderOptions{
		Cache:   a.embeddingCache,
		TTL:     cfg.Cache.EmbeddingTTL,
		Timeout: cfg.Retrieval.EmbedTimeout,
		Logger:  a.Logger,
	})

	var rr *reranker.Reranker
	if cfg.Rerank.Enabled {
		client, err := reranker.NewHTTPClient(reranker.HTTPConfig{
			BaseURL:           cfg.Rerank.BaseURL,
			APIKey:            cfg.Rerank.APIKey,
			Model:             cfg.Rerank.Model,
			RequestsPerSecond: cfg.Rerank.RequestsPerSecond,
			Logger:            a.Logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize reranker: %w", err)
		}
		rr = reranker.New(client, reranker.Options{Timeout: cfg.Rerank.Timeout, Logger: a.Logger})
	}

	asm, err := assembler.New(cfg.Context.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize assembler: %w", err)
	}

	opts := searcher.DefaultOptions()
	opts.Weights = cfg.Retrieval.Weights
	opts.EnableRerank = cfg.Rerank.Enabled
	opts.RerankTopN = cfg.Rerank.TopN
	opts.Threshold = cfg.Retrieval.Threshold
	opts.MaxContextTokens = cfg.Context.MaxTokens
	opts.CandidateFactor = cfg.Retrieval.CandidateFactor
	opts.HistoryLimit = cfg.Retrieval.HistoryLimit
	opts.CacheTTL = cfg.Cache.SearchTTL

	srch, err := searcher.New(searcher.Dependencies{
		Embedder:  queryEmbedder,
		Vector:    retriever.NewVectorRetriever(a.Store, retriever.Options{Timeout: cfg.Retrieval.VectorTimeout, Logger: a.Logger}),
		FullText:  retriever.NewFullTextRetriever(a.Store, retriever.Options{Timeout: cfg.Retrieval.FullTextTimeout, Logger: a.Logger}),
		Reranker:  rr,
		Assembler: asm,
		History:   a.Store,
		Cache:     a.searchCache,
		Logger:    a.Logger,
	}, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize searcher: %w", err)
	}

	a.Searcher = srch
	a.Indexer = indexer.New(a.Store, a.Provider, a.Logger)
	return nil
}

// Close flushes pending cache writes and closes the provider and store
func (a *App) Close() error {
	if a.Searcher != nil {
		a.Searcher.Flush()
	}
	if a.embeddingCache != nil {
		a.embeddingCache.Flush()
	}

	var errs []error
	if a.Provider != nil {
		if err := a.Provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedder: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
