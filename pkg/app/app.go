// Package app assembles a research engine from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/cache"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/fetch"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/search"
)

// Results shorter than this are replaced by the fetched page.
const enrichBelowChars = 2000

// NewEngine validates cfg and builds the engine with its models, search
// stack and cache. The returned func releases cache connections.
func NewEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*research.Engine, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	fast, err := clients.New(ctx, cfg, clients.FastModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create fast model: %w", err)
	}
	reasoning, err := clients.New(ctx, cfg, clients.ReasoningModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create reasoning model: %w", err)
	}

	mode, err := research.ParseContextMode(cfg.ContextMode)
	if err != nil {
		return nil, nil, &config.ConfigError{Key: "CONTEXT_MODE", Reason: err.Error()}
	}

	searcher, cleanup, err := NewSearcher(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	engine := research.NewEngine(fast, searcher, Options(cfg, mode, reasoning))
	engine.SetLogger(logger)

	logger.Info("Research engine ready",
		"llm_provider", cfg.LLMProvider,
		"fast_model", cfg.FastModel,
		"reasoning_model", cfg.ReasoningModel,
		"search_provider", cfg.SearchProvider,
		"cache", cfg.CacheBackend,
		"concurrency", cfg.ConcurrencyLimit,
		"context_mode", mode,
	)
	return engine, cleanup, nil
}

// Options maps configuration onto engine options.
func Options(cfg *config.Config, mode research.ContextMode, reportModel llms.Model) research.Options {
	return research.Options{
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		SearchTimeout:    cfg.SearchTimeout,
		LLMTimeout:       cfg.LLMTimeout,
		MaxRetries:       cfg.LLMMaxRetries,
		ContextMode:      mode,
		ReportModel:      reportModel,
	}
}

// NewSearcher builds the provider selected by SEARCH_PROVIDER and layers
// page enrichment, rate limiting and caching on top of it.
func NewSearcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (search.Searcher, func(), error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, nil, err
	}
	var s search.Searcher = provider

	if fetcher := newFetcher(cfg); fetcher != nil {
		enriched := search.Enriched(s, fetcher, enrichBelowChars)
		enriched.Logger = logger
		s = enriched
	}

	if cfg.SearchRateLimit > 0 {
		s = search.RateLimited(s, cfg.SearchRateLimit, 1)
	}

	store, cleanup, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if store != nil {
		cached := search.Cached(s, store, cfg.SearchProvider, cfg.CacheTTL)
		cached.Logger = logger
		s = cached
	}

	return s, cleanup, nil
}

func newProvider(cfg *config.Config) (search.Searcher, error) {
	switch cfg.SearchProvider {
	case "firecrawl":
		return search.NewFirecrawl(cfg.FirecrawlApiKey, cfg.FirecrawlBaseURL, cfg.SearchTimeout), nil
	case "tavily":
		return search.NewTavily(cfg.TavilyApiKey, cfg.SearchTimeout), nil
	case "brave":
		return search.NewBrave(cfg.BraveApiKey, cfg.SearchTimeout), nil
	case "arxiv":
		return search.NewArxiv(cfg.SearchTimeout), nil
	default:
		return nil, &config.ConfigError{Key: "SEARCH_PROVIDER", Reason: "unknown provider " + cfg.SearchProvider}
	}
}

// newFetcher returns nil for providers that already return page content.
func newFetcher(cfg *config.Config) search.PageFetcher {
	var ocr fetch.Fetcher
	if cfg.MistralApiKey != "" {
		ocr = fetch.NewOCR(cfg.MistralApiKey, cfg.LLMTimeout)
	}

	switch cfg.SearchProvider {
	case "brave":
		router := &fetch.Router{HTML: fetch.NewHTTP(cfg.SearchTimeout)}
		if ocr != nil {
			router.PDF = ocr
		}
		return router
	case "arxiv":
		// arXiv links are PDFs; without OCR the abstract is all we have.
		if ocr == nil {
			return nil
		}
		return &fetch.Router{HTML: fetch.NewHTTP(cfg.SearchTimeout), PDF: ocr}
	default:
		return nil
	}
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Store, func(), error) {
	noop := func() {}

	switch cfg.CacheBackend {
	case "redis":
		store := cache.NewRedisStore(cache.RedisOptions{Addr: cfg.RedisAddr})
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("redis cache unavailable at %s: %w", cfg.RedisAddr, err)
		}
		return store, func() { _ = store.Close() }, nil

	case "postgres":
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		if n, err := db.PurgeExpired(ctx); err != nil {
			logger.Warn("Failed to purge expired cache entries", "error", err)
		} else if n > 0 {
			logger.Info("Purged expired cache entries", "count", n)
		}
		return cache.NewPostgresStore(db.Pool), db.Close, nil

	default:
		return nil, noop, nil
	}
}
