package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/fetch"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/search"
)

func testConfig() *config.Config {
	return &config.Config{
		LLMProvider:      "openai",
		OpenAIApiKey:     "sk-test",
		ReasoningModel:   "o3-mini",
		FastModel:        "gpt-4o-mini",
		SearchProvider:   "arxiv",
		SearchRateLimit:  0,
		ConcurrencyLimit: 3,
		SearchTimeout:    5 * time.Second,
		LLMTimeout:       30 * time.Second,
		LLMMaxRetries:    2,
		ContextMode:      "global",
		CacheBackend:     "none",
		CacheTTL:         time.Hour,
		MaxBreadth:       10,
		MaxDepth:         5,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewEngine(t *testing.T) {
	engine, cleanup, err := NewEngine(context.Background(), testConfig(), discard())
	require.NoError(t, err)
	defer cleanup()

	opts := engine.Options()
	assert.Equal(t, 3, opts.ConcurrencyLimit)
	assert.Equal(t, 2, opts.MaxRetries)
	assert.Equal(t, research.ContextGlobal, opts.ContextMode)
	assert.NotNil(t, opts.ReportModel)
	assert.IsType(t, &search.Arxiv{}, engine.Searcher)
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAIApiKey = ""

	_, _, err := NewEngine(context.Background(), cfg, discard())
	require.Error(t, err)
	assert.True(t, config.IsConfigError(err))
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     search.Searcher
	}{
		{"firecrawl", &search.Firecrawl{}},
		{"tavily", &search.Tavily{}},
		{"brave", &search.Brave{}},
		{"arxiv", &search.Arxiv{}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := testConfig()
			cfg.SearchProvider = tt.provider
			got, err := newProvider(cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}

	cfg := testConfig()
	cfg.SearchProvider = "bing"
	_, err := newProvider(cfg)
	assert.True(t, config.IsConfigError(err))
}

func TestNewFetcher(t *testing.T) {
	cfg := testConfig()

	cfg.SearchProvider = "tavily"
	assert.Nil(t, newFetcher(cfg))

	cfg.SearchProvider = "arxiv"
	assert.Nil(t, newFetcher(cfg), "arxiv needs OCR")

	cfg.MistralApiKey = "m-key"
	router, ok := newFetcher(cfg).(*fetch.Router)
	require.True(t, ok)
	assert.IsType(t, &fetch.OCRFetcher{}, router.PDF)

	cfg.SearchProvider = "brave"
	cfg.MistralApiKey = ""
	router, ok = newFetcher(cfg).(*fetch.Router)
	require.True(t, ok)
	assert.Nil(t, router.PDF)
	assert.IsType(t, &fetch.HTTPFetcher{}, router.HTML)
}

func TestNewSearcherLayers(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.SearchProvider = "brave"
	cfg.BraveApiKey = "b-key"
	cfg.SearchRateLimit = 2
	cfg.CacheBackend = "redis"
	cfg.RedisAddr = mr.Addr()

	s, cleanup, err := NewSearcher(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &search.CachedSearcher{}, s)
}

func TestNewSearcherRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.CacheBackend = "redis"
	cfg.RedisAddr = addr

	_, _, err := NewSearcher(context.Background(), cfg, discard())
	assert.ErrorContains(t, err, "redis cache unavailable")
}
