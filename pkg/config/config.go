package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds every runtime setting of the research service.
type Config struct {
	LLMProvider    string
	GoogleApiKey   string
	OpenAIApiKey   string
	OpenAIBaseURL  string
	ReasoningModel string
	FastModel      string

	SearchProvider   string
	FirecrawlApiKey  string
	FirecrawlBaseURL string
	TavilyApiKey     string
	BraveApiKey      string
	MistralApiKey    string
	SearchRateLimit  float64

	ConcurrencyLimit int
	SearchTimeout    time.Duration
	LLMTimeout       time.Duration
	LLMMaxRetries    int
	ContextMode      string

	CacheBackend string
	RedisAddr    string
	DatabaseURL  string
	CacheTTL     time.Duration

	Port       string
	MaxBreadth int
	MaxDepth   int

	LogLevel  string
	LogFormat string
}

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// Load reads .env (if present) and the environment. The result is never nil.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "google")),
		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		OpenAIApiKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		ReasoningModel: getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:      getEnv("FAST_MODEL", "gemini-3-flash-preview"),

		SearchProvider:   strings.ToLower(getEnv("SEARCH_PROVIDER", "firecrawl")),
		FirecrawlApiKey:  getEnv("FIRECRAWL_API_KEY", ""),
		FirecrawlBaseURL: getEnv("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev"),
		TavilyApiKey:     getEnv("TAVILY_API_KEY", ""),
		BraveApiKey:      getEnv("BRAVE_API_KEY", ""),
		MistralApiKey:    getEnv("MISTRAL_API_KEY", ""),
		SearchRateLimit:  getEnvAsFloat("SEARCH_RATE_LIMIT", 2),

		ConcurrencyLimit: getEnvAsInt("CONCURRENCY_LIMIT", 2),
		SearchTimeout:    getEnvAsDuration("SEARCH_TIMEOUT", 15*time.Second),
		LLMTimeout:       getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),
		LLMMaxRetries:    getEnvAsInt("LLM_MAX_RETRIES", 3),
		ContextMode:      strings.ToLower(getEnv("CONTEXT_MODE", "ancestors")),

		CacheBackend: strings.ToLower(getEnv("CACHE_BACKEND", "none")),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		CacheTTL:     getEnvAsDuration("CACHE_TTL", 24*time.Hour),

		Port:       getEnv("PORT", "3001"),
		MaxBreadth: getEnvAsInt("MAX_BREADTH", 10),
		MaxDepth:   getEnvAsInt("MAX_DEPTH", 5),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "ignoring config file %s: %v\n", path, err)
		}
	}

	return cfg
}

// MergeFile overlays the non-zero values of a TOML file onto c.
// Durations are written as strings ("15s", "2m").
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return file.apply(c)
}

// Validate checks that the selected providers have the settings they need.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "google":
		if c.GoogleApiKey == "" {
			return &ConfigError{Key: "GOOGLE_API_KEY", Reason: "required when LLM_PROVIDER is google"}
		}
	case "openai":
		if c.OpenAIApiKey == "" {
			return &ConfigError{Key: "OPENAI_API_KEY", Reason: "required when LLM_PROVIDER is openai"}
		}
	default:
		return &ConfigError{Key: "LLM_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.LLMProvider)}
	}

	switch c.SearchProvider {
	case "firecrawl":
		if c.FirecrawlApiKey == "" {
			return &ConfigError{Key: "FIRECRAWL_API_KEY", Reason: "required when SEARCH_PROVIDER is firecrawl"}
		}
	case "tavily":
		if c.TavilyApiKey == "" {
			return &ConfigError{Key: "TAVILY_API_KEY", Reason: "required when SEARCH_PROVIDER is tavily"}
		}
	case "brave":
		if c.BraveApiKey == "" {
			return &ConfigError{Key: "BRAVE_API_KEY", Reason: "required when SEARCH_PROVIDER is brave"}
		}
	case "arxiv":
	default:
		return &ConfigError{Key: "SEARCH_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.SearchProvider)}
	}

	switch c.CacheBackend {
	case "none", "":
	case "redis":
		if c.RedisAddr == "" {
			return &ConfigError{Key: "REDIS_ADDR", Reason: "required when CACHE_BACKEND is redis"}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return &ConfigError{Key: "DATABASE_URL", Reason: "required when CACHE_BACKEND is postgres"}
		}
	default:
		return &ConfigError{Key: "CACHE_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.CacheBackend)}
	}

	if c.ContextMode != "ancestors" && c.ContextMode != "global" {
		return &ConfigError{Key: "CONTEXT_MODE", Reason: "must be ancestors or global"}
	}
	if c.ConcurrencyLimit < 1 {
		return &ConfigError{Key: "CONCURRENCY_LIMIT", Reason: "must be at least 1"}
	}
	if c.MaxBreadth < 1 || c.MaxDepth < 0 {
		return &ConfigError{Key: "MAX_BREADTH", Reason: "MAX_BREADTH must be >= 1 and MAX_DEPTH >= 0"}
	}

	return nil
}

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// fileConfig is the TOML shape of Config. Durations are strings.
type fileConfig struct {
	LLMProvider      string  `toml:"llm_provider"`
	GoogleApiKey     string  `toml:"google_api_key"`
	OpenAIApiKey     string  `toml:"openai_api_key"`
	OpenAIBaseURL    string  `toml:"openai_base_url"`
	ReasoningModel   string  `toml:"reasoning_model"`
	FastModel        string  `toml:"fast_model"`
	SearchProvider   string  `toml:"search_provider"`
	FirecrawlApiKey  string  `toml:"firecrawl_api_key"`
	FirecrawlBaseURL string  `toml:"firecrawl_base_url"`
	TavilyApiKey     string  `toml:"tavily_api_key"`
	BraveApiKey      string  `toml:"brave_api_key"`
	MistralApiKey    string  `toml:"mistral_api_key"`
	SearchRateLimit  float64 `toml:"search_rate_limit"`
	ConcurrencyLimit int     `toml:"concurrency_limit"`
	SearchTimeout    string  `toml:"search_timeout"`
	LLMTimeout       string  `toml:"llm_timeout"`
	LLMMaxRetries    int     `toml:"llm_max_retries"`
	ContextMode      string  `toml:"context_mode"`
	CacheBackend     string  `toml:"cache_backend"`
	RedisAddr        string  `toml:"redis_addr"`
	DatabaseURL      string  `toml:"database_url"`
	CacheTTL         string  `toml:"cache_ttl"`
	Port             string  `toml:"port"`
	MaxBreadth       int     `toml:"max_breadth"`
	MaxDepth         int     `toml:"max_depth"`
	LogLevel         string  `toml:"log_level"`
	LogFormat        string  `toml:"log_format"`
}

func (f fileConfig) apply(c *Config) error {
	setString(&c.LLMProvider, strings.ToLower(f.LLMProvider))
	setString(&c.GoogleApiKey, f.GoogleApiKey)
	setString(&c.OpenAIApiKey, f.OpenAIApiKey)
	setString(&c.OpenAIBaseURL, f.OpenAIBaseURL)
	setString(&c.ReasoningModel, f.ReasoningModel)
	setString(&c.FastModel, f.FastModel)
	setString(&c.SearchProvider, strings.ToLower(f.SearchProvider))
	setString(&c.FirecrawlApiKey, f.FirecrawlApiKey)
	setString(&c.FirecrawlBaseURL, f.FirecrawlBaseURL)
	setString(&c.TavilyApiKey, f.TavilyApiKey)
	setString(&c.BraveApiKey, f.BraveApiKey)
	setString(&c.MistralApiKey, f.MistralApiKey)
	setString(&c.ContextMode, strings.ToLower(f.ContextMode))
	setString(&c.CacheBackend, strings.ToLower(f.CacheBackend))
	setString(&c.RedisAddr, f.RedisAddr)
	setString(&c.DatabaseURL, f.DatabaseURL)
	setString(&c.Port, f.Port)
	setString(&c.LogLevel, strings.ToLower(f.LogLevel))
	setString(&c.LogFormat, strings.ToLower(f.LogFormat))

	if f.SearchRateLimit > 0 {
		c.SearchRateLimit = f.SearchRateLimit
	}
	if f.ConcurrencyLimit > 0 {
		c.ConcurrencyLimit = f.ConcurrencyLimit
	}
	if f.LLMMaxRetries > 0 {
		c.LLMMaxRetries = f.LLMMaxRetries
	}
	if f.MaxBreadth > 0 {
		c.MaxBreadth = f.MaxBreadth
	}
	if f.MaxDepth > 0 {
		c.MaxDepth = f.MaxDepth
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"search_timeout", f.SearchTimeout, &c.SearchTimeout},
		{"llm_timeout", f.LLMTimeout, &c.LLMTimeout},
		{"cache_ttl", f.CacheTTL, &c.CacheTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return &ConfigError{Key: d.key, Reason: err.Error()}
		}
		*d.dst = v
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("15s") or a plain number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
