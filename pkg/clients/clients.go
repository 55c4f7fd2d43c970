package clients

import (
	"context"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/config"
)

// New returns the configured provider's model for the requested role.
func New(ctx context.Context, cfg *config.Config, model ModelType) (llms.Model, error) {
	name := cfg.FastModel
	if model == ReasoningModel {
		name = cfg.ReasoningModel
	}

	switch cfg.LLMProvider {
	case "google":
		if cfg.GoogleApiKey == "" {
			return nil, &config.ConfigError{Key: "GOOGLE_API_KEY", Reason: "not set"}
		}
		return GoogleAi(ctx, cfg.GoogleApiKey, name)
	case "openai":
		if cfg.OpenAIApiKey == "" {
			return nil, &config.ConfigError{Key: "OPENAI_API_KEY", Reason: "not set"}
		}
		return OpenAI(cfg.OpenAIApiKey, cfg.OpenAIBaseURL, name)
	default:
		return nil, &config.ConfigError{Key: "LLM_PROVIDER", Reason: "unknown provider " + cfg.LLMProvider}
	}
}
