package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI builds a client for the OpenAI API or any compatible endpoint.
func OpenAI(apiKey, baseURL, modelName string) (*openai.LLM, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(modelName),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init openai: %w", err)
	}
	return llm, nil
}
