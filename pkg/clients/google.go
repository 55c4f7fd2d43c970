package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/googleai"
)

// ModelType selects between the fast and the reasoning model of a provider.
type ModelType string

const (
	// FastModel drives planning, extraction and feedback.
	FastModel ModelType = "fast"
	// ReasoningModel writes the final report.
	ReasoningModel ModelType = "reasoning"
)

// GoogleAi builds a Gemini client for the given model name.
func GoogleAi(ctx context.Context, apiKey, modelName string) (*googleai.GoogleAI, error) {
	if modelName == "" {
		return nil, fmt.Errorf("google model name is empty")
	}

	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(modelName))
	if err != nil {
		return nil, fmt.Errorf("failed to init google ai: %w", err)
	}

	return llm, nil
}
