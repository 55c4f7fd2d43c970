package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Generator sends prompts to a language model under the shared limiter and
// retries until the response passes validation.
type Generator struct {
	LLM        llms.Model
	Limiter    *Limiter
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// generateWithRetry attempts to generate content and validates it using the provided function.
// Between attempts it backs off linearly without holding a limiter slot.
func (g *Generator) generateWithRetry(ctx context.Context, prompts []llms.MessageContent, validator func(string) error) (string, error) {
	maxRetries := g.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			g.logger().Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			if err := sleepCtx(ctx, g.RetryDelay*time.Duration(i)); err != nil {
				return "", err
			}
		}

		var content string
		err := g.Limiter.Do(ctx, g.Timeout, func(ctx context.Context) error {
			resp, err := g.LLM.GenerateContent(ctx, prompts, llms.WithJSONMode())
			if err != nil {
				return fmt.Errorf("llm generation failed: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("llm returned no choices")
			}
			content = resp.Choices[0].Content
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}

		content = stripCodeFence(content)
		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

// generateJSON runs system+input through the model and decodes the reply
// into a fresh T, accepting it only when check passes.
func generateJSON[T any](ctx context.Context, g *Generator, system, schema, input string, check func(*T) error) (T, error) {
	var out T
	_, err := g.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, g.systemMessage(system, schema)),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, func(content string) error {
		var candidate T
		if err := json.Unmarshal([]byte(content), &candidate); err != nil {
			return fmt.Errorf("json parse error: %w", err)
		}
		if check != nil {
			if err := check(&candidate); err != nil {
				return err
			}
		}
		out = candidate
		return nil
	})
	return out, err
}

// systemMessage is the full system prompt sent with a stage instruction.
func (g *Generator) systemMessage(instruction, schema string) string {
	return systemPrompt(g.now()) + "\n\n" + instruction + "\n\n# Response Format:\n\n" + schema
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite
// JSON mode.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = strings.TrimPrefix(t, "json")
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// cleanStrings trims entries, drops empty ones and caps the list at limit.
func cleanStrings(values []string, limit int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
