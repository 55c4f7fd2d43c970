package research

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mikeboe/deep-research/pkg/search"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// Extractor compresses one query's search results into learnings and
// follow-up queries.
type Extractor interface {
	Extract(ctx context.Context, query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error)
}

// LLMExtractor asks a language model for learnings. Result content is fitted
// to MaxContentChars per result, and the whole request (system prompt,
// instructions and contents) to MaxPromptChars.
type LLMExtractor struct {
	gen             *Generator
	MaxContentChars int
	MaxPromptChars  int
}

func NewLLMExtractor(gen *Generator, maxContentChars, maxPromptChars int) *LLMExtractor {
	return &LLMExtractor{gen: gen, MaxContentChars: maxContentChars, MaxPromptChars: maxPromptChars}
}

func (x *LLMExtractor) Extract(ctx context.Context, query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
	schema := extractSchema(maxLearnings, maxFollowUps)
	fixed := utf8.RuneCountInString(x.gen.systemMessage(extractorInstruction, schema)) +
		utf8.RuneCountInString(extractInput(query, "", maxLearnings))

	contents := x.fitContents(results, fixed)
	if len(contents) == 0 {
		if len(results) > 0 {
			x.gen.logger().Warn("No result content fits the prompt budget", "query", query, "results", len(results))
		}
		return Extraction{}, nil
	}

	resp, err := generateJSON(ctx, x.gen,
		extractorInstruction,
		schema,
		extractInput(query, strings.Join(contents, "\n"), maxLearnings),
		func(e *Extraction) error {
			if e.Learnings == nil && e.FollowUpQueries == nil {
				return fmt.Errorf("response has neither learnings nor followUpQueries")
			}
			return nil
		})
	if err != nil {
		return Extraction{}, &ProviderError{Stage: StageExtract, Query: query, Err: err}
	}

	out := Extraction{
		Learnings:       cleanStrings(resp.Learnings, maxLearnings),
		FollowUpQueries: cleanStrings(resp.FollowUpQueries, maxFollowUps),
	}
	if maxFollowUps < 1 {
		out.FollowUpQueries = nil
	}
	x.gen.logger().Debug("Extracted learnings", "query", query, "learnings", len(out.Learnings), "follow_ups", len(out.FollowUpQueries))
	return out, nil
}

// fitContents wraps each non-empty result in a <content> tag, trimming the
// bodies so that fixed plus the joined block stays within MaxPromptChars.
// Results whose wrapper alone no longer fits are dropped from the end.
func (x *LLMExtractor) fitContents(results []search.Result, fixed int) []string {
	var bodies, urls []string
	for _, r := range results {
		body := strings.TrimSpace(r.Content)
		if body == "" {
			continue
		}
		if x.MaxContentChars > 0 {
			body = splitter.Trim(body, x.MaxContentChars)
		}
		bodies = append(bodies, body)
		urls = append(urls, r.URL)
	}

	if x.MaxPromptChars > 0 {
		budget := x.MaxPromptChars - fixed
		overhead, keep := 0, 0
		for _, u := range urls {
			// one more rune for the joining newline
			o := utf8.RuneCountInString(wrapContent(u, "")) + 1
			if overhead+o >= budget {
				break
			}
			overhead += o
			keep++
		}
		bodies, urls = bodies[:keep], urls[:keep]
		bodies = splitter.FitBudget(bodies, budget-overhead)
	}

	out := make([]string, 0, len(bodies))
	for i, b := range bodies {
		if b == "" {
			continue
		}
		out = append(out, wrapContent(urls[i], b))
	}
	return out
}

func wrapContent(url, body string) string {
	return fmt.Sprintf("<content url=%q>\n%s\n</content>", url, body)
}
