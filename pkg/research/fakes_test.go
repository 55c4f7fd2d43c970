package research

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/search"
)

// fakeLLM answers from a scripted function of the system and human prompts.
type fakeLLM struct {
	mu      sync.Mutex
	respond func(system, human string) (string, error)
	humans  []string
	systems []string
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var system, human string
	for _, m := range messages {
		for _, p := range m.Parts {
			t, ok := p.(llms.TextContent)
			if !ok {
				continue
			}
			switch m.Role {
			case llms.ChatMessageTypeSystem:
				system += t.Text
			case llms.ChatMessageTypeHuman:
				human += t.Text
			}
		}
	}

	f.mu.Lock()
	f.humans = append(f.humans, human)
	f.systems = append(f.systems, system)
	f.mu.Unlock()

	out, err := f.respond(system, human)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.humans)
}

func (f *fakeLLM) lastHuman() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.humans) == 0 {
		return ""
	}
	return f.humans[len(f.humans)-1]
}

func (f *fakeLLM) lastSystem() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.systems) == 0 {
		return ""
	}
	return f.systems[len(f.systems)-1]
}

type fakePlanner struct {
	mu       sync.Mutex
	fn       func(req PlanRequest) ([]SerpQuery, error)
	requests []PlanRequest
}

func (p *fakePlanner) Plan(ctx context.Context, req PlanRequest) ([]SerpQuery, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	return p.fn(req)
}

func (p *fakePlanner) all() []PlanRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlanRequest(nil), p.requests...)
}

func (p *fakePlanner) find(prefix string) (PlanRequest, bool) {
	for _, r := range p.all() {
		if len(r.Prompt) >= len(prefix) && r.Prompt[:len(prefix)] == prefix {
			return r, true
		}
	}
	return PlanRequest{}, false
}

type extractCall struct {
	Query        string
	MaxLearnings int
	MaxFollowUps int
}

type fakeExtractor struct {
	mu    sync.Mutex
	fn    func(query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error)
	calls []extractCall
}

func (x *fakeExtractor) Extract(ctx context.Context, query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
	x.mu.Lock()
	x.calls = append(x.calls, extractCall{Query: query, MaxLearnings: maxLearnings, MaxFollowUps: maxFollowUps})
	x.mu.Unlock()
	return x.fn(query, results, maxLearnings, maxFollowUps)
}

func (x *fakeExtractor) count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.calls)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unusedLLM() *fakeLLM {
	return &fakeLLM{respond: func(system, human string) (string, error) {
		return "", errors.New("unexpected llm call")
	}}
}

func newTestEngine(planner Planner, searcher search.Searcher, extractor Extractor, opts Options) *Engine {
	if opts.RetryDelay == 0 {
		opts.RetryDelay = -1
	}
	e := NewEngine(unusedLLM(), searcher, opts)
	e.Planner = planner
	e.Extractor = extractor
	e.SetLogger(discardLogger())
	return e
}

// urlSearcher returns one result per query at https://example.com/<query>.
func urlSearcher() search.Searcher {
	return search.SearcherFunc(func(ctx context.Context, query string, limit int) ([]search.Result, error) {
		return []search.Result{{URL: "https://example.com/" + query, Content: "content for " + query}}, nil
	})
}

func learningPerQuery() *fakeExtractor {
	return &fakeExtractor{fn: func(query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
		return Extraction{Learnings: []string{"Learning from " + query}}, nil
	}}
}
