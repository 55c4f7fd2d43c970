package research

import (
	"context"
	"strings"
)

// PlanRequest asks for up to NumQueries next queries for Prompt.
type PlanRequest struct {
	Prompt     string
	NumQueries int
	// Context holds the learnings visible to this node.
	Context []string
	// Issued holds every query already issued in the run.
	Issued []string
}

// Planner produces the next level of search queries. An empty list means the
// topic is exhausted.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) ([]SerpQuery, error)
}

// LLMPlanner asks a language model for queries.
type LLMPlanner struct {
	gen *Generator
}

func NewLLMPlanner(gen *Generator) *LLMPlanner {
	return &LLMPlanner{gen: gen}
}

type planResponse struct {
	Queries []SerpQuery `json:"queries"`
}

func (p *LLMPlanner) Plan(ctx context.Context, req PlanRequest) ([]SerpQuery, error) {
	if req.NumQueries < 1 {
		return nil, nil
	}

	resp, err := generateJSON(ctx, p.gen,
		plannerInstruction,
		planQueriesSchema(req.NumQueries),
		planInput(req.Prompt, req.NumQueries, req.Context, req.Issued),
		func(r *planResponse) error {
			if r.Queries == nil {
				r.Queries = []SerpQuery{}
			}
			return nil
		})
	if err != nil {
		return nil, &ProviderError{Stage: StagePlan, Query: req.Prompt, Err: err}
	}

	queries := dedupQueries(resp.Queries, req.Issued, req.NumQueries)
	p.gen.logger().Debug("Generated queries", "count", len(queries), "requested", req.NumQueries)
	return queries, nil
}

// dedupQueries drops blank queries, queries already issued and repeats
// (case and whitespace insensitive), keeping the first occurrence, then
// truncates to n.
func dedupQueries(queries []SerpQuery, issued []string, n int) []SerpQuery {
	out := make([]SerpQuery, 0, len(queries))
	seen := make(map[string]struct{}, len(queries)+len(issued))
	for _, q := range issued {
		seen[normalizeQuery(q)] = struct{}{}
	}
	for _, q := range queries {
		key := normalizeQuery(q.Query)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, SerpQuery{Query: strings.TrimSpace(q.Query), ResearchGoal: strings.TrimSpace(q.ResearchGoal)})
		if len(out) >= n {
			break
		}
	}
	return out
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
