package research

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/search"
)

func fixedQueries(names ...string) *fakePlanner {
	return &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
		out := make([]SerpQuery, 0, len(names))
		for _, n := range names {
			out = append(out, SerpQuery{Query: n, ResearchGoal: "goal " + n})
		}
		return out, nil
	}}
}

func assertUnique(t *testing.T, values []string) {
	t.Helper()
	seen := map[string]bool{}
	for _, v := range values {
		assert.False(t, seen[v], "duplicate %q", v)
		seen[v] = true
	}
}

func TestDeepResearchDepthZero(t *testing.T) {
	planner := fixedQueries("q0", "q1", "q2")
	extractor := learningPerQuery()
	e := newTestEngine(planner, urlSearcher(), extractor, Options{})

	res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 3, Depth: 0})
	require.NoError(t, err)

	require.Len(t, planner.all(), 1)
	assert.Equal(t, 3, planner.all()[0].NumQueries)
	assert.Equal(t, []string{"https://example.com/q0", "https://example.com/q1", "https://example.com/q2"}, res.VisitedURLs)
	assert.Equal(t, []string{"Learning from q0", "Learning from q1", "Learning from q2"}, res.Learnings)
	assert.Equal(t, 3, extractor.count())
}

func TestDeepResearchBreadthHalving(t *testing.T) {
	var n atomic.Int32
	planner := &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
		out := make([]SerpQuery, req.NumQueries)
		for i := range out {
			id := n.Add(1)
			out[i] = SerpQuery{Query: fmt.Sprintf("q%d", id), ResearchGoal: fmt.Sprintf("goal %d", id)}
		}
		return out, nil
	}}
	extractor := &fakeExtractor{fn: func(query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
		learnings := make([]string, maxLearnings)
		for i := range learnings {
			learnings[i] = fmt.Sprintf("%s learning %d", query, i)
		}
		return Extraction{Learnings: learnings, FollowUpQueries: []string{"follow " + query}}, nil
	}}
	e := newTestEngine(planner, urlSearcher(), extractor, Options{})

	res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 2, Depth: 1})
	require.NoError(t, err)

	requests := planner.all()
	require.Len(t, requests, 3)
	numQueries := []int{}
	for _, r := range requests {
		numQueries = append(numQueries, r.NumQueries)
	}
	assert.ElementsMatch(t, []int{2, 1, 1}, numQueries)

	assert.Equal(t, 4, extractor.count())
	for _, c := range extractor.calls {
		assert.Equal(t, 1, c.MaxFollowUps)
		assert.Equal(t, DefaultMaxLearnings, c.MaxLearnings)
	}
	assert.LessOrEqual(t, len(res.Learnings), 4*DefaultMaxLearnings)
	assert.Len(t, res.Learnings, 4*DefaultMaxLearnings)
	assert.Len(t, res.VisitedURLs, 4)
}

func TestDeepResearchUniqueURLsAcrossBranches(t *testing.T) {
	var n atomic.Int32
	planner := &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
		out := make([]SerpQuery, req.NumQueries)
		for i := range out {
			out[i] = SerpQuery{Query: fmt.Sprintf("q%d", n.Add(1)), ResearchGoal: "g"}
		}
		return out, nil
	}}
	searcher := search.SearcherFunc(func(ctx context.Context, query string, limit int) ([]search.Result, error) {
		return []search.Result{
			{URL: "https://shared.example", Content: "shared"},
			{URL: "https://example.com/" + query, Content: "own"},
			{URL: "", Content: "no url"},
		}, nil
	})
	e := newTestEngine(planner, searcher, learningPerQuery(), Options{ConcurrencyLimit: 4})

	res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 3, Depth: 2})
	require.NoError(t, err)

	assertUnique(t, res.VisitedURLs)
	assertUnique(t, res.Learnings)
	assert.Equal(t, "https://shared.example", res.VisitedURLs[0])
	assert.NotContains(t, res.VisitedURLs, "")
	// 3 root + 3*2 children + 6*1 grandchildren own URLs, plus the shared one.
	assert.Len(t, res.VisitedURLs, 1+3+6+6)
}

func TestDeepResearchSearchAlwaysFails(t *testing.T) {
	planner := fixedQueries("a", "b")
	extractor := learningPerQuery()
	searcher := search.SearcherFunc(func(ctx context.Context, query string, limit int) ([]search.Result, error) {
		return nil, errors.New("search is down")
	})
	e := newTestEngine(planner, searcher, extractor, Options{})

	res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 2, Depth: 2})
	require.NoError(t, err)
	assert.Equal(t, Result{Learnings: []string{}, VisitedURLs: []string{}}, res)
	assert.Equal(t, 0, extractor.count())
	assert.Len(t, planner.all(), 1, "failed branches are not recursed")
}

func TestDeepResearchEmptySearchPrunesBranch(t *testing.T) {
	planner := fixedQueries("empty", "full")
	extractor := learningPerQuery()
	searcher := search.SearcherFunc(func(ctx context.Context, query string, limit int) ([]search.Result, error) {
		if query == "empty" {
			return nil, nil
		}
		return []search.Result{{URL: "https://full", Content: "x"}}, nil
	})
	e := newTestEngine(planner, searcher, extractor, Options{})

	res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 2, Depth: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://full"}, res.VisitedURLs)
	assert.Equal(t, 1, extractor.count())
}

func TestDeepResearchExtractFailureKeepsURLsAndRecurses(t *testing.T) {
	planner := &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
		if req.Prompt == "topic" {
			return []SerpQuery{{Query: "root", ResearchGoal: "understand the root"}}, nil
		}
		return nil, nil
	}}
	extractor := &fakeExtractor{fn: func(query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
		return Extraction{}, &ProviderError{Stage: StageExtract, Query: query, Err: errors.New("bad json")}
	}}
	e := newTestEngine(planner, urlSearcher(), extractor, Options{})

	res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 1, Depth: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/root"}, res.VisitedURLs)
	assert.Empty(t, res.Learnings)

	child, ok := planner.find("Previous research goal:")
	require.True(t, ok)
	assert.Equal(t, "Previous research goal: understand the root\nFollow-up research directions:", child.Prompt)
}

func TestDeepResearchChildQueryCarriesFollowUps(t *testing.T) {
	planner := &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
		if req.Prompt == "topic" {
			return []SerpQuery{{Query: "root", ResearchGoal: "goal"}}, nil
		}
		return nil, nil
	}}
	extractor := &fakeExtractor{fn: func(query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
		return Extraction{Learnings: []string{"L"}, FollowUpQueries: []string{"first", "second"}}, nil
	}}
	e := newTestEngine(planner, urlSearcher(), extractor, Options{})

	_, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 1, Depth: 1})
	require.NoError(t, err)

	child, ok := planner.find("Previous research goal:")
	require.True(t, ok)
	assert.Equal(t, "Previous research goal: goal\nFollow-up research directions:\nfirst\nsecond", child.Prompt)
	assert.Equal(t, 1, child.NumQueries)
	assert.Equal(t, []string{"root"}, child.Issued)
}

func TestDeepResearchPlannerFailure(t *testing.T) {
	planner := &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
		return nil, &ProviderError{Stage: StagePlan, Query: req.Prompt, Err: errors.New("timeout")}
	}}
	e := newTestEngine(planner, urlSearcher(), learningPerQuery(), Options{})

	res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 4, Depth: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Learnings)
	assert.Empty(t, res.VisitedURLs)
	assert.NotNil(t, res.Learnings)
}

func TestDeepResearchInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		req     DeepResearchRequest
		wantErr bool
	}{
		{"empty query", DeepResearchRequest{Query: "  ", Breadth: 2, Depth: 1}, true},
		{"zero breadth", DeepResearchRequest{Query: "q", Breadth: 0, Depth: 1}, false},
		{"negative depth", DeepResearchRequest{Query: "q", Breadth: 2, Depth: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := fixedQueries("x")
			e := newTestEngine(planner, urlSearcher(), learningPerQuery(), Options{})

			res, err := e.DeepResearch(context.Background(), tt.req)
			if tt.wantErr {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, "query", ve.Field)
			} else {
				require.NoError(t, err)
			}
			assert.Empty(t, res.Learnings)
			assert.Empty(t, res.VisitedURLs)
			assert.Empty(t, planner.all(), "no provider calls")
		})
	}
}

func TestDeepResearchEndToEnd(t *testing.T) {
	planner := fixedQueries("Q1", "Q2")
	extractor := learningPerQuery()
	e := newTestEngine(planner, urlSearcher(), extractor, Options{})

	res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "Test query", Breadth: 4, Depth: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/Q1", "https://example.com/Q2"}, res.VisitedURLs)
	assert.Equal(t, []string{"Learning from Q1", "Learning from Q2"}, res.Learnings)

	// root (breadth 4): 2 branches; depth 1 (breadth 2): 2 nodes x 2;
	// depth 0 (breadth 1): 4 nodes x 1 after truncation.
	assert.Equal(t, 2+4+4, extractor.count())
	for _, r := range planner.all() {
		assert.LessOrEqual(t, r.NumQueries, 4)
	}
}

func TestDeepResearchDeterministic(t *testing.T) {
	planner := func() *fakePlanner {
		return &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(req.Prompt))
			base := h.Sum32() % 1000
			out := make([]SerpQuery, req.NumQueries)
			for i := range out {
				q := fmt.Sprintf("q-%d-%d", base, i)
				out[i] = SerpQuery{Query: q, ResearchGoal: "goal " + q}
			}
			return out, nil
		}}
	}
	searcher := func(reverse bool) search.Searcher {
		return search.SearcherFunc(func(ctx context.Context, query string, limit int) ([]search.Result, error) {
			d := time.Duration(len(query)%4) * time.Millisecond
			if reverse {
				d = 4*time.Millisecond - d
			}
			time.Sleep(d)
			return []search.Result{{URL: "https://example.com/" + query, Content: "c"}}, nil
		})
	}
	extractor := func() *fakeExtractor {
		return &fakeExtractor{fn: func(query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
			return Extraction{Learnings: []string{"fact " + query}, FollowUpQueries: []string{"more " + query}}, nil
		}}
	}

	req := DeepResearchRequest{Query: "topic", Breadth: 3, Depth: 2}
	first, err := newTestEngine(planner(), searcher(false), extractor(), Options{ConcurrencyLimit: 3}).DeepResearch(context.Background(), req)
	require.NoError(t, err)
	second, err := newTestEngine(planner(), searcher(true), extractor(), Options{ConcurrencyLimit: 3}).DeepResearch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.Learnings)
}

func TestDeepResearchContextModes(t *testing.T) {
	run := func(t *testing.T, mode ContextMode) *fakePlanner {
		bChildPlanned := make(chan struct{})
		var once sync.Once

		planner := &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
			switch {
			case req.Prompt == "root":
				return []SerpQuery{{Query: "A", ResearchGoal: "goal-A"}, {Query: "B", ResearchGoal: "goal-B"}}, nil
			case strings.HasPrefix(req.Prompt, "Previous research goal: goal-B"):
				once.Do(func() { close(bChildPlanned) })
			}
			return nil, nil
		}}
		extractor := &fakeExtractor{fn: func(query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
			if query == "A" {
				select {
				case <-bChildPlanned:
				case <-time.After(5 * time.Second):
					return Extraction{}, errors.New("branch B never planned")
				}
				return Extraction{Learnings: []string{"LA"}}, nil
			}
			return Extraction{Learnings: []string{"LB"}}, nil
		}}

		e := newTestEngine(planner, urlSearcher(), extractor, Options{ContextMode: mode, ConcurrencyLimit: 2})
		res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "root", Breadth: 2, Depth: 1, Context: []string{"seed"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"LA", "LB"}, res.Learnings)
		return planner
	}

	t.Run("ancestors", func(t *testing.T) {
		planner := run(t, ContextAncestors)

		root, ok := planner.find("root")
		require.True(t, ok)
		assert.Equal(t, []string{"seed"}, root.Context)

		childA, ok := planner.find("Previous research goal: goal-A")
		require.True(t, ok)
		assert.Equal(t, []string{"seed", "LA"}, childA.Context)
		assert.Equal(t, []string{"A", "B"}, childA.Issued)

		childB, ok := planner.find("Previous research goal: goal-B")
		require.True(t, ok)
		assert.Equal(t, []string{"seed", "LB"}, childB.Context)
	})

	t.Run("global", func(t *testing.T) {
		planner := run(t, ContextGlobal)

		childB, ok := planner.find("Previous research goal: goal-B")
		require.True(t, ok)
		assert.Equal(t, []string{"seed", "LB"}, childB.Context)

		childA, ok := planner.find("Previous research goal: goal-A")
		require.True(t, ok)
		assert.Equal(t, []string{"seed", "LB", "LA"}, childA.Context, "sees the sibling branch's learning")
	})
}

func TestDeepResearchIssuedCoversWholeRun(t *testing.T) {
	b1Searched := make(chan struct{})
	var once sync.Once

	planner := &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
		switch {
		case req.Prompt == "root":
			return []SerpQuery{{Query: "A", ResearchGoal: "goal-A"}, {Query: "B", ResearchGoal: "goal-B"}}, nil
		case strings.HasPrefix(req.Prompt, "Previous research goal: goal-B\n"):
			return []SerpQuery{{Query: "B1", ResearchGoal: "goal-B1"}}, nil
		}
		return nil, nil
	}}
	searcher := search.SearcherFunc(func(ctx context.Context, query string, limit int) ([]search.Result, error) {
		if query == "B1" {
			once.Do(func() { close(b1Searched) })
		}
		return []search.Result{{URL: "https://example.com/" + query, Content: "c"}}, nil
	})
	extractor := &fakeExtractor{fn: func(query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
		if query == "A" {
			select {
			case <-b1Searched:
			case <-time.After(5 * time.Second):
				return Extraction{}, errors.New("branch B never recursed")
			}
		}
		return Extraction{Learnings: []string{"L" + query}}, nil
	}}

	e := newTestEngine(planner, searcher, extractor, Options{ConcurrencyLimit: 2})
	_, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "root", Breadth: 2, Depth: 2})
	require.NoError(t, err)

	root, ok := planner.find("root")
	require.True(t, ok)
	assert.Empty(t, root.Issued)

	childA, ok := planner.find("Previous research goal: goal-A")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "B1"}, childA.Issued)
}

func TestDeepResearchCapsExtractorLearnings(t *testing.T) {
	planner := &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
		return []SerpQuery{{Query: "only", ResearchGoal: "g"}}, nil
	}}
	extractor := &fakeExtractor{fn: func(query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
		return Extraction{Learnings: []string{"one", "two", "three", "four"}}, nil
	}}
	e := newTestEngine(planner, urlSearcher(), extractor, Options{MaxLearnings: 2})

	res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 1, Depth: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, res.Learnings)
}

func TestDeepResearchConcurrencyBound(t *testing.T) {
	var inFlight, maxInFlight, ids atomic.Int32
	track := func() func() {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(3 * time.Millisecond)
		return func() { inFlight.Add(-1) }
	}

	llm := &fakeLLM{respond: func(system, human string) (string, error) {
		defer track()()
		id := ids.Add(1)
		if strings.Contains(system, `"researchGoal"`) {
			return fmt.Sprintf(`{"queries":[{"query":"a%d","researchGoal":"g"},{"query":"b%d","researchGoal":"g"},{"query":"c%d","researchGoal":"g"}]}`, id, id, id), nil
		}
		return fmt.Sprintf(`{"learnings":["learning %d"],"followUpQueries":["f%d"]}`, id, id), nil
	}}
	searcher := search.SearcherFunc(func(ctx context.Context, query string, limit int) ([]search.Result, error) {
		defer track()()
		return []search.Result{{URL: "https://example.com/" + query, Content: "content " + query}}, nil
	})

	e := NewEngine(llm, searcher, Options{ConcurrencyLimit: 2, RetryDelay: -1})
	e.SetLogger(discardLogger())

	res, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 3, Depth: 1})
	require.NoError(t, err)

	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
	// 3 root branches, each with a breadth-2 child.
	assert.Len(t, res.VisitedURLs, 3+3*2)
	assert.Len(t, res.Learnings, 3+3*2)
}

func TestDeepResearchCancelled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		planner := fixedQueries("a")
		e := newTestEngine(planner, urlSearcher(), learningPerQuery(), Options{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := e.DeepResearch(ctx, DeepResearchRequest{Query: "topic", Breadth: 2, Depth: 2})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, res.VisitedURLs)
		assert.Empty(t, planner.all())
	})

	t.Run("mid run keeps partial result", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		planner := fixedQueries("a")
		extractor := &fakeExtractor{fn: func(query string, results []search.Result, maxLearnings, maxFollowUps int) (Extraction, error) {
			cancel()
			return Extraction{Learnings: []string{"partial"}}, nil
		}}
		e := newTestEngine(planner, urlSearcher(), extractor, Options{})

		res, err := e.DeepResearch(ctx, DeepResearchRequest{Query: "topic", Breadth: 1, Depth: 3})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []string{"partial"}, res.Learnings)
		assert.Equal(t, []string{"https://example.com/a"}, res.VisitedURLs)
		assert.Len(t, planner.all(), 1)
	})
}

func TestDeepResearchProgress(t *testing.T) {
	planner := &fakePlanner{fn: func(req PlanRequest) ([]SerpQuery, error) {
		out := make([]SerpQuery, req.NumQueries)
		for i := range out {
			out[i] = SerpQuery{Query: fmt.Sprintf("%d-%d", len(req.Prompt), i), ResearchGoal: req.Prompt}
		}
		return out, nil
	}}
	e := newTestEngine(planner, urlSearcher(), learningPerQuery(), Options{})

	var events []Progress
	e.OnProgress = func(p Progress) { events = append(events, p) }

	_, err := e.DeepResearch(context.Background(), DeepResearchRequest{Query: "topic", Breadth: 2, Depth: 1})
	require.NoError(t, err)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, ProgressDone, last.Event)
	assert.Equal(t, 4, last.Total)
	assert.Equal(t, 4, last.Completed)

	runID := events[0].RunID
	assert.NotEmpty(t, runID)
	for i, ev := range events {
		assert.Equal(t, runID, ev.RunID)
		assert.LessOrEqual(t, ev.Completed, ev.Total)
		if i > 0 {
			assert.GreaterOrEqual(t, ev.Completed, events[i-1].Completed)
		}
	}
}
