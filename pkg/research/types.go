package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// SerpQuery is a planned search query and the reason it was chosen.
type SerpQuery struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"researchGoal"`
}

// Extraction is what the extractor distilled from one query's results.
type Extraction struct {
	Learnings       []string `json:"learnings"`
	FollowUpQueries []string `json:"followUpQueries"`
}

// Result is the aggregate of a research run: unique learnings and unique
// visited URLs, both in first-seen order.
type Result struct {
	Learnings   []string `json:"learnings"`
	VisitedURLs []string `json:"visitedUrls"`
}

// Merge returns r followed by others with duplicates removed. Empty strings
// are dropped. Neither r nor others are modified.
func (r Result) Merge(others ...Result) Result {
	learnings := newOrderedSet(len(r.Learnings))
	urls := newOrderedSet(len(r.VisitedURLs))

	learnings.add(r.Learnings...)
	urls.add(r.VisitedURLs...)
	for _, o := range others {
		learnings.add(o.Learnings...)
		urls.add(o.VisitedURLs...)
	}

	return Result{Learnings: learnings.items, VisitedURLs: urls.items}
}

// normalized replaces nil slices with empty ones so JSON encodes [] not null.
func (r Result) normalized() Result {
	if r.Learnings == nil {
		r.Learnings = []string{}
	}
	if r.VisitedURLs == nil {
		r.VisitedURLs = []string{}
	}
	return r
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet(capacity int) *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}, capacity)}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

// DeepResearchRequest starts a research run.
type DeepResearchRequest struct {
	Query   string
	Breadth int
	Depth   int
	// Context seeds the learnings visible to the root planner.
	Context []string
}

// ContextMode chooses which learnings a child node sees when planning.
type ContextMode string

const (
	// ContextAncestors shows only the learnings of the node's own ancestor chain.
	ContextAncestors ContextMode = "ancestors"
	// ContextGlobal shows every learning recorded anywhere in the run so far.
	ContextGlobal ContextMode = "global"
)

func ParseContextMode(s string) (ContextMode, error) {
	switch ContextMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ContextAncestors:
		return ContextAncestors, nil
	case ContextGlobal:
		return ContextGlobal, nil
	default:
		return "", fmt.Errorf("unknown context mode %q", s)
	}
}

// ProgressEvent names a point in the life of a tree node.
type ProgressEvent string

const (
	ProgressStarted   ProgressEvent = "started"
	ProgressPlanned   ProgressEvent = "planned"
	ProgressSearched  ProgressEvent = "searched"
	ProgressExtracted ProgressEvent = "extracted"
	ProgressDone      ProgressEvent = "done"
)

// Progress is reported to the engine's OnProgress observer. Completed counts
// queries whose search and extraction have finished; Total counts queries
// planned so far.
type Progress struct {
	RunID     string        `json:"runId"`
	Event     ProgressEvent `json:"event"`
	Depth     int           `json:"depth"`
	Breadth   int           `json:"breadth"`
	Query     string        `json:"query"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
}

// ProgressFunc observes a run. Calls are serialised by the engine.
type ProgressFunc func(Progress)

// Options tune the engine. Zero values fall back to the defaults below.
type Options struct {
	// ConcurrencyLimit caps in-flight provider calls across the whole run.
	ConcurrencyLimit int
	// SearchLimit is the number of results requested per query.
	SearchLimit   int
	SearchTimeout time.Duration
	LLMTimeout    time.Duration
	MaxRetries    int
	RetryDelay    time.Duration // negative disables the pause between attempts
	// MaxLearnings is the per-extraction cap.
	MaxLearnings int
	// MaxContentChars caps a single search result; MaxPromptChars caps all
	// results of one extraction call together.
	MaxContentChars int
	MaxPromptChars  int
	// MaxReportChars caps the learnings handed to the report writer.
	MaxReportChars int
	ContextMode    ContextMode
	// ReportModel writes reports and answers. Defaults to the engine model.
	ReportModel llms.Model
	Now         func() time.Time
}

const (
	DefaultConcurrencyLimit = 2
	DefaultSearchLimit      = 5
	DefaultSearchTimeout    = 15 * time.Second
	DefaultLLMTimeout       = 120 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryDelay       = time.Second
	DefaultMaxLearnings     = 3
	DefaultMaxContentChars  = 25_000 * 4
	DefaultMaxPromptChars   = 100_000 * 4
	DefaultMaxReportChars   = 150_000 * 4
	DefaultMaxQuestions     = 3
)

func (o Options) withDefaults() Options {
	if o.ConcurrencyLimit < 1 {
		o.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if o.SearchLimit < 1 {
		o.SearchLimit = DefaultSearchLimit
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = DefaultSearchTimeout
	}
	if o.LLMTimeout <= 0 {
		o.LLMTimeout = DefaultLLMTimeout
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	} else if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxLearnings < 1 {
		o.MaxLearnings = DefaultMaxLearnings
	}
	if o.MaxContentChars < 1 {
		o.MaxContentChars = DefaultMaxContentChars
	}
	if o.MaxPromptChars < 1 {
		o.MaxPromptChars = DefaultMaxPromptChars
	}
	if o.MaxReportChars < 1 {
		o.MaxReportChars = DefaultMaxReportChars
	}
	if o.ContextMode == "" {
		o.ContextMode = ContextAncestors
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
