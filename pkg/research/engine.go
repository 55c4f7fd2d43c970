package research

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/deep-research/pkg/search"
)

// Engine runs recursive research: plan queries, search, extract learnings,
// then recurse into follow-up directions until depth runs out.
type Engine struct {
	Planner   Planner
	Searcher  search.Searcher
	Extractor Extractor
	Logger    *slog.Logger
	// OnProgress, if set, observes every run of this engine.
	OnProgress ProgressFunc

	opts      Options
	limiter   *Limiter
	gen       *Generator
	reportGen *Generator
}

// NewEngine wires the default LLM-backed planner and extractor around llm.
// All provider calls share one limiter of opts.ConcurrencyLimit slots.
func NewEngine(llm llms.Model, searcher search.Searcher, opts Options) *Engine {
	opts = opts.withDefaults()
	limiter := NewLimiter(opts.ConcurrencyLimit)
	logger := slog.Default()

	gen := &Generator{
		LLM:        llm,
		Limiter:    limiter,
		Timeout:    opts.LLMTimeout,
		MaxRetries: opts.MaxRetries,
		RetryDelay: opts.RetryDelay,
		Logger:     logger,
		Now:        opts.Now,
	}
	reportGen := *gen
	if opts.ReportModel != nil {
		reportGen.LLM = opts.ReportModel
	}

	return &Engine{
		Planner:   NewLLMPlanner(gen),
		Searcher:  searcher,
		Extractor: NewLLMExtractor(gen, opts.MaxContentChars, opts.MaxPromptChars),
		Logger:    logger,
		opts:      opts,
		limiter:   limiter,
		gen:       gen,
		reportGen: &reportGen,
	}
}

// SetLogger replaces the logger of the engine and its generators.
func (e *Engine) SetLogger(l *slog.Logger) {
	e.Logger = l
	e.gen.Logger = l
	e.reportGen.Logger = l
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// DeepResearch explores req.Query breadth-wide and depth-deep. Branch
// failures are logged and skipped, so a partial result is still a success.
// If ctx is cancelled the partial result is returned with ctx.Err().
func (e *Engine) DeepResearch(ctx context.Context, req DeepResearchRequest) (Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Result{}.normalized(), &ValidationError{Field: "query", Reason: "must not be empty"}
	}

	r := e.newRun(req)
	r.logger.Info("Starting deep research", "query", req.Query, "breadth", req.Breadth, "depth", req.Depth, "context_mode", e.opts.ContextMode)

	result := r.node(ctx, node{
		query:   req.Query,
		breadth: req.Breadth,
		depth:   req.Depth,
		context: append([]string(nil), req.Context...),
	}).normalized()

	r.emit(Progress{Event: ProgressDone, Depth: req.Depth, Breadth: req.Breadth, Query: req.Query}, 0, 0)
	r.logger.Info("Deep research finished", "learnings", len(result.Learnings), "urls", len(result.VisitedURLs))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// run is the state of one DeepResearch call.
type run struct {
	e      *Engine
	id     string
	logger *slog.Logger

	// journal collects every learning of the run for ContextGlobal.
	journalMu sync.Mutex
	journal   []string

	issuedMu sync.Mutex
	issued   []string

	progressMu sync.Mutex
	completed  int
	total      int
}

func (e *Engine) newRun(req DeepResearchRequest) *run {
	id := uuid.NewString()
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &run{e: e, id: id, logger: logger.With("run_id", id)}
	if e.opts.ContextMode == ContextGlobal {
		r.journal = append(r.journal, req.Context...)
	}
	return r
}

type node struct {
	query   string
	breadth int
	depth   int
	// context is this node's ancestor learnings; never mutated once set.
	context []string
}

func (r *run) node(ctx context.Context, n node) Result {
	if n.breadth < 1 || n.depth < 0 || ctx.Err() != nil {
		return Result{}
	}
	r.emit(Progress{Event: ProgressStarted, Depth: n.depth, Breadth: n.breadth, Query: n.query}, 0, 0)

	queries, err := r.e.Planner.Plan(ctx, PlanRequest{
		Prompt:     n.query,
		NumQueries: n.breadth,
		Context:    r.contextFor(n),
		Issued:     r.issuedQueries(),
	})
	if err != nil {
		r.logFailure(ctx, StagePlan, n.query, err)
		return Result{}
	}
	if len(queries) > n.breadth {
		queries = queries[:n.breadth]
	}
	r.logger.Info("Planned queries", "depth", n.depth, "breadth", n.breadth, "count", len(queries))
	r.emit(Progress{Event: ProgressPlanned, Depth: n.depth, Breadth: n.breadth, Query: n.query}, 0, len(queries))
	if len(queries) == 0 {
		return Result{}
	}

	r.recordIssued(queries)

	branches := make([]Result, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			branches[i] = r.branch(ctx, n, q)
			return nil
		})
	}
	_ = g.Wait()

	return Result{}.Merge(branches...)
}

// branch searches one planned query, extracts its learnings and recurses.
// Its result is its own URLs and learnings followed by its child's result.
func (r *run) branch(ctx context.Context, parent node, q SerpQuery) Result {
	results, err := r.search(ctx, q.Query)
	if err != nil {
		r.logFailure(ctx, StageSearch, q.Query, err)
		r.emit(Progress{Event: ProgressSearched, Depth: parent.depth, Breadth: parent.breadth, Query: q.Query}, 1, 0)
		return Result{}
	}

	own := Result{VisitedURLs: make([]string, 0, len(results))}
	for _, res := range results {
		if res.URL != "" {
			own.VisitedURLs = append(own.VisitedURLs, res.URL)
		}
	}
	if len(results) == 0 {
		r.logger.Info("No search results, pruning branch", "query", q.Query, "depth", parent.depth)
		r.emit(Progress{Event: ProgressSearched, Depth: parent.depth, Breadth: parent.breadth, Query: q.Query}, 1, 0)
		return own
	}
	r.emit(Progress{Event: ProgressSearched, Depth: parent.depth, Breadth: parent.breadth, Query: q.Query}, 0, 0)

	childBreadth := (parent.breadth + 1) / 2
	extraction, err := r.e.Extractor.Extract(ctx, q.Query, results, r.e.opts.MaxLearnings, childBreadth)
	if err != nil {
		r.logFailure(ctx, StageExtract, q.Query, err)
		extraction = Extraction{}
	}
	own.Learnings = cleanStrings(extraction.Learnings, r.e.opts.MaxLearnings)
	r.record(own.Learnings)
	r.logger.Info("Extracted learnings", "query", q.Query, "depth", parent.depth, "learnings", len(own.Learnings), "urls", len(own.VisitedURLs))
	r.emit(Progress{Event: ProgressExtracted, Depth: parent.depth, Breadth: parent.breadth, Query: q.Query}, 1, 0)

	if parent.depth <= 0 || childBreadth < 1 || ctx.Err() != nil {
		return own.Merge()
	}

	childContext := make([]string, 0, len(parent.context)+len(own.Learnings))
	childContext = append(childContext, parent.context...)
	childContext = append(childContext, own.Learnings...)

	child := r.node(ctx, node{
		query:   childQuery(q, extraction.FollowUpQueries),
		breadth: childBreadth,
		depth:   parent.depth - 1,
		context: childContext,
	})
	return own.Merge(child)
}

func (r *run) search(ctx context.Context, query string) ([]search.Result, error) {
	var results []search.Result
	err := r.e.limiter.Do(ctx, r.e.opts.SearchTimeout, func(ctx context.Context) error {
		var err error
		results, err = r.e.Searcher.Search(ctx, query, r.e.opts.SearchLimit)
		return err
	})
	if err != nil {
		return nil, &ProviderError{Stage: StageSearch, Query: query, Err: err}
	}
	return results, nil
}

// childQuery builds the prompt of a child node from the branch's goal and
// the extractor's follow-up directions.
func childQuery(q SerpQuery, followUps []string) string {
	var sb strings.Builder
	sb.WriteString("Previous research goal: ")
	sb.WriteString(q.ResearchGoal)
	sb.WriteString("\nFollow-up research directions:")
	for _, f := range followUps {
		sb.WriteString("\n")
		sb.WriteString(f)
	}
	return sb.String()
}

func (r *run) contextFor(n node) []string {
	if r.e.opts.ContextMode != ContextGlobal {
		return n.context
	}
	r.journalMu.Lock()
	defer r.journalMu.Unlock()
	return append([]string(nil), r.journal...)
}

func (r *run) record(learnings []string) {
	if r.e.opts.ContextMode != ContextGlobal || len(learnings) == 0 {
		return
	}
	r.journalMu.Lock()
	r.journal = append(r.journal, learnings...)
	r.journalMu.Unlock()
}

func (r *run) logFailure(ctx context.Context, stage Stage, query string, err error) {
	if ctx.Err() != nil {
		r.logger.Debug("Skipping branch after cancellation", "stage", stage, "query", query)
		return
	}
	r.logger.Warn("Provider call failed, skipping branch", "stage", stage, "query", query, "error", err)
}

// emit updates the counters and notifies the observer under one lock so
// observers see a consistent sequence.
func (r *run) emit(p Progress, completed, planned int) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.completed += completed
	r.total += planned
	if r.e.OnProgress == nil {
		return
	}
	p.RunID = r.id
	p.Completed = r.completed
	p.Total = r.total
	r.e.OnProgress(p)
}

func (r *run) issuedQueries() []string {
	r.issuedMu.Lock()
	defer r.issuedMu.Unlock()
	return append([]string(nil), r.issued...)
}

func (r *run) recordIssued(queries []SerpQuery) {
	r.issuedMu.Lock()
	for _, q := range queries {
		r.issued = append(r.issued, q.Query)
	}
	r.issuedMu.Unlock()
}
