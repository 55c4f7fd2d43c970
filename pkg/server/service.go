package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-research/pkg/research"
)

const (
	DefaultBreadth = 4
	DefaultDepth   = 2
)

// Researcher is the part of *research.Engine the HTTP boundary drives.
type Researcher interface {
	DeepResearch(ctx context.Context, req research.DeepResearchRequest) (research.Result, error)
	WriteFinalReport(ctx context.Context, prompt string, learnings, visitedURLs []string) (string, error)
	GenerateFeedback(ctx context.Context, query string, maxQuestions int) ([]string, error)
}

type Service struct {
	Engine     Researcher
	MaxBreadth int
	MaxDepth   int
	Logger     *slog.Logger
}

func NewService(engine Researcher, maxBreadth, maxDepth int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Engine:     engine,
		MaxBreadth: maxBreadth,
		MaxDepth:   maxDepth,
		Logger:     logger,
	}
}

// ResearchRequest is either an InitialRequest or an AnsweredRequest.
type ResearchRequest interface {
	isResearchRequest()
}

// InitialRequest is a new query with no answers yet. It is answered with
// clarifying questions.
type InitialRequest struct {
	Query   string
	Breadth int
	Depth   int
}

// AnsweredRequest carries the user's answers and runs the research.
type AnsweredRequest struct {
	Query     string
	Breadth   int
	Depth     int
	Questions []string
	Answers   []string
}

func (InitialRequest) isResearchRequest()  {}
func (AnsweredRequest) isResearchRequest() {}

type FeedbackResponse struct {
	FollowUpQuestions []string `json:"followUpQuestions"`
}

type ReportResponse struct {
	Report      string   `json:"report"`
	Learnings   []string `json:"learnings"`
	VisitedURLs []string `json:"visitedUrls"`
}

// Handle dispatches req and returns the JSON body to send.
func (s *Service) Handle(ctx context.Context, req ResearchRequest) (any, error) {
	switch r := req.(type) {
	case InitialRequest:
		return s.Clarify(ctx, r)
	case AnsweredRequest:
		return s.Research(ctx, r)
	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}
}

func (s *Service) Clarify(ctx context.Context, req InitialRequest) (*FeedbackResponse, error) {
	questions, err := s.Engine.GenerateFeedback(ctx, req.Query, research.DefaultMaxQuestions)
	if err != nil {
		return nil, fmt.Errorf("failed to generate follow-up questions: %w", err)
	}
	if questions == nil {
		questions = []string{}
	}
	return &FeedbackResponse{FollowUpQuestions: questions}, nil
}

func (s *Service) Research(ctx context.Context, req AnsweredRequest) (*ReportResponse, error) {
	prompt := research.CombinePrompt(req.Query, req.Questions, req.Answers)
	breadth := clamp(req.Breadth, DefaultBreadth, s.MaxBreadth)
	depth := clamp(req.Depth, DefaultDepth, s.MaxDepth)

	s.Logger.Info("Starting research", "breadth", breadth, "depth", depth)

	result, err := s.Engine.DeepResearch(ctx, research.DeepResearchRequest{
		Query:   prompt,
		Breadth: breadth,
		Depth:   depth,
	})
	if err != nil {
		return nil, fmt.Errorf("research failed: %w", err)
	}

	report, err := s.Engine.WriteFinalReport(ctx, prompt, result.Learnings, result.VisitedURLs)
	if err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	return &ReportResponse{
		Report:      report,
		Learnings:   result.Learnings,
		VisitedURLs: result.VisitedURLs,
	}, nil
}

// clamp replaces non-positive values with def and caps at limit when limit
// is positive.
func clamp(v, def, limit int) int {
	if v <= 0 {
		v = def
	}
	if limit > 0 && v > limit {
		v = limit
	}
	return v
}
