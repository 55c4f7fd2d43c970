// Package mcpserver exposes the research engine as MCP tools.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mikeboe/deep-research/pkg/research"
)

const (
	Name    = "deep-research"
	Version = "1.0.0"
)

// Researcher is the part of *research.Engine the tools call.
type Researcher interface {
	DeepResearch(ctx context.Context, req research.DeepResearchRequest) (research.Result, error)
	WriteFinalReport(ctx context.Context, prompt string, learnings, visitedURLs []string) (string, error)
	WriteFinalAnswer(ctx context.Context, prompt string, learnings []string) (string, error)
	GenerateFeedback(ctx context.Context, query string, maxQuestions int) ([]string, error)
}

type Server struct {
	engine     Researcher
	maxBreadth int
	maxDepth   int
	logger     *slog.Logger
	mcp        *server.MCPServer
}

func New(engine Researcher, maxBreadth, maxDepth int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:     engine,
		maxBreadth: maxBreadth,
		maxDepth:   maxDepth,
		logger:     logger,
		mcp: server.NewMCPServer(Name, Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
	}
	s.addTools()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks serving MCP on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("Starting MCP server on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) addTools() {
	deepResearch := mcp.NewTool("deep_research",
		mcp.WithDescription("Research a topic in depth with iterative web searches and return a markdown report with sources, or a short answer."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to research"),
		),
		mcp.WithNumber("breadth",
			mcp.Description("Number of search queries per level"),
			mcp.DefaultNumber(4),
			mcp.Min(1),
			mcp.Max(float64(s.maxBreadth)),
		),
		mcp.WithNumber("depth",
			mcp.Description("Number of follow-up levels"),
			mcp.DefaultNumber(2),
			mcp.Min(0),
			mcp.Max(float64(s.maxDepth)),
		),
		mcp.WithString("mode",
			mcp.Description("report for a full report, answer for a concise answer"),
			mcp.Enum("report", "answer"),
			mcp.DefaultString("report"),
		),
	)
	s.mcp.AddTool(deepResearch, s.handleDeepResearch)

	questions := mcp.NewTool("clarifying_questions",
		mcp.WithDescription("Suggest follow-up questions that narrow a research query before running it"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The research query"),
		),
		mcp.WithNumber("max_questions",
			mcp.Description("Maximum number of questions"),
			mcp.DefaultNumber(research.DefaultMaxQuestions),
			mcp.Min(1),
		),
	)
	s.mcp.AddTool(questions, s.handleClarifyingQuestions)
}

func (s *Server) handleDeepResearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	breadth := bound(int(request.GetFloat("breadth", 4)), 1, s.maxBreadth)
	depth := bound(int(request.GetFloat("depth", 2)), 0, s.maxDepth)
	mode := request.GetString("mode", "report")

	s.logger.Info("deep_research called", "breadth", breadth, "depth", depth, "mode", mode)

	result, err := s.engine.DeepResearch(ctx, research.DeepResearchRequest{Query: query, Breadth: breadth, Depth: depth})
	if err != nil {
		s.logger.Error("Research failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("research failed: %v", err)), nil
	}

	if mode == "answer" {
		answer, err := s.engine.WriteFinalAnswer(ctx, query, result.Learnings)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to write answer: %v", err)), nil
		}
		return mcp.NewToolResultText(answer), nil
	}

	report, err := s.engine.WriteFinalReport(ctx, query, result.Learnings, result.VisitedURLs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to write report: %v", err)), nil
	}
	return mcp.NewToolResultText(report), nil
}

func (s *Server) handleClarifyingQuestions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	n := int(request.GetFloat("max_questions", research.DefaultMaxQuestions))

	questions, err := s.engine.GenerateFeedback(ctx, query, n)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to generate questions: %v", err)), nil
	}
	if len(questions) == 0 {
		return mcp.NewToolResultText("The query is clear, no follow-up questions."), nil
	}

	var sb strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}
	return mcp.NewToolResultText(strings.TrimSpace(sb.String())), nil
}

func bound(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
