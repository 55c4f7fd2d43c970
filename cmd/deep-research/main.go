package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/app"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/mcpserver"
	"github.com/mikeboe/deep-research/pkg/render"
	"github.com/mikeboe/deep-research/pkg/research"
)

var (
	query         string
	breadth       int
	depth         int
	mode          string
	output        string
	writeHTML     bool
	skipQuestions bool
	contextMode   string
	configPath    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "deep-research",
		Short:        "A terminal-based deep research agent",
		Long:         `deep-research explores a topic with recursive web searches, distils learnings at every level and writes a sourced markdown report or a short answer.`,
		SilenceUsage: true,
		RunE:         runResearch,
	}

	rootCmd.Flags().StringVarP(&query, "query", "q", "", "What to research (prompts interactively when omitted)")
	rootCmd.Flags().IntVarP(&breadth, "breadth", "b", 4, "Search queries per level")
	rootCmd.Flags().IntVarP(&depth, "depth", "d", 2, "Follow-up levels")
	rootCmd.Flags().StringVar(&mode, "mode", "report", "Output mode: report or answer")
	rootCmd.Flags().StringVarP(&output, "output", "o", "report.md", "Output file")
	rootCmd.Flags().BoolVar(&writeHTML, "html", false, "Also write an HTML rendering of the report")
	rootCmd.Flags().BoolVar(&skipQuestions, "skip-questions", false, "Do not ask clarifying questions")
	rootCmd.PersistentFlags().StringVar(&contextMode, "context-mode", "", "Learnings visible to child planners: ancestors or global")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "Serve the research tools over MCP on stdio",
		RunE:  runMCP,
	})

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig applies --config and --context-mode over the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()
	if configPath != "" {
		if err := cfg.MergeFile(configPath); err != nil {
			return nil, &config.ConfigError{Key: "--config", Reason: err.Error()}
		}
	}
	if cmd.Flags().Changed("context-mode") {
		cfg.ContextMode = strings.ToLower(contextMode)
	}
	return cfg, nil
}

func runResearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the conversation, logs go to stderr
	logger := config.NewLoggerTo(os.Stderr, cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, cleanup, err := app.NewEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	in := bufio.NewReader(os.Stdin)
	out := os.Stdout

	if !cmd.Flags().Changed("query") {
		query = ask(in, out, "What would you like to research? ", "")
		breadth = askInt(in, out, fmt.Sprintf("Enter research breadth (recommended 2-10, default %d): ", breadth), breadth)
		depth = askInt(in, out, fmt.Sprintf("Enter research depth (recommended 1-5, default %d): ", depth), depth)
		mode = ask(in, out, "Do you want to generate a long report or a specific answer? (report/answer, default report): ", mode)
	}
	if strings.TrimSpace(query) == "" {
		return errors.New("query cannot be empty")
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != "report" && mode != "answer" {
		return fmt.Errorf("unknown mode %q, want report or answer", mode)
	}
	breadth = limit(breadth, 1, cfg.MaxBreadth)
	depth = limit(depth, 0, cfg.MaxDepth)

	prompt := query
	if mode == "report" && !skipQuestions {
		questions, err := engine.GenerateFeedback(ctx, query, research.DefaultMaxQuestions)
		if err != nil {
			logger.Warn("Skipping clarifying questions", "error", err)
		} else if len(questions) > 0 {
			fmt.Fprintln(out, "\nTo better understand your research needs, please answer these follow-up questions:")
			answers := askAll(in, out, questions)
			prompt = research.CombinePrompt(query, questions, answers)
		}
	}

	engine.OnProgress = func(p research.Progress) {
		if p.Event == research.ProgressExtracted || p.Event == research.ProgressDone {
			fmt.Fprintf(os.Stderr, "Progress: %d/%d queries (depth %d)\n", p.Completed, p.Total, p.Depth)
		}
	}

	fmt.Fprintln(out, "\nStarting research...")
	result, err := engine.DeepResearch(ctx, research.DeepResearchRequest{
		Query:   prompt,
		Breadth: breadth,
		Depth:   depth,
	})
	path := outputPath(mode, output, cmd.Flags().Changed("output"))
	printResult(out, result)
	if err != nil {
		if len(result.Learnings) > 0 || len(result.VisitedURLs) > 0 {
			partial := partialPath(path)
			if werr := os.WriteFile(partial, []byte(partialMarkdown(query, result)), 0o644); werr != nil {
				logger.Error("Failed to save partial results", "path", partial, "error", werr)
			} else {
				fmt.Fprintf(out, "\nResearch stopped early, partial results have been saved to %s\n", partial)
			}
		}
		return err
	}

	if mode == "answer" {
		answer, err := engine.WriteFinalAnswer(ctx, prompt, result.Learnings)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(answer), 0o644); err != nil {
			return fmt.Errorf("failed to write answer: %w", err)
		}
		fmt.Fprintf(out, "\n\nFinal Answer:\n\n%s\n\nAnswer has been saved to %s\n", answer, path)
		return nil
	}

	fmt.Fprintln(out, "Writing final report...")
	report, err := engine.WriteFinalReport(ctx, prompt, result.Learnings, result.VisitedURLs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(out, "\n\nFinal Report:\n\n%s\n\nReport has been saved to %s\n", report, path)

	if writeHTML {
		page, err := render.Page(query, report)
		if err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
		htmlFile := htmlPath(path)
		if err := os.WriteFile(htmlFile, []byte(page), 0o644); err != nil {
			return fmt.Errorf("failed to write html report: %w", err)
		}
		fmt.Fprintf(out, "HTML report has been saved to %s\n", htmlFile)
	}

	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout belongs to the MCP transport
	logger := config.NewLoggerTo(os.Stderr, cfg)
	slog.SetDefault(logger)

	engine, cleanup, err := app.NewEngine(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return mcpserver.New(engine, cfg.MaxBreadth, cfg.MaxDepth, logger).ServeStdio()
}
