package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mikeboe/deep-research/pkg/splitter"
)

type reportResponse struct {
	ReportMarkdown string `json:"reportMarkdown"`
}

type answerResponse struct {
	ExactAnswer string `json:"exactAnswer"`
}

// WriteFinalReport writes a markdown report from learnings and appends a
// numbered Sources section listing visitedURLs in the given order.
func (e *Engine) WriteFinalReport(ctx context.Context, prompt string, learnings, visitedURLs []string) (string, error) {
	e.Logger.Info("Compiling final report", "learnings", len(learnings), "sources", len(visitedURLs))

	resp, err := generateJSON(ctx, e.reportGen,
		reportInstruction,
		reportSchema,
		reportInput(prompt, e.learningsBlock(learnings)),
		func(r *reportResponse) error {
			if strings.TrimSpace(r.ReportMarkdown) == "" {
				return errors.New("empty reportMarkdown")
			}
			return nil
		})
	if err != nil {
		return "", &SynthesisError{Err: err}
	}

	report := strings.TrimSpace(resp.ReportMarkdown) + "\n\n" + sourcesSection(visitedURLs)
	e.Logger.Info("Final report generated", "length", len(report))
	return report, nil
}

// WriteFinalAnswer returns a short answer that follows any format the prompt
// asks for.
func (e *Engine) WriteFinalAnswer(ctx context.Context, prompt string, learnings []string) (string, error) {
	resp, err := generateJSON(ctx, e.reportGen,
		reportInstruction,
		answerSchema,
		answerInput(prompt, e.learningsBlock(learnings)),
		func(r *answerResponse) error {
			if strings.TrimSpace(r.ExactAnswer) == "" {
				return errors.New("empty exactAnswer")
			}
			return nil
		})
	if err != nil {
		return "", &SynthesisError{Err: err}
	}
	return strings.TrimSpace(resp.ExactAnswer), nil
}

func (e *Engine) learningsBlock(learnings []string) string {
	var sb strings.Builder
	for _, l := range learnings {
		sb.WriteString("<learning>\n")
		sb.WriteString(l)
		sb.WriteString("\n</learning>\n")
	}
	return splitter.Trim(sb.String(), e.opts.MaxReportChars)
}

func sourcesSection(urls []string) string {
	var sb strings.Builder
	sb.WriteString("## Sources\n")
	if len(urls) > 0 {
		sb.WriteString("\n")
	}
	for i, u := range urls {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, u)
	}
	return sb.String()
}
