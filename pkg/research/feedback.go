package research

import (
	"context"
	"fmt"
	"strings"
)

type feedbackResponse struct {
	Questions []string `json:"questions"`
}

// GenerateFeedback asks up to maxQuestions clarifying questions about query.
// maxQuestions <= 0 means DefaultMaxQuestions.
func (e *Engine) GenerateFeedback(ctx context.Context, query string, maxQuestions int) ([]string, error) {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}

	resp, err := generateJSON(ctx, e.gen,
		feedbackInstruction,
		feedbackSchema(maxQuestions),
		feedbackInput(query, maxQuestions),
		func(r *feedbackResponse) error {
			if r.Questions == nil {
				return fmt.Errorf("missing questions")
			}
			return nil
		})
	if err != nil {
		return nil, &ProviderError{Stage: StageFeedback, Query: query, Err: err}
	}

	return cleanStrings(resp.Questions, maxQuestions), nil
}

// CombinePrompt folds the initial query and the clarifying exchange into the
// prompt used for research and reporting.
func CombinePrompt(initial string, questions, answers []string) string {
	var sb strings.Builder
	sb.WriteString("Initial Query: ")
	sb.WriteString(strings.TrimSpace(initial))

	n := len(questions)
	if len(answers) > n {
		n = len(answers)
	}
	if n == 0 {
		return sb.String()
	}

	sb.WriteString("\nFollow-up Questions and Answers:")
	for i := 0; i < n; i++ {
		var q, a string
		if i < len(questions) {
			q = questions[i]
		}
		if i < len(answers) {
			a = answers[i]
		}
		fmt.Fprintf(&sb, "\nQ: %s\nA: %s", q, a)
	}
	return sb.String()
}
