package splitter

import (
	"sort"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// minChunkSize is the size below which Trim cuts directly instead of
// looking for a separator.
const minChunkSize = 50

// TextSplitter wraps the langchaingo text splitter
type TextSplitter struct {
	splitter textsplitter.TextSplitter
}

// NewRecursiveCharacterTextSplitter creates a new recursive character text splitter
func NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &TextSplitter{splitter: ts}
}

// SplitText splits text into chunks
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return ts.splitter.SplitText(text)
}

// Trim shortens text to at most maxChars runes, preferring to cut at a
// paragraph, line or word boundary.
func Trim(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	if maxChars < minChunkSize {
		return cut(text, maxChars)
	}

	chunks, err := NewRecursiveCharacterTextSplitter(maxChars, 0).SplitText(text)
	if err != nil || len(chunks) == 0 {
		return cut(text, maxChars)
	}

	first := chunks[0]
	if first == "" || utf8.RuneCountInString(first) > maxChars {
		return cut(text, maxChars)
	}
	return first
}

// FitBudget trims contents so that their combined rune count is at most
// budget. A single cap is applied to every entry, so only the longest
// entries shrink. Order is preserved.
func FitBudget(contents []string, budget int) []string {
	out := make([]string, len(contents))
	copy(out, contents)
	if len(contents) == 0 {
		return out
	}
	if budget <= 0 {
		for i := range out {
			out[i] = ""
		}
		return out
	}

	lengths := make([]int, len(contents))
	total := 0
	for i, c := range contents {
		lengths[i] = utf8.RuneCountInString(c)
		total += lengths[i]
	}
	if total <= budget {
		return out
	}

	limit := waterLevel(lengths, budget)
	for i, c := range contents {
		if lengths[i] > limit {
			out[i] = Trim(c, limit)
		}
	}
	return out
}

// waterLevel returns the largest cap such that sum(min(l, cap)) <= budget.
func waterLevel(lengths []int, budget int) int {
	sorted := make([]int, len(lengths))
	copy(sorted, lengths)
	sort.Ints(sorted)

	remaining := budget
	for i, l := range sorted {
		left := len(sorted) - i
		if l*left > remaining {
			return remaining / left
		}
		remaining -= l
	}
	return sorted[len(sorted)-1]
}

func cut(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	return string([]rune(text)[:maxChars])
}
