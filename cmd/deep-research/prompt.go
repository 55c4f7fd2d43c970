package main

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

// ask prints prompt and returns the trimmed line, or def when it is empty.
func ask(in *bufio.Reader, out io.Writer, prompt, def string) string {
	fmt.Fprint(out, prompt)
	line, _ := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func askInt(in *bufio.Reader, out io.Writer, prompt string, def int) int {
	v, err := strconv.Atoi(ask(in, out, prompt, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

// askAll asks each question in turn and returns one answer per question.
func askAll(in *bufio.Reader, out io.Writer, questions []string) []string {
	answers := make([]string, len(questions))
	for i, q := range questions {
		answers[i] = ask(in, out, "\n"+q+"\nYour answer: ", "")
	}
	return answers
}

func limit(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// outputPath picks answer.md for answer mode unless -o was given.
func outputPath(mode, output string, explicit bool) string {
	if mode == "answer" && !explicit {
		return "answer.md"
	}
	return output
}

func htmlPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".html"
}

// partialPath is path with .partial before the extension.
func partialPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".partial" + ext
}

func printResult(out io.Writer, result research.Result) {
	fmt.Fprintf(out, "\n\nLearnings:\n\n%s\n", strings.Join(result.Learnings, "\n"))
	fmt.Fprintf(out, "\n\nVisited URLs (%d):\n\n%s\n", len(result.VisitedURLs), strings.Join(result.VisitedURLs, "\n"))
}

// partialMarkdown lists what an interrupted run collected, without a report.
func partialMarkdown(query string, result research.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Partial research: %s\n\n## Learnings\n\n", query)
	for _, l := range result.Learnings {
		fmt.Fprintf(&sb, "- %s\n", l)
	}
	sb.WriteString("\n## Sources\n\n")
	for i, u := range result.VisitedURLs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, u)
	}
	return sb.String()
}
