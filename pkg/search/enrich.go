package search

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// PageFetcher returns the readable text of a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// EnrichedSearcher replaces short snippets with the full page text.
type EnrichedSearcher struct {
	next      Searcher
	fetcher   PageFetcher
	minLength int
	Logger    *slog.Logger
}

// Enriched wraps next so that every result whose content is shorter than
// minLength runes is fetched. Fetch failures keep the original snippet.
func Enriched(next Searcher, fetcher PageFetcher, minLength int) *EnrichedSearcher {
	return &EnrichedSearcher{
		next:      next,
		fetcher:   fetcher,
		minLength: minLength,
		Logger:    slog.Default(),
	}
}

func (e *EnrichedSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	results, err := e.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	for i := range results {
		if results[i].URL == "" || utf8.RuneCountInString(results[i].Content) >= e.minLength {
			continue
		}
		g.Go(func() error {
			text, err := e.fetcher.Fetch(ctx, results[i].URL)
			if err != nil {
				e.Logger.Debug("page fetch failed, keeping snippet", "url", results[i].URL, "error", err)
				return nil
			}
			if len(text) > len(results[i].Content) {
				results[i].Content = text
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}
