package fetch

import (
	"context"
	"net/url"
	"strings"
)

// Fetcher returns the readable text of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Router sends PDFs to the OCR fetcher when one is configured and everything
// else to the HTML fetcher.
type Router struct {
	HTML Fetcher
	PDF  Fetcher
}

func (r *Router) Fetch(ctx context.Context, rawURL string) (string, error) {
	if r.PDF != nil && IsPDF(rawURL) {
		return r.PDF.Fetch(ctx, rawURL)
	}
	return r.HTML.Fetch(ctx, rawURL)
}

// IsPDF guesses from the URL alone.
func IsPDF(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.HasSuffix(path, ".pdf") || strings.HasPrefix(path, "/pdf/")
}
