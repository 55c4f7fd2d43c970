package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// arxivEntry holds one Atom entry of the arXiv API.
type arxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []arxivEntry `xml:"entry"`
}

// Arxiv searches the public arXiv API. Content is the abstract and the URL is
// the PDF link when one is published.
type Arxiv struct {
	Endpoint string
	client   *http.Client
}

// NewArxiv constructs an arXiv provider. No key is needed.
func NewArxiv(timeout time.Duration) *Arxiv {
	return &Arxiv{
		Endpoint: "https://export.arxiv.org/api/query",
		client:   newClient(timeout),
	}
}

func (a *Arxiv) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(normalizeLimit(limit)))
	params.Add("start", "0")
	apiURL := a.Endpoint + "?" + params.Encode()

	resp, err := doWithBackoff(ctx, a.client, "arxiv", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("arxiv: failed to unmarshal XML: %w", err)
	}

	results := make([]Result, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		link := strings.TrimSpace(entry.ID)
		for _, l := range entry.Link {
			if l.Type == "application/pdf" || l.Title == "pdf" {
				link = l.Href
				break
			}
		}
		if link == "" {
			continue
		}

		content := collapseSpace(entry.Summary)
		if entry.Published != "" {
			content = fmt.Sprintf("Published: %s\n\n%s", entry.Published, content)
		}
		results = append(results, Result{
			URL:     link,
			Title:   collapseSpace(entry.Title),
			Content: content,
		})
	}
	return results, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
