package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Brave uses the Brave Search API. It only returns snippets, so it is
// normally wrapped with Enriched.
type Brave struct {
	APIKey   string
	Endpoint string
	client   *http.Client
}

// NewBrave constructs a Brave search provider.
func NewBrave(apiKey string, timeout time.Duration) *Brave {
	return &Brave{
		APIKey:   apiKey,
		Endpoint: "https://api.search.brave.com/res/v1/web/search",
		client:   newClient(timeout),
	}
}

func (b *Brave) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, errors.New("brave: API key is missing")
	}

	maxResults := normalizeLimit(limit)
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(maxResults))
	endpoint := b.Endpoint + "?" + params.Encode()

	resp, err := doWithBackoff(ctx, b.client, "brave", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", b.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Web struct {
			Results []struct {
				Title         string   `json:"title"`
				URL           string   `json:"url"`
				Description   string   `json:"description"`
				ExtraSnippets []string `json:"extra_snippets"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("brave: failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		content := r.Description
		if len(r.ExtraSnippets) > 0 {
			content += "\n" + strings.Join(r.ExtraSnippets, "\n")
		}
		results = append(results, Result{URL: r.URL, Title: r.Title, Content: content})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
