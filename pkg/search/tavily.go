package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Tavily calls the Tavily search API with raw page content enabled.
type Tavily struct {
	APIKey   string
	Endpoint string
	// Depth controls Tavily's search_depth parameter (basic or advanced).
	Depth  string
	client *http.Client
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey string, timeout time.Duration) *Tavily {
	return &Tavily{
		APIKey:   apiKey,
		Endpoint: "https://api.tavily.com/search",
		Depth:    "advanced",
		client:   newClient(timeout),
	}
}

func (t *Tavily) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(map[string]any{
		"query":               query,
		"search_depth":        t.Depth,
		"max_results":         normalizeLimit(limit),
		"include_raw_content": true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := doWithBackoff(ctx, t.client, "tavily", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Results []struct {
			Title      string `json:"title"`
			URL        string `json:"url"`
			Content    string `json:"content"`
			RawContent string `json:"raw_content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: failed to decode response: %w", err)
	}

	maxResults := normalizeLimit(limit)
	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		content := r.RawContent
		if content == "" {
			content = r.Content
		}
		results = append(results, Result{URL: r.URL, Title: r.Title, Content: content})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
