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

// Firecrawl searches through the Firecrawl API and returns page markdown.
type Firecrawl struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	client  *http.Client
}

// NewFirecrawl constructs a Firecrawl provider. An empty baseURL selects the
// hosted API.
func NewFirecrawl(apiKey, baseURL string, timeout time.Duration) *Firecrawl {
	if baseURL == "" {
		baseURL = "https://api.firecrawl.dev"
	}
	return &Firecrawl{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: timeout,
		client:  newClient(timeout),
	}
}

func (f *Firecrawl) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(f.APIKey) == "" {
		return nil, errors.New("firecrawl: API key is missing")
	}

	body := map[string]any{
		"query":   query,
		"limit":   normalizeLimit(limit),
		"timeout": f.Timeout.Milliseconds(),
		"scrapeOptions": map[string]any{
			"formats": []string{"markdown"},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := doWithBackoff(ctx, f.client, "firecrawl", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/v1/search", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Success bool `json:"success"`
		Data    []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Markdown    string `json:"markdown"`
			Metadata    struct {
				Title     string `json:"title"`
				SourceURL string `json:"sourceURL"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("firecrawl: failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(response.Data))
	for _, d := range response.Data {
		url := d.URL
		if url == "" {
			url = d.Metadata.SourceURL
		}
		title := d.Title
		if title == "" {
			title = d.Metadata.Title
		}
		content := d.Markdown
		if content == "" {
			content = d.Description
		}
		results = append(results, Result{URL: url, Title: title, Content: content})
	}
	return results, nil
}
