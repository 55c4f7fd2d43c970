package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
}

// OCRFetcher extracts the contents of a PDF as markdown using the Mistral OCR API.
type OCRFetcher struct {
	APIKey   string
	Endpoint string
	Model    string
	client   *http.Client
}

func NewOCR(apiKey string, timeout time.Duration) *OCRFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OCRFetcher{
		APIKey:   apiKey,
		Endpoint: "https://api.mistral.ai/v1/ocr",
		Model:    "mistral-ocr-latest",
		client:   &http.Client{Timeout: timeout},
	}
}

func (o *OCRFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if o.APIKey == "" {
		return "", errors.New("MISTRAL_API_KEY is not set")
	}
	url = strings.Replace(url, "http://", "https://", 1)

	reqBody := map[string]any{
		"model": o.Model,
		"document": map[string]string{
			"type":         "document_url",
			"document_url": url,
		},
		"include_image_base64": false,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr request failed with status %s", resp.Status)
	}

	var parsed ocrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var sb strings.Builder
	for _, page := range parsed.Pages {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.TrimSpace(page.Markdown))
	}
	return sb.String(), nil
}
