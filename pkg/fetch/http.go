// Package fetch turns URLs into readable text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 4 << 20

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPFetcher downloads a page and extracts its visible text.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTP creates a HTTP fetcher with the given timeout.
func NewHTTP(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return "", errors.New("fetch url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch http %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(ct, "text/") || strings.Contains(ct, "json") {
			return strings.TrimSpace(string(raw)), nil
		}
		return "", fmt.Errorf("unsupported content type %q", ct)
	}

	return ExtractText(body)
}

var reBlankLines = regexp.MustCompile(`\n{3,}`)

// ExtractText returns the readable text of an HTML document, dropping
// scripts, styles and page chrome.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, noscript, nav, header, footer, aside, form, svg, iframe").Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var lines []string
	root.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td, blockquote").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			lines = append(lines, text)
		}
	})

	if len(lines) == 0 {
		for _, line := range strings.Split(root.Text(), "\n") {
			if text := strings.Join(strings.Fields(line), " "); text != "" {
				lines = append(lines, text)
			}
		}
	}

	text := strings.Join(lines, "\n\n")
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		text = "# " + title + "\n\n" + text
	}
	return strings.TrimSpace(reBlankLines.ReplaceAllString(text, "\n\n")), nil
}
