package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mkwng/poegate/llm"
)

const (
	crawlerMaxBody = 256 * 1024
	crawlerMaxText = 8000
)

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// Crawler fetches a web page and returns its visible text.
type Crawler struct {
	httpClient *http.Client
}

// NewCrawler creates the crawler tool.
func NewCrawler() *Crawler {
	return &Crawler{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Crawler) Name() string { return "crawl_web" }

func (c *Crawler) Definition() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        c.Name(),
			Description: "Fetch a web page and return its text content.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type":        "string",
						"description": "The absolute URL to fetch.",
					},
				},
				"required": []string{"url"},
			},
		},
	}
}

func (c *Crawler) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", fmt.Errorf("invalid crawl_web args: %w", err)
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return "", fmt.Errorf("url must be absolute http(s)")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "poegate/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, crawlerMaxBody))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}

	text := extractText(string(body))
	if text == "" {
		return "no text content", nil
	}
	return text, nil
}

// extractText strips markup from an HTML document and collapses whitespace.
func extractText(html string) string {
	text := scriptStyleRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > crawlerMaxText {
		text = text[:crawlerMaxText]
	}
	return text
}
