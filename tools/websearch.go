package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkwng/poegate/llm"
)

const duckDuckGoBaseURL = "https://api.duckduckgo.com"

// WebSearch queries the DuckDuckGo instant answer API.
type WebSearch struct {
	baseURL    string
	httpClient *http.Client
}

// NewWebSearch creates the web search tool.
func NewWebSearch(baseURL string) *WebSearch {
	return &WebSearch{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *WebSearch) Name() string { return "web_search" }

func (w *WebSearch) Definition() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        w.Name(),
			Description: "Search the web via DuckDuckGo and return a short summary with related results.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The search query.",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

type ddgResponse struct {
	Heading       string `json:"Heading"`
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (w *WebSearch) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", fmt.Errorf("invalid web_search args: %w", err)
	}
	if strings.TrimSpace(req.Query) == "" {
		return "", fmt.Errorf("empty search query")
	}

	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		w.baseURL, url.QueryEscape(req.Query))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("search returned status %d: %s", resp.StatusCode, string(body))
	}

	var result ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}

	var sb strings.Builder
	if result.AbstractText != "" {
		fmt.Fprintf(&sb, "%s: %s (%s)\n", result.Heading, result.AbstractText, result.AbstractURL)
	}
	count := 0
	for _, topic := range result.RelatedTopics {
		if topic.Text == "" {
			continue
		}
		fmt.Fprintf(&sb, "- %s (%s)\n", topic.Text, topic.FirstURL)
		count++
		if count >= 5 {
			break
		}
	}
	if sb.Len() == 0 {
		return "no results", nil
	}
	return sb.String(), nil
}
