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

const yahooFinanceBaseURL = "https://query1.finance.yahoo.com"

// Finance fetches stock quotes from the Yahoo Finance chart API.
type Finance struct {
	baseURL    string
	httpClient *http.Client
}

// NewFinance creates the finance tool.
func NewFinance(baseURL string) *Finance {
	return &Finance{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (f *Finance) Name() string { return "get_stock_price" }

func (f *Finance) Definition() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        f.Name(),
			Description: "Get the latest market price for a stock ticker symbol.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"symbol": map[string]interface{}{
						"type":        "string",
						"description": "The ticker symbol, e.g. \"AAPL\".",
					},
				},
				"required": []string{"symbol"},
			},
		},
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (f *Finance) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", fmt.Errorf("invalid get_stock_price args: %w", err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return "", fmt.Errorf("empty ticker symbol")
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d",
		f.baseURL, url.PathEscape(symbol))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "poegate/1.0")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("quote returned status %d: %s", resp.StatusCode, string(body))
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode quote response: %w", err)
	}
	if result.Chart.Error != nil {
		return "", fmt.Errorf("quote error: %s", result.Chart.Error.Description)
	}
	if len(result.Chart.Result) == 0 {
		return "", fmt.Errorf("no quote data for %s", symbol)
	}

	meta := result.Chart.Result[0].Meta
	return fmt.Sprintf("%s: %.2f %s (previous close %.2f)",
		meta.Symbol, meta.RegularMarketPrice, meta.Currency, meta.PreviousClose), nil
}
