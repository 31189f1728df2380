package tools

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

// TavilyEndpoint is the Tavily search API.
const TavilyEndpoint = "https://api.tavily.com/search"

const maxSearchResults = 5

// SearchResult is one web hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// WebSearch queries Tavily.
type WebSearch struct {
	APIKey   string
	Depth    string
	Endpoint string
	client   *http.Client
	// maxBackoff caps the 429 retry delay.
	maxBackoff time.Duration
}

// NewWebSearch constructs a Tavily-backed search tool.
func NewWebSearch(apiKey string, timeout time.Duration) *WebSearch {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebSearch{
		APIKey:     apiKey,
		Depth:      "basic",
		Endpoint:   TavilyEndpoint,
		client:     &http.Client{Timeout: timeout},
		maxBackoff: 30 * time.Second,
	}
}

func (w *WebSearch) Name() string { return "web_search" }

func (w *WebSearch) Description() string {
	return "Search the web and return the top results with title, URL and snippet."
}

func (w *WebSearch) Schema() map[string]any {
	return objectSchema([]string{"query"}, map[string]any{
		"query": map[string]any{"type": "string"},
	})
}

// Call implements Tool.
func (w *WebSearch) Call(ctx context.Context, args map[string]any) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}
	results, err := w.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results.", nil
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Search posts a query to Tavily, backing off on 429.
func (w *WebSearch) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if strings.TrimSpace(w.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}

	payload, err := json.Marshal(map[string]any{
		"query":       query,
		"api_key":     w.APIKey,
		"depth":       w.Depth,
		"max_results": maxSearchResults,
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = w.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < w.maxBackoff {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	var body struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("tavily decode: %w", err)
	}

	results := make([]SearchResult, 0, maxSearchResults)
	for _, r := range body.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
		if len(results) >= maxSearchResults {
			break
		}
	}
	return results, nil
}
