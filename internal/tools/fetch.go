package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const maxFetchBytes = 32 * 1024

// URLFetcher downloads a page and returns its visible text.
type URLFetcher struct {
	client *http.Client
}

// NewURLFetcher creates a fetcher with the given timeout.
func NewURLFetcher(timeout time.Duration) *URLFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &URLFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *URLFetcher) Name() string { return "fetch_url" }

func (f *URLFetcher) Description() string {
	return "Download a web page and return its text content (HTML stripped, truncated to 32KB)."
}

func (f *URLFetcher) Schema() map[string]any {
	return objectSchema([]string{"url"}, map[string]any{
		"url": map[string]any{"type": "string"},
	})
}

// Call implements Tool.
func (f *URLFetcher) Call(ctx context.Context, args map[string]any) (string, error) {
	url, err := stringArg(args, "url")
	if err != nil {
		return "", err
	}
	return f.Fetch(ctx, url)
}

// Fetch downloads url, strips HTML and truncates.
func (f *URLFetcher) Fetch(ctx context.Context, url string) (string, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return "", errors.New("url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; deliberate/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch http %d", resp.StatusCode)
	}

	// Read a bounded prefix; markup is usually far larger than its text.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*maxFetchBytes))
	if err != nil {
		return "", err
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") || strings.Contains(text, "<html") {
		text = stripHTML(text)
	}
	if len(text) > maxFetchBytes {
		text = text[:maxFetchBytes] + "\n[TRUNCATED]"
	}
	return text, nil
}

var (
	reBlocks     = regexp.MustCompile(`(?is)<(script|style|nav|header|footer|noscript)[^>]*>.*?</(script|style|nav|header|footer|noscript)>`)
	reTags       = regexp.MustCompile(`<[^>]+>`)
	reWhitespace = regexp.MustCompile(`[ \t]+`)
	reBlankLines = regexp.MustCompile(`\n{3,}`)
)

var htmlEntities = strings.NewReplacer(
	"&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
)

func stripHTML(html string) string {
	s := reBlocks.ReplaceAllString(html, "")
	s = reTags.ReplaceAllString(s, " ")
	s = htmlEntities.Replace(s)
	s = reWhitespace.ReplaceAllString(s, " ")

	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	s = strings.Join(out, "\n")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
