package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	webTimeout    = 30 * time.Second
	maxFetchBytes = 512 * 1024
	webUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// RegisterWeb adds web_search (SearX backend) and fetch_url.
func RegisterWeb(r *Registry, searxURL string) {
	if searxURL != "" {
		r.Register(&webSearchTool{
			searxURL: strings.TrimRight(searxURL, "/"),
			client:   &http.Client{Timeout: webTimeout},
		})
	}
	r.Register(&fetchURLTool{client: &http.Client{Timeout: webTimeout}})
}

type webSearchTool struct {
	searxURL string
	client   *http.Client
}

func (t *webSearchTool) Name() string        { return "web_search" }
func (t *webSearchTool) Description() string { return "Search the web; returns titles, URLs and snippets" }
func (t *webSearchTool) Params() []Param {
	return []Param{
		{Name: "query", Type: "string", Required: true, Description: "Search query"},
		{Name: "limit", Type: "integer", Default: 5, Description: "Max results (1-10)"},
	}
}

func (t *webSearchTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := args["query"].(string)
	limit := intArg(args, "limit", 5)
	if limit < 1 {
		limit = 1
	}
	if limit > 10 {
		limit = 10
	}

	u := fmt.Sprintf("%s/search?q=%s&format=json", t.searxURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Fail("build search request: %v", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return Fail("search failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Fail("search returned http %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Fail("decode search response: %v", err)
	}

	out := make([]map[string]any, 0, limit)
	for i, r := range parsed.Results {
		if i >= limit {
			break
		}
		out = append(out, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": r.Content,
		})
	}
	return Ok(out)
}

type fetchURLTool struct {
	client *http.Client
}

func (t *fetchURLTool) Name() string        { return "fetch_url" }
func (t *fetchURLTool) Description() string { return "Fetch a URL and return its text content" }
func (t *fetchURLTool) Params() []Param {
	return []Param{
		{Name: "url", Type: "string", Required: true, Description: "HTTP(S) URL to fetch"},
	}
}

var (
	tagRe    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlRe   = regexp.MustCompile(`<[^>]+>`)
	spacesRe = regexp.MustCompile(`[ \t]+`)
	linesRe  = regexp.MustCompile(`\n{3,}`)
)

func (t *fetchURLTool) Execute(ctx context.Context, args map[string]any) *Result {
	raw := args["url"].(string)
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Fail("invalid URL %q", raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return Fail("build request: %v", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return Fail("fetch failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Fail("fetch returned http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Fail("read body: %v", err)
	}

	text := string(data)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		text = tagRe.ReplaceAllString(text, " ")
		text = htmlRe.ReplaceAllString(text, " ")
		text = spacesRe.ReplaceAllString(text, " ")
		text = linesRe.ReplaceAllString(text, "\n\n")
	}
	return Ok(strings.TrimSpace(text))
}

func intArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
