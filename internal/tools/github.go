package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const githubAPI = "https://api.github.com"

// RegisterGitHub adds github_repo_info and github_search_issues.
func RegisterGitHub(r *Registry, token string) {
	client := &http.Client{Timeout: webTimeout}
	r.Register(&githubRepoTool{token: token, client: client})
	r.Register(&githubIssuesTool{token: token, client: client})
}

type githubRepoTool struct {
	token  string
	client *http.Client
}

func (t *githubRepoTool) Name() string        { return "github_repo_info" }
func (t *githubRepoTool) Description() string { return "Fetch repository metadata (stars, forks, description)" }
func (t *githubRepoTool) Params() []Param {
	return []Param{
		{Name: "owner", Type: "string", Required: true},
		{Name: "repo", Type: "string", Required: true},
	}
}

func (t *githubRepoTool) Execute(ctx context.Context, args map[string]any) *Result {
	u := fmt.Sprintf("%s/repos/%s/%s",
		githubAPI, url.PathEscape(args["owner"].(string)), url.PathEscape(args["repo"].(string)))
	var parsed struct {
		FullName    string `json:"full_name"`
		Description string `json:"description"`
		Stars       int    `json:"stargazers_count"`
		Forks       int    `json:"forks_count"`
		OpenIssues  int    `json:"open_issues_count"`
		Language    string `json:"language"`
	}
	if res := githubGet(ctx, t.client, t.token, u, &parsed); res != nil {
		return res
	}
	return Ok(map[string]any{
		"full_name":   parsed.FullName,
		"description": parsed.Description,
		"stars":       parsed.Stars,
		"forks":       parsed.Forks,
		"open_issues": parsed.OpenIssues,
		"language":    parsed.Language,
	})
}

type githubIssuesTool struct {
	token  string
	client *http.Client
}

func (t *githubIssuesTool) Name() string        { return "github_search_issues" }
func (t *githubIssuesTool) Description() string { return "Search GitHub issues and pull requests" }
func (t *githubIssuesTool) Params() []Param {
	return []Param{
		{Name: "query", Type: "string", Required: true, Description: "GitHub search syntax"},
		{Name: "limit", Type: "integer", Default: 5},
	}
}

func (t *githubIssuesTool) Execute(ctx context.Context, args map[string]any) *Result {
	limit := intArg(args, "limit", 5)
	u := fmt.Sprintf("%s/search/issues?q=%s&per_page=%d",
		githubAPI, url.QueryEscape(args["query"].(string)), limit)
	var parsed struct {
		Items []struct {
			Title   string `json:"title"`
			HTMLURL string `json:"html_url"`
			State   string `json:"state"`
		} `json:"items"`
	}
	if res := githubGet(ctx, t.client, t.token, u, &parsed); res != nil {
		return res
	}
	out := make([]map[string]any, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		out = append(out, map[string]any{"title": it.Title, "url": it.HTMLURL, "state": it.State})
	}
	return Ok(out)
}

// githubGet performs an authenticated GET; a non-nil Result is a failure.
func githubGet(ctx context.Context, client *http.Client, token, u string, into any) *Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Fail("build request: %v", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Fail("github request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Fail("github returned http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return Fail("decode github response: %v", err)
	}
	return nil
}
