package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const cloudflareAPI = "https://api.cloudflare.com/client/v4"

// RegisterCloudflare adds cloudflare_list_zones and cloudflare_purge_cache.
// Both require an API token; registration is skipped without one.
func RegisterCloudflare(r *Registry, apiToken, accountID string) {
	if apiToken == "" {
		return
	}
	client := &http.Client{Timeout: webTimeout}
	r.Register(&cfZonesTool{token: apiToken, account: accountID, client: client})
	r.Register(&cfPurgeTool{token: apiToken, client: client})
}

type cfZonesTool struct {
	token   string
	account string
	client  *http.Client
}

func (t *cfZonesTool) Name() string        { return "cloudflare_list_zones" }
func (t *cfZonesTool) Description() string { return "List Cloudflare zones on the account" }
func (t *cfZonesTool) Params() []Param     { return nil }

func (t *cfZonesTool) Execute(ctx context.Context, _ map[string]any) *Result {
	u := cloudflareAPI + "/zones"
	if t.account != "" {
		u += "?account.id=" + t.account
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Fail("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		return Fail("cloudflare request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Fail("cloudflare returned http %d", resp.StatusCode)
	}

	var parsed struct {
		Result []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Fail("decode cloudflare response: %v", err)
	}
	out := make([]map[string]any, 0, len(parsed.Result))
	for _, z := range parsed.Result {
		out = append(out, map[string]any{"id": z.ID, "name": z.Name, "status": z.Status})
	}
	return Ok(out)
}

type cfPurgeTool struct {
	token  string
	client *http.Client
}

func (t *cfPurgeTool) Name() string        { return "cloudflare_purge_cache" }
func (t *cfPurgeTool) Description() string { return "Purge the full cache for a Cloudflare zone" }
func (t *cfPurgeTool) Params() []Param {
	return []Param{
		{Name: "zone_id", Type: "string", Required: true},
	}
}

func (t *cfPurgeTool) Execute(ctx context.Context, args map[string]any) *Result {
	u := fmt.Sprintf("%s/zones/%s/purge_cache", cloudflareAPI, args["zone_id"].(string))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return Fail("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Fail("cloudflare request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Fail("cloudflare returned http %d", resp.StatusCode)
	}
	return Ok("cache purge requested")
}
