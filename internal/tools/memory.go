package tools

import (
	"context"
	"fmt"

	"github.com/quantops/qubot/internal/store"
)

// RegisterMemory adds the store-backed memory tool.
func RegisterMemory(r *Registry, st *store.Store) {
	r.Register(&memoryTool{store: st})
}

type memoryTool struct {
	store *store.Store
}

func (t *memoryTool) Name() string { return "memory" }
func (t *memoryTool) Description() string {
	return "Store or retrieve user memory notes. action=store saves content; action=search finds notes"
}
func (t *memoryTool) Params() []Param {
	return []Param{
		{Name: "action", Type: "string", Required: true, Enum: []string{"store", "search"}},
		{Name: "content", Type: "string", Description: "Note to store (action=store)"},
		{Name: "query", Type: "string", Description: "Substring to search for (action=search)"},
		{Name: "user_id", Type: "string", Required: true, Description: "Owner of the notes"},
	}
}

func (t *memoryTool) Execute(ctx context.Context, args map[string]any) *Result {
	userID := args["user_id"].(string)
	switch args["action"].(string) {
	case "store":
		content, _ := args["content"].(string)
		if content == "" {
			return Fail("content is required for action=store")
		}
		if err := t.store.AppendMemory(ctx, userID, content); err != nil {
			return Fail("store memory: %v", err)
		}
		return Ok("stored")
	case "search":
		query, _ := args["query"].(string)
		hits, err := t.store.SearchMemory(ctx, userID, query, 10)
		if err != nil {
			return Fail("search memory: %v", err)
		}
		if len(hits) == 0 {
			return Ok(fmt.Sprintf("no notes matching %q", query))
		}
		return Ok(hits)
	default:
		return Fail("unknown action")
	}
}
