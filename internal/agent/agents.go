// Package agent implements the orchestrator: built-in agent definitions,
// keyword routing, and the tool-calling loop that drives a provider.
package agent

import "github.com/quantops/qubot/internal/skills"

// Agent is one built-in persona: a base prompt plus a fixed tool slice.
type Agent struct {
	Name         string
	SystemPrompt string
	Tools        []string // tool names; empty means all registered
	SkillLimit   int      // max skills injected per turn
}

// Builtins returns the built-in agents keyed by name.
func Builtins() map[string]*Agent {
	researchTools := []string{"web_search", "fetch_url", "memory"}
	return map[string]*Agent{
		"chat": {
			Name: "chat",
			SystemPrompt: "You are a helpful assistant for a market-monitoring " +
				"platform. Answer concisely and use tools when they help.",
			SkillLimit: skills.MaxChat,
		},
		"research": {
			Name: "research",
			SystemPrompt: "You are a research assistant. Search the web, read " +
				"sources, and cite what you find. Store durable findings in memory.",
			Tools:      researchTools,
			SkillLimit: skills.MaxSpecialized,
		},
		"code": {
			Name: "code",
			SystemPrompt: "You are a coding assistant with workspace file access. " +
				"Read before you write, and keep edits minimal.",
			Tools:      []string{"file_read", "file_write", "file_list", "file_search", "calculator"},
			SkillLimit: skills.MaxSpecialized,
		},
		"devops": {
			Name: "devops",
			SystemPrompt: "You are a devops assistant. You can inspect GitHub " +
				"repositories and issues and manage Cloudflare zones.",
			Tools: []string{
				"github_repo_info", "github_search_issues",
				"cloudflare_list_zones", "cloudflare_purge_cache",
			},
			SkillLimit: skills.MaxSpecialized,
		},
		"writer": {
			Name: "writer",
			SystemPrompt: "You are a writing assistant. Research the topic first, " +
				"then produce clear, well-structured prose.",
			Tools:      researchTools,
			SkillLimit: skills.MaxSpecialized,
		},
	}
}
