package agent

import "strings"

// routeKeywords maps trigger words to agent names. Routing is deterministic:
// the agent with the most hits wins, ties (including zero hits) go to chat.
var routeKeywords = map[string]string{
	"search":     "research",
	"research":   "research",
	"find":       "research",
	"lookup":     "research",
	"news":       "research",
	"搜索":         "research",
	"调研":         "research",
	"code":       "code",
	"file":       "code",
	"function":   "code",
	"debug":      "code",
	"refactor":   "code",
	"代码":         "code",
	"deploy":     "devops",
	"github":     "devops",
	"cloudflare": "devops",
	"issue":      "devops",
	"dns":        "devops",
	"部署":         "devops",
	"write":      "writer",
	"draft":      "writer",
	"article":    "writer",
	"summarize":  "writer",
	"撰写":         "writer",
	"文章":         "writer",
}

// Route picks an agent name for a raw message.
func Route(message string) string {
	m := strings.ToLower(message)
	counts := map[string]int{}
	for kw, agent := range routeKeywords {
		if strings.Contains(m, kw) {
			counts[agent]++
		}
	}

	best, bestN, tied := "chat", 0, false
	for agent, n := range counts {
		switch {
		case n > bestN:
			best, bestN, tied = agent, n, false
		case n == bestN && bestN > 0 && agent != best:
			tied = true
		}
	}
	if tied || bestN == 0 {
		return "chat"
	}
	return best
}
