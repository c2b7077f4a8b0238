package providers

import (
	"errors"
	"log/slog"

	"github.com/quantops/qubot/internal/config"
)

// ErrNoProvider means no configured provider satisfies the request.
var ErrNoProvider = errors.New("no configured AI provider")

// Registry holds every known provider instance, configured or not.
type Registry struct {
	providers []Provider
	log       *slog.Logger
}

// NewRegistry instantiates all vendor backends from config.
func NewRegistry(cfg config.AIConfig) *Registry {
	return &Registry{
		providers: []Provider{
			NewOpenAI(cfg.OpenAIKey),
			NewGroq(cfg.GroqKey),
			NewGLM(cfg.GLMKey),
			NewNVIDIA(cfg.NVIDIAKey),
			NewOpenRouter(cfg.OpenRouterKey),
			NewMiniMax(cfg.MiniMaxKey),
			NewClaude(cfg.ClaudeKey, cfg.ExtendedThinking),
			NewGemini(cfg.GeminiKey),
		},
		log: slog.Default().With("component", "providers"),
	}
}

// All returns every registered provider.
func (r *Registry) All() []Provider { return r.providers }

// Get returns the provider by name, or nil.
func (r *Registry) Get(name string) Provider {
	for _, p := range r.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Select resolves the preferred provider name, falling back when it is not
// configured or lacks tool support where tools are required. The fallback
// is logged once.
func (r *Registry) Select(preferred string, needTools bool) (Provider, error) {
	if p := r.Get(preferred); p != nil && p.Configured() && (!needTools || p.SupportsTools()) {
		return p, nil
	}

	for _, p := range r.providers {
		if p.Configured() && p.SupportsTools() {
			r.warnFallback(preferred, p)
			return p, nil
		}
	}
	// Last resort: any configured provider; tool calls degrade to plain
	// completions.
	for _, p := range r.providers {
		if p.Configured() {
			r.warnFallback(preferred, p)
			return p, nil
		}
	}
	return nil, ErrNoProvider
}

func (r *Registry) warnFallback(preferred string, chosen Provider) {
	if preferred != "" && preferred != chosen.Name() {
		r.log.Warn("preferred AI provider unavailable, falling back",
			"preferred", preferred, "using", chosen.Name())
	}
}
