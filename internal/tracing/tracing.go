// Package tracing wraps provider calls with duration and token accounting.
package tracing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/quantops/qubot/internal/providers"
	"github.com/quantops/qubot/internal/store"
)

// Trace is the record of one provider call.
type Trace struct {
	Provider        string
	Model           string
	PromptTokens    int
	ResponseTokens  int
	DurationMS      int64
	Success         bool
	ToolCallSummary string
}

// Tracer records traces and upserts usage aggregates.
type Tracer struct {
	store *store.Store
	log   *slog.Logger
}

// New builds a Tracer. st may be nil; aggregates are then skipped.
func New(st *store.Store) *Tracer {
	return &Tracer{store: st, log: slog.Default().With("component", "tracing")}
}

// EstimateTokens approximates the token count of a text, language-agnostic.
func EstimateTokens(text string) int { return len(text) / 3 }

// Call wraps a single-shot provider call.
func (t *Tracer) Call(ctx context.Context, p providers.Provider, prompt, model string, history []providers.Message, systemPrompt string) (*providers.Response, error) {
	start := time.Now()
	resp, err := p.Call(ctx, prompt, model, history, systemPrompt)
	t.record(ctx, p, model, promptText(prompt, history, systemPrompt), resp, err, start)
	return resp, err
}

// CallWithTools wraps a function-calling provider call.
func (t *Tracer) CallWithTools(ctx context.Context, p providers.Provider, messages []providers.Message, model, systemPrompt string, tools []providers.ToolDefinition) (*providers.Response, error) {
	start := time.Now()
	resp, err := p.CallWithTools(ctx, messages, model, systemPrompt, tools)

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	for _, m := range messages {
		sb.WriteString(m.Content)
	}
	t.record(ctx, p, model, sb.String(), resp, err, start)
	return resp, err
}

func (t *Tracer) record(ctx context.Context, p providers.Provider, model, prompt string, resp *providers.Response, err error, start time.Time) {
	if model == "" {
		model = p.DefaultModel()
	}
	tr := Trace{
		Provider:     p.Name(),
		Model:        model,
		PromptTokens: EstimateTokens(prompt),
		DurationMS:   time.Since(start).Milliseconds(),
		Success:      err == nil,
	}
	if resp != nil {
		tr.ResponseTokens = EstimateTokens(resp.Content + resp.Thinking)
		// Vendor-reported usage beats the estimate when present.
		if resp.Usage != nil {
			tr.PromptTokens = resp.Usage.PromptTokens
			tr.ResponseTokens = resp.Usage.CompletionTokens
		}
		if len(resp.ToolCalls) > 0 {
			names := make([]string, len(resp.ToolCalls))
			for i, tc := range resp.ToolCalls {
				names[i] = tc.Name
			}
			tr.ToolCallSummary = strings.Join(names, ",")
		}
	}

	t.log.Info("ai call traced",
		"provider", tr.Provider, "model", tr.Model,
		"prompt_tokens", tr.PromptTokens, "response_tokens", tr.ResponseTokens,
		"duration_ms", tr.DurationMS, "success", tr.Success,
		"tools", tr.ToolCallSummary)

	if t.store == nil {
		return
	}
	if uerr := t.store.UpsertTokenUsage(ctx, tr.Provider, tr.Model, tr.PromptTokens, tr.ResponseTokens, err != nil); uerr != nil {
		t.log.Warn("token usage upsert failed", "error", uerr)
	}
}

func promptText(prompt string, history []providers.Message, systemPrompt string) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	for _, m := range history {
		sb.WriteString(m.Content)
	}
	sb.WriteString(prompt)
	return sb.String()
}
