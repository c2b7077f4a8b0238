package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantops/qubot/internal/providers"
	"github.com/quantops/qubot/internal/skills"
	"github.com/quantops/qubot/internal/tools"
	"github.com/quantops/qubot/internal/tracing"
)

const defaultMaxToolCalls = 10

// Loop drives a provider over the tool registry for one agent.
type Loop struct {
	tools        *tools.Registry
	skills       *skills.Registry // nil disables skill injection
	tracer       *tracing.Tracer
	maxToolCalls int
	log          *slog.Logger
}

// LoopConfig configures a new Loop.
type LoopConfig struct {
	Tools        *tools.Registry
	Skills       *skills.Registry
	Tracer       *tracing.Tracer
	MaxToolCalls int
}

// NewLoop builds the loop. A nil Tracer gets a store-less default.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = defaultMaxToolCalls
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracing.New(nil)
	}
	return &Loop{
		tools:        cfg.Tools,
		skills:       cfg.Skills,
		tracer:       cfg.Tracer,
		maxToolCalls: cfg.MaxToolCalls,
		log:          slog.Default().With("component", "agent"),
	}
}

// RunResult is the outcome of one agent turn, including every tool call
// the model issued and its paired result.
type RunResult struct {
	Content     string               `json:"content"`
	Thinking    string               `json:"thinking,omitempty"`
	Iterations  int                  `json:"iterations"`
	ToolCalls   []providers.ToolCall `json:"tool_calls,omitempty"`
	ToolResults []*tools.Result      `json:"tool_results,omitempty"`
	Metadata    map[string]any       `json:"metadata,omitempty"`
}

// Run executes one turn: system prompt with skill context, then the
// think-act-observe cycle until the model stops calling tools or the
// tool-call bound is reached.
func (l *Loop) Run(ctx context.Context, p providers.Provider, ag *Agent, message, model string, history []providers.Message) (*RunResult, error) {
	system := l.systemPrompt(ag, message)

	messages := make([]providers.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, providers.Message{Role: "user", Content: message})

	schemas := l.tools.Schemas(ag.Tools)
	if len(schemas) == 0 || !p.SupportsTools() {
		resp, err := l.tracer.Call(ctx, p, message, model, history, system)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ag.Name, err)
		}
		return &RunResult{Content: resp.Content, Thinking: resp.Thinking, Iterations: 1}, nil
	}

	var (
		calls   []providers.ToolCall
		results []*tools.Result
	)
	for iteration := 1; ; iteration++ {
		resp, err := l.tracer.CallWithTools(ctx, p, messages, model, system, schemas)
		if err != nil {
			return nil, fmt.Errorf("agent %s iteration %d: %w", ag.Name, iteration, err)
		}

		if len(resp.ToolCalls) == 0 {
			return &RunResult{
				Content:     resp.Content,
				Thinking:    resp.Thinking,
				Iterations:  iteration,
				ToolCalls:   calls,
				ToolResults: results,
			}, nil
		}

		for _, tc := range resp.ToolCalls {
			l.log.Info("tool call", "agent", ag.Name, "tool", tc.Name, "iteration", iteration)
			result := l.execute(ctx, ag, tc)
			calls = append(calls, tc)
			results = append(results, result)

			messages = append(messages, providers.Message{
				Role:      "assistant",
				Content:   resp.Content,
				ToolCalls: []providers.ToolCall{tc},
			})
			messages = append(messages, providers.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    result.Serialize(),
			})
		}

		if len(calls) >= l.maxToolCalls {
			l.log.Warn("tool-call bound reached", "agent", ag.Name, "bound", l.maxToolCalls)
			return &RunResult{
				Content: fmt.Sprintf(
					"I stopped after %d tool calls without reaching a final answer. "+
						"Try narrowing the request.", l.maxToolCalls),
				Iterations:  iteration,
				ToolCalls:   calls,
				ToolResults: results,
				Metadata:    map[string]any{"max_calls_reached": true},
			}, nil
		}
	}
}

// execute runs one tool call, restricted to the agent's tool slice.
func (l *Loop) execute(ctx context.Context, ag *Agent, tc providers.ToolCall) *tools.Result {
	if len(ag.Tools) > 0 && !contains(ag.Tools, tc.Name) {
		return tools.Fail("tool %q is not available to agent %s", tc.Name, ag.Name)
	}
	return l.tools.Execute(ctx, tc.Name, tc.Arguments)
}

func (l *Loop) systemPrompt(ag *Agent, message string) string {
	if l.skills == nil {
		return ag.SystemPrompt
	}
	block := l.skills.InjectionBlock(message, ag.SkillLimit)
	if block == "" {
		return ag.SystemPrompt
	}
	return strings.TrimSpace(ag.SystemPrompt) + "\n\n" + block
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
