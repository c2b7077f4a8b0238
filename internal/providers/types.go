// Package providers implements the AI gateway: one Provider per vendor,
// each translating the internal message shape to the vendor wire format.
package providers

import (
	"context"
	"encoding/json"
)

// Provider is the interface every AI vendor backend implements.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "claude").
	Name() string

	// Configured reports whether credentials are present.
	Configured() bool

	// SupportsTools reports native function-calling support.
	SupportsTools() bool

	// SupportsThinking reports extended-thinking support.
	SupportsThinking() bool

	// DefaultModel returns the provider's default model id.
	DefaultModel() string

	// FallbackModels maps short aliases to model ids, used when the
	// vendor's models endpoint is unreachable.
	FallbackModels() map[string]string

	// FetchModels lists available models, falling back to FallbackModels.
	FetchModels(ctx context.Context) ([]ModelInfo, error)

	// Call is a single-shot text call. model may be empty.
	Call(ctx context.Context, prompt, model string, history []Message, systemPrompt string) (*Response, error)

	// CallWithTools is a function-calling call. Providers without tool
	// support degrade to Call and return no tool calls.
	CallWithTools(ctx context.Context, messages []Message, model, systemPrompt string, tools []ToolDefinition) (*Response, error)
}

// Message is the canonical internal conversation message.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // role=tool only
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // role=assistant only
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition is the JSON-Schema function description sent to vendors.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Response is the normalized result of a provider call.
type Response struct {
	Thinking  string     `json:"thinking,omitempty"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
}

// Usage tracks token consumption when the vendor reports it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ModelInfo is one entry from a vendor's models listing.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// decodeArgs parses a JSON arguments string. Malformed JSON yields an empty
// map rather than an error; the model gets a validation failure downstream.
func decodeArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// historyToMessages appends the user prompt to the prior turns.
func historyToMessages(prompt string, history []Message) []Message {
	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: "user", Content: prompt})
	return msgs
}
