package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	claudeVersion        = "2023-06-01"
	claudeThinkingBeta   = "interleaved-thinking-2025-05-14"
	claudeThinkingBudget = 5000
)

// Claude implements Provider against the Anthropic messages API. Assistant
// tool calls travel as tool_use blocks; tool results come back inside a
// user message as tool_result blocks.
type Claude struct {
	apiKey           string
	apiBase          string
	defaultModel     string
	extendedThinking bool
	client           *http.Client
	retry            RetryConfig
}

// NewClaude builds the Anthropic backend. extendedThinking enables the
// thinking beta header and budget.
func NewClaude(apiKey string, extendedThinking bool) *Claude {
	return &Claude{
		apiKey:           apiKey,
		apiBase:          "https://api.anthropic.com/v1",
		defaultModel:     "claude-sonnet-4-20250514",
		extendedThinking: extendedThinking,
		client:           &http.Client{Timeout: 120 * time.Second},
		retry:            DefaultRetryConfig(),
	}
}

// WithBaseURL overrides the endpoint (used by tests).
func (p *Claude) WithBaseURL(base string) *Claude {
	p.apiBase = strings.TrimRight(base, "/")
	return p
}

func (p *Claude) Name() string           { return "claude" }
func (p *Claude) Configured() bool       { return p.apiKey != "" }
func (p *Claude) SupportsTools() bool    { return true }
func (p *Claude) SupportsThinking() bool { return true }
func (p *Claude) DefaultModel() string   { return p.defaultModel }

func (p *Claude) FallbackModels() map[string]string {
	return map[string]string{
		"sonnet": "claude-sonnet-4-20250514",
		"haiku":  "claude-3-5-haiku-20241022",
		"opus":   "claude-opus-4-20250514",
	}
}

// FetchModels returns the static fallback set; Anthropic has no public
// models listing worth depending on.
func (p *Claude) FetchModels(_ context.Context) ([]ModelInfo, error) {
	var out []ModelInfo
	for alias, id := range p.FallbackModels() {
		out = append(out, ModelInfo{ID: id, Name: alias})
	}
	return out, nil
}

func (p *Claude) Call(ctx context.Context, prompt, model string, history []Message, systemPrompt string) (*Response, error) {
	return p.CallWithTools(ctx, historyToMessages(prompt, history), model, systemPrompt, nil)
}

func (p *Claude) CallWithTools(ctx context.Context, messages []Message, model, systemPrompt string, tools []ToolDefinition) (*Response, error) {
	if model == "" {
		model = p.defaultModel
	}
	body := p.buildBody(model, messages, systemPrompt, tools)

	return RetryDo(ctx, p.retry, func() (*Response, error) {
		respBody, err := p.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var parsed claudeResponse
		if err := json.NewDecoder(respBody).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("claude: decode response: %w", err)
		}
		return parseClaudeResponse(&parsed), nil
	})
}

func (p *Claude) buildBody(model string, messages []Message, systemPrompt string, tools []ToolDefinition) map[string]interface{} {
	wire := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			// Claude takes the system prompt as a top-level field.
			if systemPrompt == "" {
				systemPrompt = m.Content
			}
		case "assistant":
			blocks := []map[string]interface{}{}
			if m.Content != "" {
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": tc.Arguments,
				})
			}
			wire = append(wire, map[string]interface{}{"role": "assistant", "content": blocks})
		case "tool":
			wire = append(wire, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     m.Content,
				}},
			})
		default:
			wire = append(wire, map[string]interface{}{"role": "user", "content": m.Content})
		}
	}

	body := map[string]interface{}{
		"model":      model,
		"max_tokens": 8192,
		"messages":   wire,
	}
	if systemPrompt != "" {
		body["system"] = systemPrompt
	}
	if len(tools) > 0 {
		wireTools := make([]map[string]interface{}, len(tools))
		for i, t := range tools {
			wireTools[i] = map[string]interface{}{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.Parameters,
			}
		}
		body["tools"] = wireTools
	}
	if p.extendedThinking {
		body["thinking"] = map[string]interface{}{
			"type":          "enabled",
			"budget_tokens": claudeThinkingBudget,
		}
	}
	return body
}

func (p *Claude) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("claude: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("claude: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", claudeVersion)
	if p.extendedThinking {
		req.Header.Set("anthropic-beta", claudeThinkingBeta)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claude: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       "claude: " + string(respBody),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

type claudeResponse struct {
	Content []struct {
		Type     string          `json:"type"`
		Text     string          `json:"text"`
		Thinking string          `json:"thinking"`
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Input    json.RawMessage `json:"input"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseClaudeResponse(resp *claudeResponse) *Response {
	out := &Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "thinking":
			out.Thinking += block.Thinking
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: decodeArgs(string(block.Input)),
			})
		}
	}
	if resp.Usage != nil {
		out.Usage = &Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		}
	}
	return out
}
