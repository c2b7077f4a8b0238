package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// OpenAICompatible implements Provider for every vendor speaking the OpenAI
// chat-completions shape: OpenAI, Groq, GLM, NVIDIA, OpenRouter, MiniMax.
type OpenAICompatible struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	fallbacks    map[string]string
	extraHeaders map[string]string
	client       *http.Client
	retry        RetryConfig
}

// NewOpenAI targets api.openai.com.
func NewOpenAI(apiKey string) *OpenAICompatible {
	return newOpenAICompatible("openai", apiKey, "https://api.openai.com/v1", "gpt-4o-mini",
		map[string]string{
			"4o":      "gpt-4o",
			"4o-mini": "gpt-4o-mini",
			"o3-mini": "o3-mini",
		}, nil)
}

// NewGroq targets the Groq OpenAI-compatible endpoint.
func NewGroq(apiKey string) *OpenAICompatible {
	return newOpenAICompatible("groq", apiKey, "https://api.groq.com/openai/v1", "llama-3.3-70b-versatile",
		map[string]string{
			"llama":    "llama-3.3-70b-versatile",
			"qwen":     "qwen-2.5-72b-instruct",
			"deepseek": "deepseek-r1-distill-llama-70b",
		}, nil)
}

// NewGLM targets Zhipu's bigmodel endpoint.
func NewGLM(apiKey string) *OpenAICompatible {
	return newOpenAICompatible("glm", apiKey, "https://open.bigmodel.cn/api/paas/v4", "glm-4-plus",
		map[string]string{
			"glm4":  "glm-4-plus",
			"flash": "glm-4-flash",
		}, nil)
}

// NewNVIDIA targets the NVIDIA NIM endpoint.
func NewNVIDIA(apiKey string) *OpenAICompatible {
	return newOpenAICompatible("nvidia", apiKey, "https://integrate.api.nvidia.com/v1", "meta/llama-3.3-70b-instruct",
		map[string]string{
			"llama":    "meta/llama-3.3-70b-instruct",
			"nemotron": "nvidia/llama-3.1-nemotron-70b-instruct",
		}, nil)
}

// NewOpenRouter targets openrouter.ai and sends its identity header.
func NewOpenRouter(apiKey string) *OpenAICompatible {
	return newOpenAICompatible("openrouter", apiKey, "https://openrouter.ai/api/v1", "anthropic/claude-3.5-sonnet",
		map[string]string{
			"sonnet": "anthropic/claude-3.5-sonnet",
			"gpt4o":  "openai/gpt-4o",
			"gemini": "google/gemini-2.0-flash-001",
		},
		map[string]string{
			"HTTP-Referer": "https://github.com/quantops/qubot",
			"X-Title":      "qubot",
		})
}

// NewMiniMax targets MiniMax's OpenAI-compatible endpoint.
func NewMiniMax(apiKey string) *OpenAICompatible {
	return newOpenAICompatible("minimax", apiKey, "https://api.minimax.chat/v1", "MiniMax-Text-01",
		map[string]string{
			"text": "MiniMax-Text-01",
		}, nil)
}

func newOpenAICompatible(name, apiKey, apiBase, defaultModel string, fallbacks, extraHeaders map[string]string) *OpenAICompatible {
	return &OpenAICompatible{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		fallbacks:    fallbacks,
		extraHeaders: extraHeaders,
		client:       &http.Client{Timeout: 120 * time.Second},
		retry:        DefaultRetryConfig(),
	}
}

// WithBaseURL overrides the endpoint (used by tests).
func (p *OpenAICompatible) WithBaseURL(base string) *OpenAICompatible {
	p.apiBase = strings.TrimRight(base, "/")
	return p
}

func (p *OpenAICompatible) Name() string                    { return p.name }
func (p *OpenAICompatible) Configured() bool                { return p.apiKey != "" }
func (p *OpenAICompatible) SupportsTools() bool             { return true }
func (p *OpenAICompatible) SupportsThinking() bool          { return false }
func (p *OpenAICompatible) DefaultModel() string            { return p.defaultModel }
func (p *OpenAICompatible) FallbackModels() map[string]string { return p.fallbacks }

// FetchModels queries GET /models; any failure returns the fallback map.
func (p *OpenAICompatible) FetchModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/models", nil)
	if err != nil {
		return p.fallbackList(), nil
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return p.fallbackList(), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return p.fallbackList(), nil
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return p.fallbackList(), nil
	}
	out := make([]ModelInfo, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		out = append(out, ModelInfo{ID: m.ID, Name: m.ID})
	}
	return out, nil
}

func (p *OpenAICompatible) fallbackList() []ModelInfo {
	out := make([]ModelInfo, 0, len(p.fallbacks))
	for alias, id := range p.fallbacks {
		out = append(out, ModelInfo{ID: id, Name: alias})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *OpenAICompatible) Call(ctx context.Context, prompt, model string, history []Message, systemPrompt string) (*Response, error) {
	return p.CallWithTools(ctx, historyToMessages(prompt, history), model, systemPrompt, nil)
}

func (p *OpenAICompatible) CallWithTools(ctx context.Context, messages []Message, model, systemPrompt string, tools []ToolDefinition) (*Response, error) {
	if model == "" {
		model = p.defaultModel
	}
	body := p.buildBody(model, messages, systemPrompt, tools)

	return RetryDo(ctx, p.retry, func() (*Response, error) {
		respBody, err := p.doRequest(ctx, "/chat/completions", body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var parsed openAIResponse
		if err := json.NewDecoder(respBody).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
		}
		return p.parseResponse(&parsed), nil
	})
}

func (p *OpenAICompatible) buildBody(model string, messages []Message, systemPrompt string, tools []ToolDefinition) map[string]interface{} {
	msgs := make([]map[string]interface{}, 0, len(messages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, map[string]interface{}{"role": "system", "content": systemPrompt})
	}
	for _, m := range messages {
		msg := map[string]interface{}{"role": m.Role, "content": m.Content}
		if m.ToolCallID != "" {
			msg["tool_call_id"] = m.ToolCallID
		}
		if len(m.ToolCalls) > 0 {
			wire := make([]map[string]interface{}, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Arguments)
				wire[i] = map[string]interface{}{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": string(argsJSON),
					},
				}
			}
			msg["tool_calls"] = wire
		}
		msgs = append(msgs, msg)
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": msgs,
	}
	if len(tools) > 0 {
		wire := make([]map[string]interface{}, len(tools))
		for i, t := range tools {
			wire[i] = map[string]interface{}{
				"type": "function",
				"function": map[string]interface{}{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			}
		}
		body["tools"] = wire
		body["tool_choice"] = "auto"
	}
	return body
}

func (p *OpenAICompatible) doRequest(ctx context.Context, path string, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("%s: %s", p.name, string(respBody)),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAICompatible) parseResponse(resp *openAIResponse) *Response {
	out := &Response{}
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		out.Content = msg.Content
		out.Thinking = msg.ReasoningContent
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      strings.TrimSpace(tc.Function.Name),
				Arguments: decodeArgs(tc.Function.Arguments),
			})
		}
	}
	if resp.Usage != nil {
		out.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
	}
	return out
}
