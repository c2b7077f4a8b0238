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

	"github.com/google/uuid"
)

// Gemini implements Provider against the generativelanguage API. Messages
// travel as contents/parts; the system prompt goes to systemInstruction,
// tool calls as functionCall/functionResponse parts.
type Gemini struct {
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
	retry        RetryConfig
}

// NewGemini builds the Google backend.
func NewGemini(apiKey string) *Gemini {
	return &Gemini{
		apiKey:       apiKey,
		apiBase:      "https://generativelanguage.googleapis.com/v1beta",
		defaultModel: "gemini-2.0-flash",
		client:       &http.Client{Timeout: 90 * time.Second},
		retry:        DefaultRetryConfig(),
	}
}

// WithBaseURL overrides the endpoint (used by tests).
func (p *Gemini) WithBaseURL(base string) *Gemini {
	p.apiBase = strings.TrimRight(base, "/")
	return p
}

func (p *Gemini) Name() string           { return "gemini" }
func (p *Gemini) Configured() bool       { return p.apiKey != "" }
func (p *Gemini) SupportsTools() bool    { return true }
func (p *Gemini) SupportsThinking() bool { return false }
func (p *Gemini) DefaultModel() string   { return p.defaultModel }

func (p *Gemini) FallbackModels() map[string]string {
	return map[string]string{
		"flash": "gemini-2.0-flash",
		"pro":   "gemini-1.5-pro",
	}
}

// FetchModels queries the models listing; failures return the fallback set.
func (p *Gemini) FetchModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/models?key=%s", p.apiBase, p.apiKey), nil)
	if err == nil {
		if resp, doErr := p.client.Do(req); doErr == nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				var parsed struct {
					Models []struct {
						Name        string `json:"name"`
						DisplayName string `json:"displayName"`
					} `json:"models"`
				}
				if json.NewDecoder(resp.Body).Decode(&parsed) == nil {
					var out []ModelInfo
					for _, m := range parsed.Models {
						out = append(out, ModelInfo{
							ID:   strings.TrimPrefix(m.Name, "models/"),
							Name: m.DisplayName,
						})
					}
					return out, nil
				}
			}
		}
	}
	var out []ModelInfo
	for alias, id := range p.FallbackModels() {
		out = append(out, ModelInfo{ID: id, Name: alias})
	}
	return out, nil
}

func (p *Gemini) Call(ctx context.Context, prompt, model string, history []Message, systemPrompt string) (*Response, error) {
	return p.CallWithTools(ctx, historyToMessages(prompt, history), model, systemPrompt, nil)
}

func (p *Gemini) CallWithTools(ctx context.Context, messages []Message, model, systemPrompt string, tools []ToolDefinition) (*Response, error) {
	if model == "" {
		model = p.defaultModel
	}
	body := p.buildBody(messages, systemPrompt, tools)

	return RetryDo(ctx, p.retry, func() (*Response, error) {
		respBody, err := p.doRequest(ctx, model, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var parsed geminiResponse
		if err := json.NewDecoder(respBody).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("gemini: decode response: %w", err)
		}
		return parseGeminiResponse(&parsed), nil
	})
}

func (p *Gemini) buildBody(messages []Message, systemPrompt string, tools []ToolDefinition) map[string]interface{} {
	contents := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			if systemPrompt == "" {
				systemPrompt = m.Content
			}
		case "assistant":
			parts := []map[string]interface{}{}
			if m.Content != "" {
				parts = append(parts, map[string]interface{}{"text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, map[string]interface{}{
					"functionCall": map[string]interface{}{
						"name": tc.Name,
						"args": tc.Arguments,
					},
				})
			}
			contents = append(contents, map[string]interface{}{"role": "model", "parts": parts})
		case "tool":
			// Gemini matches results by function name carried in ToolCallID
			// as "name:id"; fall back to the raw id.
			name := m.ToolCallID
			if i := strings.IndexByte(name, ':'); i > 0 {
				name = name[:i]
			}
			contents = append(contents, map[string]interface{}{
				"role": "user",
				"parts": []map[string]interface{}{{
					"functionResponse": map[string]interface{}{
						"name":     name,
						"response": map[string]interface{}{"result": m.Content},
					},
				}},
			})
		default:
			contents = append(contents, map[string]interface{}{
				"role":  "user",
				"parts": []map[string]interface{}{{"text": m.Content}},
			})
		}
	}

	body := map[string]interface{}{"contents": contents}
	if systemPrompt != "" {
		body["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{{"text": systemPrompt}},
		}
	}
	if len(tools) > 0 {
		decls := make([]map[string]interface{}, len(tools))
		for i, t := range tools {
			decls[i] = map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			}
		}
		body["tools"] = []map[string]interface{}{{"functionDeclarations": decls}}
	}
	return body
}

func (p *Gemini) doRequest(ctx context.Context, model string, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.apiBase, model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       "gemini: " + string(respBody),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text"`
				FunctionCall *struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				} `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func parseGeminiResponse(resp *geminiResponse) *Response {
	out := &Response{}
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				out.Content += part.Text
			}
			if part.FunctionCall != nil {
				args := part.FunctionCall.Args
				if args == nil {
					args = map[string]any{}
				}
				// Gemini omits call ids; synthesize one so the loop can
				// correlate results.
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:        part.FunctionCall.Name + ":" + uuid.NewString()[:8],
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			}
		}
	}
	if resp.UsageMetadata != nil {
		out.Usage = &Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
		}
	}
	return out
}
