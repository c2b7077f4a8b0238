package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/quantops/qubot/internal/providers"
	"github.com/quantops/qubot/internal/tools"
)

// scriptedProvider returns canned responses in order and records every call.
type scriptedProvider struct {
	responses []*providers.Response
	calls     int
	gotSystem []string
	gotMsgs   [][]providers.Message
	toolsOK   bool
}

func (p *scriptedProvider) Name() string                     { return "scripted" }
func (p *scriptedProvider) Configured() bool                 { return true }
func (p *scriptedProvider) SupportsTools() bool              { return p.toolsOK }
func (p *scriptedProvider) SupportsThinking() bool           { return false }
func (p *scriptedProvider) DefaultModel() string             { return "scripted-1" }
func (p *scriptedProvider) FallbackModels() map[string]string { return nil }
func (p *scriptedProvider) FetchModels(context.Context) ([]providers.ModelInfo, error) {
	return nil, nil
}

func (p *scriptedProvider) Call(_ context.Context, prompt, _ string, history []providers.Message, system string) (*providers.Response, error) {
	p.gotSystem = append(p.gotSystem, system)
	p.gotMsgs = append(p.gotMsgs, append(history, providers.Message{Role: "user", Content: prompt}))
	return p.next(), nil
}

func (p *scriptedProvider) CallWithTools(_ context.Context, messages []providers.Message, _ string, system string, _ []providers.ToolDefinition) (*providers.Response, error) {
	p.gotSystem = append(p.gotSystem, system)
	msgs := make([]providers.Message, len(messages))
	copy(msgs, messages)
	p.gotMsgs = append(p.gotMsgs, msgs)
	return p.next(), nil
}

func (p *scriptedProvider) next() *providers.Response {
	resp := p.responses[p.calls]
	p.calls++
	return resp
}

func toolCallResp(name string, args map[string]any) *providers.Response {
	return &providers.Response{ToolCalls: []providers.ToolCall{
		{ID: "tc-1", Name: name, Arguments: args},
	}}
}

func newTestLoop(maxCalls int) (*Loop, *tools.Registry) {
	reg := tools.NewRegistry()
	tools.RegisterCalculator(reg)
	return NewLoop(LoopConfig{Tools: reg, MaxToolCalls: maxCalls}), reg
}

func TestRunWithoutToolSupport(t *testing.T) {
	loop, _ := newTestLoop(5)
	p := &scriptedProvider{responses: []*providers.Response{{Content: "plain answer"}}}

	res, err := loop.Run(context.Background(), p, Builtins()["chat"], "hi", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "plain answer" || res.Iterations != 1 {
		t.Errorf("result = %+v", res)
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times", p.calls)
	}
}

func TestRunToolCycle(t *testing.T) {
	loop, _ := newTestLoop(5)
	p := &scriptedProvider{
		toolsOK: true,
		responses: []*providers.Response{
			toolCallResp("calculator", map[string]any{"expression": "6 * 7"}),
			{Content: "the answer is 42"},
		},
	}

	res, err := loop.Run(context.Background(), p, Builtins()["chat"], "compute", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "the answer is 42" {
		t.Errorf("content = %q", res.Content)
	}
	if res.Iterations != 2 {
		t.Errorf("iterations = %d", res.Iterations)
	}
	if res.Metadata != nil {
		t.Errorf("unexpected metadata %v", res.Metadata)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].Name != "calculator" {
		t.Errorf("tool calls = %+v", res.ToolCalls)
	}
	if len(res.ToolResults) != 1 || !res.ToolResults[0].Success {
		t.Errorf("tool results = %+v", res.ToolResults)
	}

	// The second call must carry the assistant tool-call turn and the tool
	// result, in that order, after the user message.
	msgs := p.gotMsgs[1]
	if len(msgs) != 3 {
		t.Fatalf("second call got %d messages", len(msgs))
	}
	if msgs[1].Role != "assistant" || len(msgs[1].ToolCalls) != 1 {
		t.Errorf("assistant turn = %+v", msgs[1])
	}
	if msgs[2].Role != "tool" || msgs[2].ToolCallID != "tc-1" || msgs[2].Content != "42" {
		t.Errorf("tool turn = %+v", msgs[2])
	}
}

func TestRunInvalidToolArgsFeedFailureBack(t *testing.T) {
	loop, _ := newTestLoop(5)
	p := &scriptedProvider{
		toolsOK: true,
		responses: []*providers.Response{
			toolCallResp("calculator", map[string]any{}),
			{Content: "done"},
		},
	}

	if _, err := loop.Run(context.Background(), p, Builtins()["chat"], "compute", "", nil); err != nil {
		t.Fatal(err)
	}
	toolMsg := p.gotMsgs[1][2]
	if !strings.HasPrefix(toolMsg.Content, "Error:") {
		t.Errorf("validation failure not surfaced to model: %q", toolMsg.Content)
	}
}

func TestRunToolOutsideAgentSlice(t *testing.T) {
	loop, _ := newTestLoop(5)
	p := &scriptedProvider{
		toolsOK: true,
		responses: []*providers.Response{
			toolCallResp("calculator", map[string]any{"expression": "1"}),
			{Content: "done"},
		},
	}

	// research has no calculator; the call must fail, not execute.
	if _, err := loop.Run(context.Background(), p, Builtins()["research"], "compute", "", nil); err != nil {
		t.Fatal(err)
	}
	toolMsg := p.gotMsgs[1][2]
	if !strings.Contains(toolMsg.Content, "not available") {
		t.Errorf("out-of-slice tool call: %q", toolMsg.Content)
	}
}

func TestRunBoundedToolCalls(t *testing.T) {
	const bound = 3
	loop, _ := newTestLoop(bound)
	var responses []*providers.Response
	for i := 0; i < bound+2; i++ {
		responses = append(responses, toolCallResp("calculator", map[string]any{"expression": "1 + 1"}))
	}
	p := &scriptedProvider{toolsOK: true, responses: responses}

	res, err := loop.Run(context.Background(), p, Builtins()["chat"], "loop forever", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.calls != bound {
		t.Errorf("provider called %d times, want exactly %d", p.calls, bound)
	}
	if res.Iterations != bound {
		t.Errorf("iterations = %d", res.Iterations)
	}
	// Every round's tool call executes before the bound cuts the loop.
	if len(res.ToolCalls) != bound || len(res.ToolResults) != bound {
		t.Fatalf("tool calls = %d, results = %d, want %d each",
			len(res.ToolCalls), len(res.ToolResults), bound)
	}
	for i, r := range res.ToolResults {
		if !r.Success {
			t.Errorf("tool result %d failed: %+v", i, r)
		}
	}
	if v, _ := res.Metadata["max_calls_reached"].(bool); !v {
		t.Errorf("metadata = %v, want max_calls_reached=true", res.Metadata)
	}
	if !strings.Contains(res.Content, "3 tool calls") {
		t.Errorf("bound response does not explain the stop: %q", res.Content)
	}
}

func TestRoute(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"please search the latest funding news", "research"},
		{"debug this function in the file", "code"},
		{"deploy and check the github issue", "devops"},
		{"draft an article on restaking", "writer"},
		{"hello there", "chat"},
		{"search the code", "chat"}, // research vs code tie
	}
	for _, tc := range cases {
		if got := Route(tc.message); got != tc.want {
			t.Errorf("Route(%q) = %q, want %q", tc.message, got, tc.want)
		}
	}
}

func TestBuiltinsToolSlices(t *testing.T) {
	ags := Builtins()
	if len(ags["chat"].Tools) != 0 {
		t.Error("chat should see all tools")
	}
	for _, name := range []string{"research", "code", "devops", "writer"} {
		if len(ags[name].Tools) == 0 {
			t.Errorf("%s has no tool slice", name)
		}
	}
}
