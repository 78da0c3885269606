package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/agentbridge/core/internal/hooks"
	"github.com/agentbridge/core/internal/policy"
	"github.com/agentbridge/core/internal/registry"
	"github.com/agentbridge/core/pkg/provider"
	"github.com/agentbridge/core/pkg/tool"
)

// scriptedProvider replays a fixed sequence of responses, one per
// CreateMessage call, for deterministic loop tests.
type scriptedProvider struct {
	responses []*provider.Response
	calls     int
}

func (p *scriptedProvider) CreateMessage(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if p.calls >= len(p.responses) {
		return &provider.Response{StopReason: provider.StopEndTurn}, nil
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func (p *scriptedProvider) CreateMessageStream(ctx context.Context, req *provider.Request) (<-chan provider.StreamEvent, error) {
	return nil, nil
}
func (p *scriptedProvider) Name() string              { return "stub" }
func (p *scriptedProvider) Models() []provider.Model  { return nil }
func (p *scriptedProvider) SupportsTools() bool        { return true }

// erroringStreamProvider emits a handful of events then an EventError,
// mirroring a provider whose connection drops mid-turn.
type erroringStreamProvider struct{}

func (p *erroringStreamProvider) CreateMessage(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	return &provider.Response{StopReason: provider.StopEndTurn}, nil
}

func (p *erroringStreamProvider) CreateMessageStream(ctx context.Context, req *provider.Request) (<-chan provider.StreamEvent, error) {
	events := make(chan provider.StreamEvent, 4)
	events <- provider.StreamEvent{Kind: provider.EventTextDelta, TextDelta: "partial"}
	events <- provider.StreamEvent{Kind: provider.EventError, Err: fmt.Errorf("connection reset")}
	close(events)
	return events, nil
}

func (p *erroringStreamProvider) Name() string             { return "stub-stream" }
func (p *erroringStreamProvider) Models() []provider.Model { return nil }
func (p *erroringStreamProvider) SupportsTools() bool      { return true }

type greetTool struct{ calls int }

func (g *greetTool) Name() string            { return "greet" }
func (g *greetTool) Description() string     { return "says hello" }
func (g *greetTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (g *greetTool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	g.calls++
	var in struct {
		Name string `json:"name"`
	}
	json.Unmarshal(params, &in)
	return &tool.Result{Content: "Hello, " + in.Name + "!"}, nil
}

func endTurn(text string) *provider.Response {
	return &provider.Response{
		Content:    []provider.ContentBlock{provider.TextBlock(text)},
		StopReason: provider.StopEndTurn,
	}
}

func toolUseResponse(id, name, inputJSON string) *provider.Response {
	return &provider.Response{
		Content:    []provider.ContentBlock{provider.ToolUseBlock(id, name, inputJSON)},
		StopReason: provider.StopToolUse,
	}
}

func TestLoop_EndTurnNoTools(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.Response{endTurn("hi there")}}
	l := New(p, nil, Config{Streaming: false}, nil)

	result, err := l.Run(context.Background(), nil, "hello")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.FinalText != "hi there" {
		t.Errorf("FinalText = %q, want %q", result.FinalText, "hi there")
	}
	if result.ToolUseCount != 0 {
		t.Errorf("ToolUseCount = %d, want 0", result.ToolUseCount)
	}
}

func TestLoop_ToolUseThenEndTurn(t *testing.T) {
	reg := registry.New()
	gt := &greetTool{}
	reg.Register(gt)

	p := &scriptedProvider{responses: []*provider.Response{
		toolUseResponse("t1", "greet", `{"name":"World"}`),
		endTurn("done"),
	}}
	l := New(p, reg, Config{Streaming: false}, nil)

	result, err := l.Run(context.Background(), nil, "greet the world")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if gt.calls != 1 {
		t.Errorf("tool invoked %d times, want 1", gt.calls)
	}
	if result.ToolUseCount != 1 {
		t.Errorf("ToolUseCount = %d, want 1", result.ToolUseCount)
	}
	if result.FinalText != "done" {
		t.Errorf("FinalText = %q, want %q", result.FinalText, "done")
	}

	// messages appear in strict causal order: user, assistant(tool_use),
	// tool(tool_result), assistant(end_turn)
	if len(result.Messages) != 4 {
		t.Fatalf("len(Messages) = %d, want 4", len(result.Messages))
	}
	if result.Messages[0].Role != provider.RoleUser {
		t.Errorf("Messages[0].Role = %v, want user", result.Messages[0].Role)
	}
	if result.Messages[2].Role != provider.RoleTool {
		t.Errorf("Messages[2].Role = %v, want tool", result.Messages[2].Role)
	}
	toolResult := result.Messages[2].Content[0]
	if toolResult.ToolResultID != "t1" || toolResult.Text != "Hello, World!" {
		t.Errorf("tool result = %+v, want id=t1 content='Hello, World!'", toolResult)
	}
}

func TestLoop_UnknownToolIsErrorResult(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.Response{
		toolUseResponse("t1", "nonexistent", `{}`),
		endTurn("recovered"),
	}}
	l := New(p, registry.New(), Config{Streaming: false}, nil)

	result, err := l.Run(context.Background(), nil, "call a missing tool")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	toolResult := result.Messages[2].Content[0]
	if !toolResult.IsError {
		t.Error("expected is_error=true for unknown tool")
	}
}

func TestLoop_PolicyDenial(t *testing.T) {
	reg := registry.New()
	reg.Register(&greetTool{})

	pol := policy.NewBuilder(policy.Deny).AllowPattern("safe_*").Build()

	p := &scriptedProvider{responses: []*provider.Response{
		toolUseResponse("t1", "greet", `{"name":"x"}`),
		endTurn("done"),
	}}
	l := New(p, reg, Config{Streaming: false, Policy: pol}, nil)

	result, err := l.Run(context.Background(), nil, "greet")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	toolResult := result.Messages[2].Content[0]
	if !toolResult.IsError || toolResult.Text != `tool "greet" denied by policy` {
		t.Errorf("toolResult = %+v, want denied-by-policy error", toolResult)
	}
}

func TestLoop_HookBlocksToolUse(t *testing.T) {
	reg := registry.New()
	reg.Register(&greetTool{})

	hookRegistry := hooks.New(nil)
	hookRegistry.Register(hooks.HandlerFunc(func(ctx context.Context, e hooks.Event) hooks.Response {
		if e.Kind == hooks.EventPreToolUse {
			return hooks.Block("not allowed right now")
		}
		return hooks.Continue
	}))

	p := &scriptedProvider{responses: []*provider.Response{
		toolUseResponse("t1", "greet", `{"name":"x"}`),
		endTurn("done"),
	}}
	l := New(p, reg, Config{Streaming: false, Hooks: hookRegistry}, nil)

	result, err := l.Run(context.Background(), nil, "greet")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	toolResult := result.Messages[2].Content[0]
	if !toolResult.IsError {
		t.Error("expected is_error=true for hook-blocked call")
	}
}

func TestLoop_MaxIterationsTruncates(t *testing.T) {
	reg := registry.New()
	reg.Register(&greetTool{})

	// Every turn requests the same tool, so the loop never reaches end_turn
	// and must stop at the iteration cap instead of looping forever.
	p := &scriptedProvider{responses: []*provider.Response{
		toolUseResponse("t1", "greet", `{"name":"a"}`),
		toolUseResponse("t2", "greet", `{"name":"b"}`),
		toolUseResponse("t3", "greet", `{"name":"c"}`),
	}}
	l := New(p, reg, Config{Streaming: false, MaxIterations: 1}, nil)

	result, err := l.Run(context.Background(), nil, "loop forever")
	if err != nil {
		t.Fatalf("Run() should not error on reaching max iterations, got %v", err)
	}
	if result.StopReason != provider.StopMaxTokens {
		t.Errorf("StopReason = %v, want StopMaxTokens", result.StopReason)
	}
	if result.FinalText == "" {
		t.Error("expected a truncation marker in FinalText")
	}
}

func TestLoop_CancelledContext(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.Response{endTurn("hi")}}
	l := New(p, nil, Config{Streaming: false}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Run(ctx, nil, "hello")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if kind, ok := KindOf(err); !ok || kind != KindCancelled {
		t.Errorf("KindOf(err) = %v, %v, want KindCancelled", kind, ok)
	}
}

func TestLoop_StreamErrorPropagates(t *testing.T) {
	p := &erroringStreamProvider{}
	l := New(p, nil, Config{Streaming: true}, nil)

	_, err := l.Run(context.Background(), nil, "hello")
	if err == nil {
		t.Fatal("expected an error when the stream reports EventError")
	}
	if kind, ok := KindOf(err); !ok || kind != KindProvider {
		t.Errorf("KindOf(err) = %v, %v, want KindProvider", kind, ok)
	}
}
