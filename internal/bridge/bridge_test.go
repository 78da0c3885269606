package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentbridge/core/internal/hooks"
	"github.com/agentbridge/core/internal/registry"
	"github.com/agentbridge/core/pkg/tool"
)

type stubCustomTool struct {
	name   string
	result tool.Result
}

func (s stubCustomTool) Name() string               { return s.name }
func (s stubCustomTool) Description() string        { return "a host tool" }
func (s stubCustomTool) SchemaJSON() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s stubCustomTool) Execute(context.Context, json.RawMessage) (tool.Result, error) {
	return s.result, nil
}

func TestRegisterCustomTool(t *testing.T) {
	r := registry.New()
	ct := stubCustomTool{name: "lookup", result: tool.Result{Content: "found it"}}

	if err := RegisterCustomTool(r, ct); err != nil {
		t.Fatalf("RegisterCustomTool() error: %v", err)
	}

	registered, ok := r.Get("lookup")
	if !ok {
		t.Fatal("tool not present in registry after registration")
	}
	res, err := registered.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.Content != "found it" {
		t.Errorf("Content = %q, want %q", res.Content, "found it")
	}
}

func TestRegisterCustomTool_Duplicate(t *testing.T) {
	r := registry.New()
	ct := stubCustomTool{name: "lookup"}

	if err := RegisterCustomTool(r, ct); err != nil {
		t.Fatalf("first RegisterCustomTool() error: %v", err)
	}
	err := RegisterCustomTool(r, ct)
	if err == nil {
		t.Fatal("expected ErrDuplicateTool on second registration")
	}
	if err.Error() != ErrDuplicateTool("lookup").Error() {
		t.Errorf("err = %v, want duplicate-tool error for %q", err, "lookup")
	}
}

type stubHookHandler struct{ blocked bool }

func (s stubHookHandler) OnEvent(e hooks.Event) hooks.Response {
	if s.blocked && e.Kind == hooks.EventPreToolUse {
		return hooks.Block("denied by host")
	}
	return hooks.Continue
}

func TestAsHandler(t *testing.T) {
	h := AsHandler(stubHookHandler{blocked: true})
	resp := h.Handle(context.Background(), hooks.Event{Kind: hooks.EventPreToolUse})
	if resp.Kind != hooks.ResponseBlock {
		t.Errorf("resp.Kind = %v, want Block", resp.Kind)
	}

	resp = h.Handle(context.Background(), hooks.Event{Kind: hooks.EventAgentComplete})
	if resp.Kind != hooks.ResponseContinue {
		t.Errorf("resp.Kind = %v, want Continue", resp.Kind)
	}
}
