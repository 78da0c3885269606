package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentbridge/core/pkg/tool"
)

type stubTool struct {
	name string
}

func (s stubTool) Name() string                 { return s.name }
func (s stubTool) Description() string          { return "stub" }
func (s stubTool) Schema() json.RawMessage      { return json.RawMessage(`{}`) }
func (s stubTool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	return &tool.Result{Content: "ok"}, nil
}

func TestRegistry_RegisterGetNames(t *testing.T) {
	r := New()
	r.Register(stubTool{name: "greet"})

	got, ok := r.Get("greet")
	if !ok || got.Name() != "greet" {
		t.Fatalf("Get(greet) = %v, %v", got, ok)
	}

	names := r.Names()
	if len(names) != 1 || names[0] != "greet" {
		t.Errorf("Names() = %v, want [greet]", names)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := New()
	r.Register(stubTool{name: "a"})
	r.Register(stubTool{name: "a"})

	if len(r.Names()) != 1 {
		t.Errorf("expected exactly one entry for duplicate name, got %d", len(r.Names()))
	}
}

func TestRegistry_ListDefinitionsIsSnapshot(t *testing.T) {
	r := New()
	r.Register(stubTool{name: "a"})

	defs := r.ListDefinitions()
	r.Register(stubTool{name: "b"})

	if len(defs) != 1 {
		t.Errorf("snapshot should not observe later registrations, got %d defs", len(defs))
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := New()
	r.Register(stubTool{name: "a"})
	r.Unregister("a")

	if _, ok := r.Get("a"); ok {
		t.Error("expected tool to be gone after Unregister")
	}
}
