// Package bridge names the callback interfaces a host (a TUI, a desktop
// app via a foreign-function bridge, or another program) implements to
// drive this module and receive streaming updates. Nothing in this
// package touches the foreign-function boundary itself — that translation
// layer is the host's concern; this package only fixes the Go-side
// contract it must satisfy.
package bridge

import (
	"context"
	"encoding/json"

	"github.com/agentbridge/core/internal/hooks"
	"github.com/agentbridge/core/internal/registry"
	"github.com/agentbridge/core/internal/subagent"
	"github.com/agentbridge/core/pkg/tool"
)

// ChatCallback receives streaming updates from a top-level agent loop run.
type ChatCallback interface {
	OnTextDelta(text string)
	OnToolUse(name, inputJSON string)
	OnToolResult(content string, isError bool)
	OnComplete(result ChatResult)
	OnError(err error)
}

// ChatResult is the terminal payload delivered to ChatCallback.OnComplete.
type ChatResult struct {
	FinalText    string
	ToolUseCount int
	InputTokens  int
	OutputTokens int
}

// SubagentCallback is ChatCallback's shape, tagged by the spawning
// subagent's id so a host can multiplex updates from several concurrent
// child runs. internal/subagent.Callback is the same contract restated
// with a leading agentID parameter on every method; a host adapts one to
// the other trivially.
type SubagentCallback = subagent.Callback

// HookHandler adapts a host-implemented lifecycle interceptor to
// internal/hooks.Handler, so a host written against this bridge package
// never needs to import internal/hooks directly.
type HookHandler interface {
	OnEvent(event hooks.Event) hooks.Response
}

// AsHandler adapts a HookHandler to hooks.Handler for registration on a
// hooks.Registry.
func AsHandler(h HookHandler) hooks.Handler {
	return hookHandlerAdapter{h}
}

type hookHandlerAdapter struct{ h HookHandler }

func (a hookHandlerAdapter) Handle(_ context.Context, e hooks.Event) hooks.Response {
	return a.h.OnEvent(e)
}

// CustomTool is the shape a host implements to register a tool from
// outside this module. AsTool adapts one to pkg/tool.Tool for
// registration on a registry.Registry; ErrDuplicateTool signals a name
// collision with an already-registered tool, which the host's
// registration call must surface as a rejection rather than silently
// overwriting (registry.Registry.Register itself always replaces — the
// distinction matters only for host-originated tools, which are expected
// to self-report a unique name before they're handed to the registry).
type CustomTool interface {
	Name() string
	Description() string
	SchemaJSON() json.RawMessage
	Execute(ctx context.Context, inputJSON json.RawMessage) (tool.Result, error)
}

// AsTool adapts a CustomTool to pkg/tool.Tool.
func AsTool(c CustomTool) tool.Tool {
	return customToolAdapter{c}
}

type customToolAdapter struct{ c CustomTool }

func (a customToolAdapter) Name() string            { return a.c.Name() }
func (a customToolAdapter) Description() string     { return a.c.Description() }
func (a customToolAdapter) Schema() json.RawMessage { return a.c.SchemaJSON() }

func (a customToolAdapter) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	res, err := a.c.Execute(ctx, params)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// duplicateError is the error ErrDuplicateTool builds for a CustomTool.Name
// that collides with an already-registered tool.
type duplicateError struct{ name string }

func (e duplicateError) Error() string { return "bridge: duplicate tool name: " + e.name }

// ErrDuplicateTool constructs the error a host should return from its
// custom-tool registration call on a name collision.
func ErrDuplicateTool(name string) error { return duplicateError{name: name} }

// RegisterCustomTool adds c to r under its own reported name, rejecting
// the call with ErrDuplicateTool instead of silently overwriting an
// existing tool of the same name.
func RegisterCustomTool(r *registry.Registry, c CustomTool) error {
	if _, exists := r.Get(c.Name()); exists {
		return ErrDuplicateTool(c.Name())
	}
	r.Register(AsTool(c))
	return nil
}
