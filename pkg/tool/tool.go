// Package tool defines the uniform contract every capability exposed to an
// agent must satisfy, whether implemented natively, proxied from an MCP
// server, or registered by a host through the bridge.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is a named capability with a JSON-Schema input and an asynchronous
// execute operation. Tools are reference-shared: a registry stores one
// handle per name and every caller observes the same underlying instance.
type Tool interface {
	// Name returns the tool's unique, stable, case-sensitive name.
	Name() string

	// Description is shown to the LLM to help it decide when to call this
	// tool.
	Description() string

	// Schema returns the JSON Schema describing the tool's input.
	Schema() json.RawMessage

	// Execute runs the tool against params, which conform to Schema().
	// Tool-level failures are reported through the returned Result with
	// IsError set, not through the error return; the error return is
	// reserved for cases so severe the caller should not even synthesize a
	// result (context cancellation is the common case).
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is the outcome of a single tool execution.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Definition is the name+description+schema projection of a Tool sent to
// the LLM; it carries no executable behavior.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"input_schema"`
}

// DefinitionOf projects a Tool down to its Definition.
func DefinitionOf(t Tool) Definition {
	return Definition{Name: t.Name(), Description: t.Description(), Schema: t.Schema()}
}
