// Package subagent implements recursive agent spawning: a filtered view of
// the parent's tool registry, lifetime bounding, and result bubbling back
// through the task tool.
package subagent

import "fmt"

// Definition describes one spawnable agent type. Definitions are immutable
// once registered.
type Definition struct {
	// AgentType is the unique key under which this definition is looked up.
	AgentType string

	// Model overrides the parent loop's model for this agent type, if set.
	Model string

	// SystemPrompt is prepended to the child's history as a system message.
	SystemPrompt string

	// AllowedTools, if non-nil, restricts the child's registry to these
	// exact names and glob patterns. A nil slice means "no allowlist
	// restriction" (denylist still applies).
	AllowedTools []string

	// DeniedTools always takes precedence over AllowedTools.
	DeniedTools []string

	// ForkContext, when true, seeds the child's history with a snapshot of
	// the parent's history at spawn time instead of starting empty.
	ForkContext bool

	// MaxIterations bounds the child loop. Must be >= 1.
	MaxIterations int

	// Streaming selects whether the child loop uses the provider's
	// streaming or one-shot completion path.
	Streaming bool

	// AllowRecursion permits this agent type to itself spawn subagents via
	// the task tool. Defaults to false: the task tool is excluded from a
	// child's filtered registry unless this is set.
	AllowRecursion bool
}

// Validate checks the invariants DefinitionRegistry.Register enforces before
// accepting a Definition.
func (d Definition) Validate() error {
	if d.AgentType == "" {
		return fmt.Errorf("subagent: agent_type must not be empty")
	}
	if d.MaxIterations < 1 {
		return fmt.Errorf("subagent: max_iterations must be >= 1, got %d", d.MaxIterations)
	}
	return nil
}

// Result is the aggregated outcome of one subagent run.
type Result struct {
	AgentID      string
	AgentType    string
	FinalText    string
	ToolUseCount int
	InputTokens  int
	OutputTokens int
	Completed    bool
}
