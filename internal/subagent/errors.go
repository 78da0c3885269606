package subagent

import "errors"

// Sentinel errors for the subagent orchestrator's failure modes that are
// not already covered by *agent.Error (loop failures propagate as-is).
var (
	ErrUnknownAgent     = errors.New("subagent: unknown agent type")
	ErrMaxDepthExceeded = errors.New("subagent: max spawn depth exceeded")
)
