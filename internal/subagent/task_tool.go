package subagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentbridge/core/internal/hooks"
	"github.com/agentbridge/core/internal/registry"
	"github.com/agentbridge/core/pkg/provider"
	"github.com/agentbridge/core/pkg/tool"
)

// TaskToolName is the registry name of the built-in subagent-spawning
// tool. A FilteredRegistry excludes it from a child's view unless that
// child's Definition sets AllowRecursion.
const TaskToolName = "task"

var taskSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"agent_type": {"type": "string", "description": "the registered subagent type to spawn"},
		"prompt": {"type": "string", "description": "the task prompt for the subagent"}
	},
	"required": ["agent_type", "prompt"]
}`)

type taskInput struct {
	AgentType string `json:"agent_type"`
	Prompt    string `json:"prompt"`
}

// HistorySnapshot returns the calling loop's current message history, used
// to seed a forked child's conversation. TaskTool calls it lazily, only
// when the resolved definition sets ForkContext, so a non-forking spawn
// never pays for a snapshot it won't use.
type HistorySnapshot func() []provider.Message

// TaskTool adapts Runner.Run to the pkg/tool.Tool contract so it can be
// registered like any native tool under TaskToolName. Each loop gets its
// own TaskTool instance bound to its own registry view and depth, so
// nested spawns see the right filtered parent and the right depth count.
type TaskTool struct {
	runner   *Runner
	registry registry.Lookup
	history  HistorySnapshot
	depth    int
	agentID  string
	hooks    *hooks.Registry
	callback Callback
}

// NewTaskTool builds the task tool for one agent loop. registryView is
// that loop's own registry (root or already filtered); depth is how many
// task-tool spawns already led to this loop (0 for the root loop).
func NewTaskTool(runner *Runner, registryView registry.Lookup, history HistorySnapshot, depth int, agentID string, hookRegistry *hooks.Registry, callback Callback) *TaskTool {
	return &TaskTool{
		runner:   runner,
		registry: registryView,
		history:  history,
		depth:    depth,
		agentID:  agentID,
		hooks:    hookRegistry,
		callback: callback,
	}
}

func (t *TaskTool) Name() string            { return TaskToolName }
func (t *TaskTool) Description() string     { return "Spawn a subagent of the given agent_type to work on prompt, returning its final answer." }
func (t *TaskTool) Schema() json.RawMessage { return taskSchema }

// Execute resolves and runs the subagent, reporting any failure (unknown
// agent type, depth exceeded, or a loop failure) through the tool result
// channel rather than the error return, per the tool contract.
func (t *TaskTool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	var in taskInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &tool.Result{Content: fmt.Sprintf("invalid task input: %v", err), IsError: true}, nil
	}

	var history []provider.Message
	if def, ok := t.runner.defs.Get(in.AgentType); ok && def.ForkContext && t.history != nil {
		history = t.history()
	}

	result, err := t.runner.Run(ctx, Request{
		AgentType:         in.AgentType,
		Prompt:            in.Prompt,
		ParentRegistry:    t.registry,
		ParentHistory:     history,
		Depth:             t.depth,
		RequesterAgentID:  t.agentID,
		ParentHooks:       t.hooks,
		Callback:          t.callback,
	})
	if err != nil {
		return &tool.Result{Content: err.Error(), IsError: true}, nil
	}

	return &tool.Result{Content: result.FinalText}, nil
}
