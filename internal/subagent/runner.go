package subagent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agentbridge/core/internal/agent"
	"github.com/agentbridge/core/internal/hooks"
	"github.com/agentbridge/core/internal/policy"
	"github.com/agentbridge/core/internal/ratelimit"
	"github.com/agentbridge/core/internal/registry"
	"github.com/agentbridge/core/pkg/provider"
)

// DefaultMaxDepth is the number of nested task-tool spawns permitted before
// Run refuses with ErrMaxDepthExceeded, per spec §4.9.
const DefaultMaxDepth = 3

// Callback surfaces a running subagent's progress to the host, tagged by
// agent id, mirroring the bridge's ChatCallback shape for the top-level
// loop (see internal/bridge.SubagentCallback).
type Callback interface {
	OnTextDelta(agentID, text string)
	OnToolUse(agentID, name, inputJSON string)
	OnToolResult(agentID, content string, isError bool)
	OnComplete(agentID string, result Result)
	OnError(agentID string, err error)
}

// NopCallback implements Callback with no-ops, for callers that don't need
// subagent progress events.
type NopCallback struct{}

func (NopCallback) OnTextDelta(string, string)          {}
func (NopCallback) OnToolUse(string, string, string)    {}
func (NopCallback) OnToolResult(string, string, bool)   {}
func (NopCallback) OnComplete(string, Result)            {}
func (NopCallback) OnError(string, error)                {}

// RunnerConfig wires the shared dependencies every spawned subagent's loop
// needs.
type RunnerConfig struct {
	Provider    provider.Provider
	Policy      *policy.Policy
	RateLimiter *ratelimit.Limiter
	MaxDepth    int // 0 selects DefaultMaxDepth
	Logger      *slog.Logger
}

// Runner spawns child agent loops against filtered registry views. It is
// shared across a workspace; each Run call is independent and safe for
// concurrent use.
type Runner struct {
	defs   *DefinitionRegistry
	prov   provider.Provider
	pol    *policy.Policy
	rl     *ratelimit.Limiter
	depth  int
	logger *slog.Logger
	tracker *Tracker
}

// NewRunner constructs a Runner bound to defs. A nil tracker disables run
// bookkeeping.
func NewRunner(defs *DefinitionRegistry, cfg RunnerConfig, tracker *Tracker) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	return &Runner{
		defs:    defs,
		prov:    cfg.Provider,
		pol:     cfg.Policy,
		rl:      cfg.RateLimiter,
		depth:   depth,
		logger:  logger,
		tracker: tracker,
	}
}

// Request describes one subagent spawn.
type Request struct {
	AgentType string
	Prompt    string

	// ParentRegistry is the calling loop's own (possibly already filtered)
	// registry, from which the child's FilteredRegistry is projected.
	ParentRegistry registry.Lookup

	// ParentHistory is a snapshot of the calling loop's message history,
	// used to seed the child's history only when the definition sets
	// ForkContext.
	ParentHistory []provider.Message

	// Depth is the current spawn depth (0 for a top-level call made
	// directly by the root agent loop's task tool).
	Depth int

	// RequesterAgentID tags SubagentStart/SubagentComplete hook events
	// fired on ParentHooks, if set.
	RequesterAgentID string

	// ParentHooks, if set, receives SubagentStart/SubagentComplete events
	// around the child run.
	ParentHooks *hooks.Registry

	Callback Callback
}

// Run resolves def, builds a filtered registry and seed history, and
// drives a child agent.Loop to completion, returning its aggregated
// result.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Depth >= r.depth {
		return nil, fmt.Errorf("%w: depth %d >= limit %d", ErrMaxDepthExceeded, req.Depth, r.depth)
	}

	def, ok := r.defs.Get(req.AgentType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, req.AgentType)
	}

	denied := def.DeniedTools
	if !def.AllowRecursion {
		denied = append(append([]string{}, denied...), TaskToolName)
	}
	childRegistry := NewFilteredRegistry(req.ParentRegistry, def.AllowedTools, denied)

	history := buildInitialHistory(def, req.ParentHistory)

	agentID := uuid.NewString()
	callback := req.Callback
	if callback == nil {
		callback = NopCallback{}
	}

	childHooks := hooks.New(r.logger)
	childHooks.Register(callbackHandler{agentID: agentID, cb: callback})

	// System is left unset here: def.SystemPrompt already leads history as
	// a RoleSystem message above, and buildRequest folds any such message
	// into the provider request's System field, so setting it here too
	// would send it twice.
	loop := agent.New(r.prov, childRegistry, agent.Config{
		MaxIterations: def.MaxIterations,
		Model:         def.Model,
		Streaming:     def.Streaming,
		RateLimiter:   r.rl,
		Hooks:         childHooks,
		Policy:        r.pol,
	}, r.logger)

	if req.ParentHooks != nil {
		req.ParentHooks.Dispatch(ctx, hooks.Event{
			Kind:      hooks.EventSubagentStart,
			AgentType: req.AgentType,
			AgentID:   agentID,
		})
	}

	if r.tracker != nil {
		r.tracker.Start(agentID, req.RequesterAgentID, req.AgentType, req.Prompt)
	}

	loopResult, err := loop.Run(ctx, history, req.Prompt)
	if err != nil {
		callback.OnError(agentID, err)
		if r.tracker != nil {
			r.tracker.Fail(agentID, err)
		}
		if req.ParentHooks != nil {
			req.ParentHooks.Dispatch(ctx, hooks.Event{
				Kind:      hooks.EventSubagentComplete,
				AgentType: req.AgentType,
				AgentID:   agentID,
				Text:      err.Error(),
			})
		}
		return nil, err
	}

	result := &Result{
		AgentID:      agentID,
		AgentType:    req.AgentType,
		FinalText:    loopResult.FinalText,
		ToolUseCount: loopResult.ToolUseCount,
		InputTokens:  loopResult.Usage.InputTokens,
		OutputTokens: loopResult.Usage.OutputTokens,
		Completed:    loopResult.StopReason == provider.StopEndTurn,
	}

	callback.OnComplete(agentID, *result)
	if r.tracker != nil {
		r.tracker.Complete(agentID, *result)
	}
	if req.ParentHooks != nil {
		req.ParentHooks.Dispatch(ctx, hooks.Event{
			Kind:      hooks.EventSubagentComplete,
			AgentType: req.AgentType,
			AgentID:   agentID,
			Text:      result.FinalText,
		})
	}

	return result, nil
}

// buildInitialHistory constructs the seed history for a child run per
// spec.md §4.9 step 3: the definition's system_prompt always leads as a
// RoleSystem message, with the parent's history snapshot spliced in after
// it only when ForkContext is set. For fork_context=false this produces
// exactly [system, user(task_prompt)] once Run appends the task prompt.
func buildInitialHistory(def Definition, parentHistory []provider.Message) []provider.Message {
	history := []provider.Message{{
		Role:    provider.RoleSystem,
		Content: []provider.ContentBlock{provider.TextBlock(def.SystemPrompt)},
	}}
	if def.ForkContext {
		history = append(history, parentHistory...)
	}
	return history
}

// callbackHandler adapts a Callback to hooks.Handler so the child loop's
// existing hook-dispatch points (StreamDelta, PreToolUse, PostToolUse)
// drive the host-facing Callback without the agent loop itself knowing
// about subagents. OnComplete and OnError are called by Run directly.
type callbackHandler struct {
	agentID string
	cb      Callback
}

func (h callbackHandler) Handle(ctx context.Context, e hooks.Event) hooks.Response {
	switch e.Kind {
	case hooks.EventStreamDelta:
		h.cb.OnTextDelta(h.agentID, e.TextDelta)
	case hooks.EventPreToolUse:
		h.cb.OnToolUse(h.agentID, e.ToolName, e.ToolInput)
	case hooks.EventPostToolUse:
		h.cb.OnToolResult(h.agentID, e.ToolResult, e.ToolIsErr)
	}
	return hooks.Continue
}
