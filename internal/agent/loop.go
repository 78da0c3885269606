// Package agent implements the think-act loop: stream a completion from a
// provider, gate and execute any requested tool calls, stitch results back
// into the conversation, and repeat until the model stops asking for tools
// or the iteration bound is hit.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentbridge/core/internal/hooks"
	"github.com/agentbridge/core/internal/policy"
	"github.com/agentbridge/core/internal/ratelimit"
	"github.com/agentbridge/core/internal/registry"
	"github.com/agentbridge/core/pkg/provider"
)

// Config configures a Loop. New replaces a zero or negative MaxIterations
// or MaxTokens with NewConfig's value; every other field is used as given.
type Config struct {
	MaxIterations int
	MaxTokens     int
	Model         string
	System        string
	Streaming     bool

	RateLimiter *ratelimit.Limiter
	Hooks       *hooks.Registry
	Policy      *policy.Policy
}

// NewConfig returns a Config with default values. MaxIterations and
// MaxTokens are also the values the loop falls back to when a caller-supplied
// Config leaves them at zero; Streaming is not defaulted that way, so a
// Config with Streaming unset runs the one-shot path.
func NewConfig() Config {
	return Config{
		MaxIterations: 10,
		MaxTokens:     4096,
		Streaming:     true,
	}
}

func sanitize(cfg Config) Config {
	defaults := NewConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	return cfg
}

// Loop drives one conversation's think-act cycle against a single provider
// and tool registry.
type Loop struct {
	provider provider.Provider
	tools    registry.Lookup
	cfg      Config
	logger   *slog.Logger
}

// New constructs a Loop. tools may be nil, in which case the loop runs with
// no callable tools (every completion must end in end_turn).
func New(p provider.Provider, tools registry.Lookup, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{provider: p, tools: tools, cfg: sanitize(cfg), logger: logger}
}

// Result is the terminal outcome of one Run.
type Result struct {
	Messages     []provider.Message
	FinalText    string
	ToolUseCount int
	Usage        provider.Usage
	StopReason   provider.StopReason
}

// Run executes the loop starting from an existing message history plus one
// new user message, returning once the model produces a turn with no tool
// calls, the iteration bound is hit, or ctx is cancelled.
func (l *Loop) Run(ctx context.Context, history []provider.Message, userMessage string) (*Result, error) {
	if l.provider == nil {
		return nil, NewError(KindConfiguration, fmt.Errorf("no provider configured"))
	}

	messages := make([]provider.Message, len(history), len(history)+1)
	copy(messages, history)
	messages = append(messages, provider.Message{
		Role:    provider.RoleUser,
		Content: []provider.ContentBlock{provider.TextBlock(userMessage)},
	})

	if l.cfg.Hooks != nil {
		resp := l.cfg.Hooks.Dispatch(ctx, hooks.Event{Kind: hooks.EventUserMessage, Text: userMessage})
		if resp.Kind == hooks.ResponseBlock {
			return nil, NewError(KindPolicyDenied, fmt.Errorf("user message blocked by hook: %s", resp.Reason))
		}
	}

	result := &Result{Usage: provider.Usage{}}

	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return nil, NewError(KindCancelled, ctx.Err()).WithPhase(PhaseInit, iteration)
		default:
		}

		if l.cfg.RateLimiter != nil {
			if err := l.cfg.RateLimiter.Take(ctx, 1); err != nil {
				return nil, NewError(KindCancelled, err).WithPhase(PhaseRateLimit, iteration)
			}
		}

		req := l.buildRequest(messages)

		text, toolUses, usage, stopReason, err := l.complete(ctx, req)
		if err != nil {
			return nil, NewError(KindProvider, err).WithPhase(PhaseInit, iteration)
		}
		result.Usage.InputTokens += usage.InputTokens
		result.Usage.OutputTokens += usage.OutputTokens
		result.StopReason = stopReason

		if l.cfg.Hooks != nil {
			l.cfg.Hooks.Dispatch(ctx, hooks.Event{
				Kind:         hooks.EventStreamUsage,
				InputTokens:  usage.InputTokens,
				OutputTokens: usage.OutputTokens,
			})
		}

		assistantContent := make([]provider.ContentBlock, 0, len(toolUses)+1)
		if text != "" {
			assistantContent = append(assistantContent, provider.TextBlock(text))
		}
		for _, tu := range toolUses {
			assistantContent = append(assistantContent, provider.ToolUseBlock(tu.id, tu.name, tu.inputJSON))
		}
		messages = append(messages, provider.Message{Role: provider.RoleAssistant, Content: assistantContent})

		if len(toolUses) == 0 {
			result.FinalText = text
			result.Messages = messages
			if l.cfg.Hooks != nil {
				l.cfg.Hooks.Dispatch(ctx, hooks.Event{Kind: hooks.EventAgentComplete, Text: text})
			}
			return result, nil
		}

		toolResultBlocks := make([]provider.ContentBlock, 0, len(toolUses))
		for _, tu := range toolUses {
			block := l.runTool(ctx, tu, iteration)
			toolResultBlocks = append(toolResultBlocks, block)
			result.ToolUseCount++
		}
		messages = append(messages, provider.Message{Role: provider.RoleTool, Content: toolResultBlocks})
	}

	result.Messages = messages
	result.StopReason = provider.StopMaxTokens
	result.FinalText = fmt.Sprintf("[truncated: reached max iterations (%d) without an end_turn]", l.cfg.MaxIterations)
	return result, nil
}

type toolUse struct {
	id        string
	name      string
	inputJSON string
}

// buildRequest assembles a Request from history. A RoleSystem message in
// history (a subagent's definition prompt, prepended by the caller) is
// folded into the System field rather than sent as a wire message, since
// providers take the system prompt through their own dedicated channel, not
// as a message with that role.
func (l *Loop) buildRequest(messages []provider.Message) *provider.Request {
	system := l.cfg.System
	wire := make([]provider.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == provider.RoleSystem {
			for _, c := range m.Content {
				if c.Kind == provider.BlockText && c.Text != "" {
					if system != "" {
						system += "\n\n" + c.Text
					} else {
						system = c.Text
					}
				}
			}
			continue
		}
		wire = append(wire, m)
	}

	req := &provider.Request{
		Model:     l.cfg.Model,
		System:    system,
		Messages:  wire,
		MaxTokens: l.cfg.MaxTokens,
	}
	if l.tools != nil {
		req.Tools = l.tools.ListDefinitions()
	}
	return req
}

func (l *Loop) complete(ctx context.Context, req *provider.Request) (text string, toolUses []toolUse, usage provider.Usage, stopReason provider.StopReason, err error) {
	if !l.cfg.Streaming {
		resp, cerr := l.provider.CreateMessage(ctx, req)
		if cerr != nil {
			return "", nil, provider.Usage{}, "", cerr
		}
		var b strings.Builder
		for _, block := range resp.Content {
			switch block.Kind {
			case provider.BlockText:
				b.WriteString(block.Text)
			case provider.BlockToolUse:
				toolUses = append(toolUses, toolUse{id: block.ToolUseID, name: block.ToolName, inputJSON: block.ToolInputJSON})
			}
		}
		return b.String(), toolUses, resp.Usage, resp.StopReason, nil
	}

	events, serr := l.provider.CreateMessageStream(ctx, req)
	if serr != nil {
		return "", nil, provider.Usage{}, "", serr
	}

	var textBuilder strings.Builder
	pending := map[string]*toolUse{}
	var order []string

	for event := range events {
		switch event.Kind {
		case provider.EventTextDelta:
			textBuilder.WriteString(event.TextDelta)
			if l.cfg.Hooks != nil {
				l.cfg.Hooks.Dispatch(ctx, hooks.Event{Kind: hooks.EventStreamDelta, TextDelta: event.TextDelta})
			}
		case provider.EventToolUseStart:
			tu := &toolUse{id: event.ToolUseID, name: event.ToolName}
			pending[event.ToolUseID] = tu
			order = append(order, event.ToolUseID)
		case provider.EventToolUseDelta:
			if tu, ok := pending[event.ToolUseID]; ok {
				tu.inputJSON += event.ToolInputJSONDelta
			}
		case provider.EventUsage:
			usage.InputTokens += event.Usage.InputTokens
			usage.OutputTokens += event.Usage.OutputTokens
		case provider.EventMessageStop:
			stopReason = event.StopReason
		case provider.EventError:
			return "", nil, provider.Usage{}, "", event.Err
		}
	}

	for _, id := range order {
		toolUses = append(toolUses, *pending[id])
	}
	return textBuilder.String(), toolUses, usage, stopReason, nil
}

func (l *Loop) runTool(ctx context.Context, tu toolUse, iteration int) provider.ContentBlock {
	if l.tools == nil {
		return provider.ToolResultBlock(tu.id, fmt.Sprintf("unknown tool %q", tu.name), true)
	}
	t, ok := l.tools.Get(tu.name)
	if !ok {
		return provider.ToolResultBlock(tu.id, fmt.Sprintf("unknown tool %q", tu.name), true)
	}

	if l.cfg.Policy != nil {
		decision := l.cfg.Policy.Evaluate(tu.name, json.RawMessage(tu.inputJSON))
		if decision == policy.Deny {
			return provider.ToolResultBlock(tu.id, fmt.Sprintf("tool %q denied by policy", tu.name), true)
		}
	}

	if l.cfg.Hooks != nil {
		resp := l.cfg.Hooks.Dispatch(ctx, hooks.Event{Kind: hooks.EventPreToolUse, ToolName: tu.name, ToolInput: tu.inputJSON})
		switch resp.Kind {
		case hooks.ResponseBlock:
			return provider.ToolResultBlock(tu.id, fmt.Sprintf("blocked by hook: %s", resp.Reason), true)
		case hooks.ResponseTransform:
			tu.inputJSON = resp.Payload
		}
	}

	res, err := t.Execute(ctx, json.RawMessage(tu.inputJSON))
	if err != nil {
		return provider.ToolResultBlock(tu.id, err.Error(), true)
	}

	if l.cfg.Hooks != nil {
		resp := l.cfg.Hooks.Dispatch(ctx, hooks.Event{
			Kind:       hooks.EventPostToolUse,
			ToolName:   tu.name,
			ToolResult: res.Content,
			ToolIsErr:  res.IsError,
		})
		if resp.Kind == hooks.ResponseTransform {
			res.Content = resp.Payload
		}
	}

	return provider.ToolResultBlock(tu.id, res.Content, res.IsError)
}
