// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// pkg/provider.Provider contract.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentbridge/core/internal/provider/providerutil"
	"github.com/agentbridge/core/pkg/provider"
	"github.com/agentbridge/core/pkg/tool"
)

// Config configures a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// Provider implements provider.Provider against the Anthropic Messages API.
type Provider struct {
	providerutil.Base
	client       anthropic.Client
	defaultModel string
}

// New constructs a Provider. It returns an error if no API key is
// supplied, matching the environment-variable contract in
// §6 (ANTHROPIC_API_KEY absence yields an initialization error).
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		Base:         providerutil.NewBase(cfg.MaxRetries, cfg.RetryDelay),
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *Provider) Name() string        { return "anthropic" }
func (p *Provider) SupportsTools() bool { return true }

func (p *Provider) Models() []provider.Model {
	return []provider.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextSize: 200000, SupportsVision: true},
	}
}

func (p *Provider) model(req *provider.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *Provider) CreateMessage(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	params := p.buildParams(req)

	var msg *anthropic.Message
	err := p.Retry(ctx, isRetryable, func() error {
		var callErr error
		msg, callErr = p.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: create message: %w", err)
	}

	return convertResponse(msg), nil
}

func (p *Provider) CreateMessageStream(ctx context.Context, req *provider.Request) (<-chan provider.StreamEvent, error) {
	params := p.buildParams(req)
	events := make(chan provider.StreamEvent, 16)

	go func() {
		defer close(events)

		stream := p.client.Messages.NewStreaming(ctx, params)
		var toolInputBuilder strings.Builder
		inToolUse := false
		var currentToolID, currentToolName string
		stopReason := provider.StopEndTurn

		for stream.Next() {
			event := stream.Current()

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if tu, ok := variant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					inToolUse = true
					currentToolID = tu.ID
					currentToolName = tu.Name
					toolInputBuilder.Reset()
					events <- provider.StreamEvent{Kind: provider.EventToolUseStart, ToolUseID: currentToolID, ToolName: currentToolName}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					events <- provider.StreamEvent{Kind: provider.EventTextDelta, TextDelta: delta.Text}
				case anthropic.InputJSONDelta:
					if inToolUse {
						toolInputBuilder.WriteString(delta.PartialJSON)
						events <- provider.StreamEvent{
							Kind:               provider.EventToolUseDelta,
							ToolUseID:          currentToolID,
							ToolInputJSONDelta: delta.PartialJSON,
						}
					}
				}
			case anthropic.ContentBlockStopEvent:
				if inToolUse {
					events <- provider.StreamEvent{Kind: provider.EventToolUseStop, ToolUseID: currentToolID}
					inToolUse = false
				}
			case anthropic.MessageDeltaEvent:
				if variant.Delta.StopReason != "" {
					stopReason = mapStopReason(variant.Delta.StopReason)
				}
				events <- provider.StreamEvent{
					Kind:  provider.EventUsage,
					Usage: provider.Usage{OutputTokens: int(variant.Usage.OutputTokens)},
				}
			case anthropic.MessageStopEvent:
				events <- provider.StreamEvent{Kind: provider.EventMessageStop, StopReason: stopReason}
			}
		}

		if err := stream.Err(); err != nil {
			events <- provider.StreamEvent{Kind: provider.EventError, Err: fmt.Errorf("anthropic: stream: %w", err)}
		}
	}()

	return events, nil
}

func (p *Provider) buildParams(req *provider.Request) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req)),
		MaxTokens: maxTokens,
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params
}

func convertMessages(messages []provider.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, c := range m.Content {
			switch c.Kind {
			case provider.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(c.Text))
			case provider.BlockToolUse:
				var input any
				json.Unmarshal([]byte(c.ToolInputJSON), &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ToolUseID, input, c.ToolName))
			case provider.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(c.ToolResultID, c.Text, c.IsError))
			case provider.BlockImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(c.ImageMime, c.ImageData))
			}
		}

		switch m.Role {
		case provider.RoleUser, provider.RoleTool:
			out = append(out, anthropic.NewUserMessage(blocks...))
		default:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}

func convertTools(defs []tool.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema anthropic.ToolInputSchemaParam
		json.Unmarshal(d.Schema, &schema)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func convertResponse(msg *anthropic.Message) *provider.Response {
	resp := &provider.Response{
		ID:    msg.ID,
		Usage: provider.Usage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)},
	}

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content = append(resp.Content, provider.TextBlock(b.Text))
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(b.Input)
			resp.Content = append(resp.Content, provider.ToolUseBlock(b.ID, b.Name, string(inputJSON)))
		}
	}

	resp.StopReason = mapStopReason(msg.StopReason)
	return resp
}

// mapStopReason translates the SDK's stop-reason enum to the provider
// contract's, shared by the one-shot and streaming paths so a streamed
// turn's MessageDeltaEvent.Delta.StopReason maps identically to
// CreateMessage's Message.StopReason.
func mapStopReason(sr anthropic.StopReason) provider.StopReason {
	switch sr {
	case anthropic.StopReasonToolUse:
		return provider.StopToolUse
	case anthropic.StopReasonMaxTokens:
		return provider.StopMaxTokens
	case anthropic.StopReasonStopSequence:
		return provider.StopStopSequence
	default:
		return provider.StopEndTurn
	}
}
