// Package openai adapts github.com/sashabaranov/go-openai to the
// pkg/provider.Provider contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

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

// Provider implements provider.Provider against the OpenAI Chat Completions
// API.
type Provider struct {
	providerutil.Base
	client       *openai.Client
	defaultModel string
}

// New constructs a Provider. It returns an error if no API key is
// supplied, matching the environment-variable contract in §6
// (OPENAI_API_KEY absence yields an initialization error).
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		Base:         providerutil.NewBase(cfg.MaxRetries, cfg.RetryDelay),
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *Provider) Name() string        { return "openai" }
func (p *Provider) SupportsTools() bool { return true }

func (p *Provider) Models() []provider.Model {
	return []provider.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextSize: 16385, SupportsVision: false},
		{ID: "gpt-4", Name: "GPT-4", ContextSize: 8192, SupportsVision: false},
	}
}

func (p *Provider) model(req *provider.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *Provider) buildRequest(req *provider.Request, stream bool) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req),
		Messages: convertMessages(req.Messages, req.System),
		Stream:   stream,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}
	return chatReq
}

func (p *Provider) CreateMessage(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	chatReq := p.buildRequest(req, false)

	var resp openai.ChatCompletionResponse
	err := p.Retry(ctx, isRetryable, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("openai: create chat completion: %w", err)
	}

	return convertResponse(resp), nil
}

func (p *Provider) CreateMessageStream(ctx context.Context, req *provider.Request) (<-chan provider.StreamEvent, error) {
	chatReq := p.buildRequest(req, true)

	var stream *openai.ChatCompletionStream
	err := p.Retry(ctx, isRetryable, func() error {
		var callErr error
		stream, callErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("openai: create chat completion stream: %w", err)
	}

	events := make(chan provider.StreamEvent, 16)
	go p.processStream(ctx, stream, events)
	return events, nil
}

type pendingToolCall struct {
	id     string
	name   string
	args   strings.Builder
	opened bool
}

func (p *Provider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- provider.StreamEvent) {
	defer close(events)
	defer stream.Close()

	toolCalls := make(map[int]*pendingToolCall)
	stopReason := provider.StopEndTurn

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.flushToolCalls(events, toolCalls)
				events <- provider.StreamEvent{Kind: provider.EventMessageStop, StopReason: stopReason}
			} else {
				events <- provider.StreamEvent{Kind: provider.EventError, Err: fmt.Errorf("openai: stream: %w", err)}
			}
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			stopReason = mapFinishReason(choice.FinishReason)
		}
		delta := choice.Delta

		if delta.Content != "" {
			events <- provider.StreamEvent{Kind: provider.EventTextDelta, TextDelta: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			pc, ok := toolCalls[index]
			if !ok {
				pc = &pendingToolCall{}
				toolCalls[index] = pc
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			if !pc.opened && pc.id != "" && pc.name != "" {
				pc.opened = true
				events <- provider.StreamEvent{Kind: provider.EventToolUseStart, ToolUseID: pc.id, ToolName: pc.name}
			}
			if tc.Function.Arguments != "" {
				pc.args.WriteString(tc.Function.Arguments)
				if pc.opened {
					events <- provider.StreamEvent{
						Kind:               provider.EventToolUseDelta,
						ToolUseID:          pc.id,
						ToolInputJSONDelta: tc.Function.Arguments,
					}
				}
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			p.flushToolCalls(events, toolCalls)
			toolCalls = make(map[int]*pendingToolCall)
		}

		if resp.Usage != nil {
			events <- provider.StreamEvent{
				Kind: provider.EventUsage,
				Usage: provider.Usage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
				},
			}
		}
	}
}

func (p *Provider) flushToolCalls(events chan<- provider.StreamEvent, toolCalls map[int]*pendingToolCall) {
	for _, pc := range toolCalls {
		if pc.opened {
			events <- provider.StreamEvent{Kind: provider.EventToolUseStop, ToolUseID: pc.id}
		}
	}
}

func convertMessages(messages []provider.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case provider.RoleUser, provider.RoleSystem:
			var text strings.Builder
			var imageParts []openai.ChatMessagePart
			for _, c := range msg.Content {
				switch c.Kind {
				case provider.BlockText:
					text.WriteString(c.Text)
				case provider.BlockImage:
					imageParts = append(imageParts, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:" + c.ImageMime + ";base64," + c.ImageData,
							Detail: openai.ImageURLDetailAuto,
						},
					})
				}
			}
			role := openai.ChatMessageRoleUser
			if msg.Role == provider.RoleSystem {
				role = openai.ChatMessageRoleSystem
			}
			if len(imageParts) > 0 {
				parts := imageParts
				if text.Len() > 0 {
					parts = append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text.String()}}, parts...)
				}
				result = append(result, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
			} else {
				result = append(result, openai.ChatCompletionMessage{Role: role, Content: text.String()})
			}

		case provider.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			var text strings.Builder
			for _, c := range msg.Content {
				switch c.Kind {
				case provider.BlockText:
					text.WriteString(c.Text)
				case provider.BlockToolUse:
					oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
						ID:   c.ToolUseID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      c.ToolName,
							Arguments: c.ToolInputJSON,
						},
					})
				}
			}
			oaiMsg.Content = text.String()
			result = append(result, oaiMsg)

		case provider.RoleTool:
			for _, c := range msg.Content {
				if c.Kind == provider.BlockToolResult {
					result = append(result, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    c.Text,
						ToolCallID: c.ToolResultID,
					})
				}
			}
		}
	}

	return result
}

func convertTools(defs []tool.Definition) []openai.Tool {
	result := make([]openai.Tool, len(defs))
	for i, d := range defs {
		var schema map[string]any
		if err := json.Unmarshal(d.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

func convertResponse(resp openai.ChatCompletionResponse) *provider.Response {
	out := &provider.Response{
		ID:         resp.ID,
		StopReason: provider.StopEndTurn,
		Usage: provider.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		out.Content = append(out.Content, provider.TextBlock(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Content = append(out.Content, provider.ToolUseBlock(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	if choice.FinishReason != "" {
		out.StopReason = mapFinishReason(choice.FinishReason)
	}
	return out
}

// mapFinishReason translates the SDK's finish-reason string to the
// provider contract's StopReason, shared by the one-shot and streaming
// paths.
func mapFinishReason(fr openai.FinishReason) provider.StopReason {
	switch fr {
	case openai.FinishReasonToolCalls:
		return provider.StopToolUse
	case openai.FinishReasonLength:
		return provider.StopMaxTokens
	case openai.FinishReasonStop:
		return provider.StopEndTurn
	default:
		return provider.StopEndTurn
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}
