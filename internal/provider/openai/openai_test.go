package openai

import (
	"encoding/json"
	"errors"
	"testing"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/agentbridge/core/pkg/provider"
	"github.com/agentbridge/core/pkg/tool"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestConvertMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []provider.Message
		system   string
		wantLen  int
	}{
		{
			name: "basic text messages",
			messages: []provider.Message{
				{Role: provider.RoleUser, Content: []provider.ContentBlock{provider.TextBlock("hello")}},
				{Role: provider.RoleAssistant, Content: []provider.ContentBlock{provider.TextBlock("hi there")}},
			},
			system:  "be helpful",
			wantLen: 3,
		},
		{
			name: "message with tool call",
			messages: []provider.Message{
				{Role: provider.RoleAssistant, Content: []provider.ContentBlock{
					provider.ToolUseBlock("call_1", "get_weather", `{"location":"NYC"}`),
				}},
			},
			wantLen: 1,
		},
		{
			name: "message with tool result",
			messages: []provider.Message{
				{Role: provider.RoleTool, Content: []provider.ContentBlock{
					provider.ToolResultBlock("call_1", "sunny, 72F", false),
				}},
			},
			wantLen: 1,
		},
		{
			name: "message with image attachment",
			messages: []provider.Message{
				{Role: provider.RoleUser, Content: []provider.ContentBlock{
					provider.TextBlock("what is this?"),
					provider.ImageBlock("base64data", "image/jpeg"),
				}},
			},
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertMessages(tt.messages, tt.system)
			if len(got) != tt.wantLen {
				t.Errorf("convertMessages() got %d messages, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestConvertTools(t *testing.T) {
	defs := []tool.Definition{
		{Name: "test_tool", Description: "a test tool", Schema: json.RawMessage(`{"type":"object","properties":{"arg":{"type":"string"}}}`)},
	}

	got := convertTools(defs)
	if len(got) != 1 {
		t.Fatalf("convertTools() got %d tools, want 1", len(got))
	}
	if got[0].Function.Name != "test_tool" {
		t.Errorf("Function.Name = %q, want test_tool", got[0].Function.Name)
	}
}

func TestIsRetryable(t *testing.T) {
	if isRetryable(nil) {
		t.Error("isRetryable(nil) = true, want false")
	}

	rateLimited := &openaisdk.APIError{HTTPStatusCode: 429, Message: "rate limit exceeded"}
	if !isRetryable(rateLimited) {
		t.Error("isRetryable(429) = false, want true")
	}

	serverErr := &openaisdk.APIError{HTTPStatusCode: 503, Message: "service unavailable"}
	if !isRetryable(serverErr) {
		t.Error("isRetryable(503) = false, want true")
	}

	badRequest := &openaisdk.APIError{HTTPStatusCode: 400, Message: "bad request"}
	if isRetryable(badRequest) {
		t.Error("isRetryable(400) = true, want false")
	}

	if !isRetryable(errors.New("request timeout")) {
		t.Error("isRetryable(timeout) = false, want true")
	}
}

func TestConvertResponse_ToolCalls(t *testing.T) {
	resp := openaisdk.ChatCompletionResponse{
		ID: "resp_1",
		Choices: []openaisdk.ChatCompletionChoice{
			{
				FinishReason: openaisdk.FinishReasonToolCalls,
				Message: openaisdk.ChatCompletionMessage{
					ToolCalls: []openaisdk.ToolCall{
						{ID: "call_1", Function: openaisdk.FunctionCall{Name: "get_weather", Arguments: `{"city":"NYC"}`}},
					},
				},
			},
		},
	}

	out := convertResponse(resp)
	if out.StopReason != provider.StopToolUse {
		t.Errorf("StopReason = %v, want StopToolUse", out.StopReason)
	}
	if len(out.Content) != 1 || out.Content[0].Kind != provider.BlockToolUse {
		t.Fatalf("Content = %+v, want one tool_use block", out.Content)
	}
}
