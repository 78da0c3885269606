// Package provider defines the unified LLM request/response/streaming
// contract the agent loop consumes. Concrete adapters (internal/provider/
// anthropic, internal/provider/openai) translate to and from their own
// wire formats; the loop never touches wire bytes.
package provider

import (
	"context"

	"github.com/agentbridge/core/pkg/tool"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// BlockKind tags the variant a ContentBlock holds.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockImage      BlockKind = "image"
)

// ContentBlock is a tagged union over a message's content. Exactly the
// fields matching Kind are meaningful.
type ContentBlock struct {
	Kind BlockKind

	// Text holds the payload for BlockText.
	Text string

	// ToolUseID, ToolName, and ToolInputJSON hold the payload for
	// BlockToolUse (an assistant requesting a tool call).
	ToolUseID     string
	ToolName      string
	ToolInputJSON string

	// ToolResultID and IsError hold the payload for BlockToolResult; Text
	// carries the result content in this case too.
	ToolResultID string
	IsError      bool

	// ImageData and ImageMime hold the payload for BlockImage.
	ImageData string
	ImageMime string
}

// TextBlock constructs a BlockText content block.
func TextBlock(text string) ContentBlock { return ContentBlock{Kind: BlockText, Text: text} }

// ToolUseBlock constructs a BlockToolUse content block.
func ToolUseBlock(id, name, inputJSON string) ContentBlock {
	return ContentBlock{Kind: BlockToolUse, ToolUseID: id, ToolName: name, ToolInputJSON: inputJSON}
}

// ToolResultBlock constructs a BlockToolResult content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Kind: BlockToolResult, ToolResultID: toolUseID, Text: content, IsError: isError}
}

// ImageBlock constructs a BlockImage content block.
func ImageBlock(data, mime string) ContentBlock {
	return ContentBlock{Kind: BlockImage, ImageData: data, ImageMime: mime}
}

// Message is one append-only entry in a conversation.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// StopReason explains why a completion ended.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopToolUse       StopReason = "tool_use"
	StopMaxTokens     StopReason = "max_tokens"
	StopStopSequence  StopReason = "stop_sequence"
)

// Usage reports token accounting for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Request carries everything a provider needs to produce one completion.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []tool.Definition
	System      string
	MaxTokens   int
	Temperature *float64
}

// Response is a one-shot completion result.
type Response struct {
	ID         string
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// StreamEventKind tags the variant a StreamEvent holds.
type StreamEventKind string

const (
	EventTextDelta    StreamEventKind = "text_delta"
	EventToolUseStart StreamEventKind = "tool_use_start"
	EventToolUseDelta StreamEventKind = "tool_use_delta"
	EventToolUseStop  StreamEventKind = "tool_use_stop"
	EventUsage        StreamEventKind = "usage"
	EventMessageStop  StreamEventKind = "message_stop"

	// EventError reports a mid-stream failure (a dropped connection, a
	// malformed SSE frame, a non-EOF Recv error). A provider that emits
	// this should close the event channel immediately afterward; the
	// agent loop surfaces Err as the CreateMessageStream round's error
	// instead of treating the stream as a clean end_turn.
	EventError StreamEventKind = "error"
)

// StreamEvent is one token-level event from a streamed completion.
// Ordering per content block is TextDelta* | (ToolUseStart ToolUseDelta*
// ToolUseStop), terminated eventually by MessageStop (or, on failure, by
// a single EventError event with no following MessageStop).
type StreamEvent struct {
	Kind StreamEventKind

	TextDelta string

	ToolUseID          string
	ToolName           string
	ToolInputJSONDelta string

	Usage Usage

	StopReason StopReason

	// Err holds the failure for an EventError event.
	Err error
}

// Model describes one model a provider exposes.
type Model struct {
	ID             string
	Name           string
	ContextSize    int
	SupportsVision bool
}

// Provider is the unified interface the agent loop consumes. Implementations
// must be safe for concurrent use.
type Provider interface {
	// CreateMessage performs a one-shot, non-streaming completion.
	CreateMessage(ctx context.Context, req *Request) (*Response, error)

	// CreateMessageStream performs a streaming completion; the returned
	// channel is closed when the stream ends or fails. An error opening the
	// stream is returned directly; a failure after the stream has started
	// is delivered as a final EventError event with no MessageStop.
	CreateMessageStream(ctx context.Context, req *Request) (<-chan StreamEvent, error)

	// Name returns the provider's stable identifier ("anthropic", "openai").
	Name() string

	// Models lists the models this provider exposes.
	Models() []Model

	// SupportsTools reports whether this provider can be given tool
	// definitions and emit tool-use content blocks.
	SupportsTools() bool
}
