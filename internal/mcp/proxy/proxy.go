// Package proxy adapts an MCP client's tools to the pkg/tool.Tool contract
// so the agent loop can call them exactly like a native tool.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/agentbridge/core/internal/mcp"
	"github.com/agentbridge/core/pkg/tool"
)

// ParseQualifiedName splits a qualified tool name of the form
// "{server}:{tool}" on the first ':' only, so that a remote tool name
// containing ':' survives intact. A name with no ':' is not an MCP-routed
// name; ok is false.
func ParseQualifiedName(qualified string) (server, name string, ok bool) {
	idx := strings.IndexByte(qualified, ':')
	if idx < 0 {
		return "", "", false
	}
	return qualified[:idx], qualified[idx+1:], true
}

// QualifiedName builds the proxy tool's registry name from a server and
// remote tool name.
func QualifiedName(server, name string) string {
	return server + ":" + name
}

// Tool adapts one MCP tool, identified by its qualified name, to
// pkg/tool.Tool. Execute acquires a shared lock on the owning client for
// the duration of the call.
type Tool struct {
	mu       *sync.Mutex
	client   *mcp.Client
	server   string
	info     mcp.ToolInfo
}

// New wraps one MCP tool. clientLock must be the same mutex shared across
// all proxy tools for this client, so concurrent calls against one
// connection serialize at the point the spec requires (a shared lock on
// the owning client), while the transport's own internal request
// correlation still allows multiple requests in flight.
func New(client *mcp.Client, clientLock *sync.Mutex, server string, info mcp.ToolInfo) *Tool {
	return &Tool{mu: clientLock, client: client, server: server, info: info}
}

func (t *Tool) Name() string            { return QualifiedName(t.server, t.info.Name) }
func (t *Tool) Description() string     { return t.info.Description }
func (t *Tool) Schema() json.RawMessage { return t.info.InputSchema }

// Execute invokes the underlying MCP tool and converts its content blocks
// to a single string: text blocks are concatenated, image blocks become
// the literal "[image]", all joined by newlines. Transport/protocol
// failures are reported through the result channel (IsError=true) rather
// than returned as an error, per the proxy's error-as-result contract.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*tool.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	result, err := t.client.CallTool(ctx, t.info.Name, params)
	if err != nil {
		return &tool.Result{
			Content: fmt.Sprintf("mcp call failed: %v", err),
			IsError: true,
		}, nil
	}

	var parts []string
	for _, block := range result.Content {
		switch block.Type {
		case "image":
			parts = append(parts, "[image]")
		default:
			parts = append(parts, block.Text)
		}
	}

	return &tool.Result{
		Content: strings.Join(parts, "\n"),
		IsError: result.IsError,
	}, nil
}
