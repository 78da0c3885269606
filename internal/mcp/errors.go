package mcp

import "errors"

// Sentinel errors forming the MCP error taxonomy. Transport and protocol
// failures are wrapped with fmt.Errorf("...: %w", ...) around these so
// callers can match with errors.Is while still seeing a descriptive message.
var (
	ErrClosed             = errors.New("mcp: client closed")
	ErrTimeout            = errors.New("mcp: request timed out")
	ErrAlreadyInitialized = errors.New("mcp: client already initialized")
	ErrNotInitialized     = errors.New("mcp: client not initialized")
	ErrProtocol           = errors.New("mcp: protocol violation")
	ErrTransport          = errors.New("mcp: transport error")
)
