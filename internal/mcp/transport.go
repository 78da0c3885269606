package mcp

import "context"

// Transport is the byte-level capability set every MCP transport must
// provide: framed send/receive plus a single close. Message framing
// (newline-delimited JSON for stdio, "data:" event framing for SSE) is the
// transport's own concern; callers only see whole frames.
type Transport interface {
	// Connect establishes the underlying connection (spawning a subprocess
	// or opening an HTTP/SSE stream).
	Connect(ctx context.Context) error

	// Send writes one framed JSON message. It blocks until the write
	// completes; transports do not buffer beyond the single in-flight frame.
	Send(ctx context.Context, frame []byte) error

	// Recv returns the next complete inbound frame, blocking until one
	// arrives, the transport is closed, or ctx is cancelled.
	Recv(ctx context.Context) ([]byte, error)

	// Close shuts down the transport. Double-close is a no-op.
	Close() error
}
