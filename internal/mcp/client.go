package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout is the per-request deadline used when a call's context
// carries no earlier deadline.
const DefaultTimeout = 30 * time.Second

// state is the McpClient state machine:
//
//	Unconnected -> Initializing -> Ready <-> (Calling | Listing) -> Closed
type state int

const (
	stateUnconnected state = iota
	stateInitializing
	stateReady
	stateClosed
)

// Client is an MCP client bound to a single transport. One background
// reader goroutine drains the transport and dispatches inbound frames to
// the one-shot reply sink registered in pending, or to the notification
// channel for messages with no id.
type Client struct {
	transport Transport
	logger    *slog.Logger
	timeout   time.Duration

	mu         sync.Mutex
	st         state
	tools      []ToolInfo
	serverCaps json.RawMessage
	serverInfo ServerInfo

	pendingMu sync.Mutex
	pending   map[uint64]chan *Response
	nextID    atomic.Uint64

	notifications chan *Notification
	done          chan struct{}
}

// NewClient wraps a transport that has not yet been connected.
func NewClient(transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport:     transport,
		logger:        logger,
		timeout:       DefaultTimeout,
		pending:       make(map[uint64]chan *Response),
		notifications: make(chan *Notification, 32),
		done:          make(chan struct{}),
	}
}

// Notifications returns the channel of server-initiated notifications
// (messages with no id), such as progress or log events.
func (c *Client) Notifications() <-chan *Notification {
	return c.notifications
}

// Initialize performs the MCP handshake: sends "initialize", awaits the
// response, then fires the "notifications/initialized" notification. It
// must be called exactly once; subsequent calls fail with
// ErrAlreadyInitialized.
func (c *Client) Initialize(ctx context.Context, clientName, clientVersion string) error {
	c.mu.Lock()
	if c.st != stateUnconnected {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.st = stateInitializing
	c.mu.Unlock()

	if err := c.transport.Connect(ctx); err != nil {
		c.mu.Lock()
		c.st = stateUnconnected
		c.mu.Unlock()
		return err
	}

	go c.readLoop()

	params, err := json.Marshal(initializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      clientInfo{Name: clientName, Version: clientVersion},
	})
	if err != nil {
		return fmt.Errorf("%w: marshal initialize params: %v", ErrProtocol, err)
	}

	raw, err := c.call(ctx, "initialize", params)
	if err != nil {
		c.mu.Lock()
		c.st = stateUnconnected
		c.mu.Unlock()
		return err
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("%w: parse initialize result: %v", ErrProtocol, err)
	}

	if err := c.notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	c.mu.Lock()
	c.serverCaps = result.Capabilities
	c.serverInfo = result.ServerInfo
	c.st = stateReady
	c.mu.Unlock()
	return nil
}

// ServerCapabilities returns the server's declared capabilities object from
// the initialize response, or nil if Initialize has not completed.
func (c *Client) ServerCapabilities() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverCaps
}

// ServerInfo returns the server's name/version from the initialize
// response, or the zero value if Initialize has not completed.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// ListTools sends tools/list and caches the result.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if err := c.requireReady(); err != nil {
		return nil, err
	}

	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: parse tools/list result: %v", ErrProtocol, err)
	}

	c.mu.Lock()
	c.tools = result.Tools
	c.mu.Unlock()
	return result.Tools, nil
}

// Tools returns the most recently cached tool list (possibly nil if
// ListTools has not been called).
func (c *Client) Tools() []ToolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tools
}

// CallTool sends tools/call with the given arguments JSON and returns the
// deserialized result.
func (c *Client) CallTool(ctx context.Context, name string, argumentsJSON json.RawMessage) (*ToolResult, error) {
	if err := c.requireReady(); err != nil {
		return nil, err
	}

	params, err := json.Marshal(callToolParams{Name: name, Arguments: argumentsJSON})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal tools/call params: %v", ErrProtocol, err)
	}

	raw, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: parse tools/call result: %v", ErrProtocol, err)
	}
	return &result, nil
}

func (c *Client) requireReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.st {
	case stateClosed:
		return ErrClosed
	case stateUnconnected, stateInitializing:
		return ErrNotInitialized
	default:
		return nil
	}
}

// Shutdown transitions the client to Closed, fails every pending request
// with ErrClosed, and closes the transport. Double-shutdown is a no-op.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	if c.st == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.st = stateClosed
	c.mu.Unlock()

	close(c.done)

	// Waiting callers observe the closed done channel and return ErrClosed;
	// their reply sinks are only removed here.
	c.pendingMu.Lock()
	for id := range c.pending {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	return c.transport.Close()
}

// call sends a request with a fresh id and blocks for the matching
// response, honoring ctx's deadline or DefaultTimeout, whichever is
// sooner. On timeout the pending entry is removed before returning, so a
// later reply for the same id is silently discarded by readLoop.
func (c *Client) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	respCh := make(chan *Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	frame, err := json.Marshal(req)
	if err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("%w: marshal request: %v", ErrProtocol, err)
	}

	if err := c.transport.Send(ctx, frame); err != nil {
		c.removePending(id)
		return nil, err
	}

	deadline := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < deadline {
			deadline = until
		}
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case <-timer.C:
		c.removePending(id)
		return nil, ErrTimeout
	case <-c.done:
		c.removePending(id)
		return nil, ErrClosed
	}
}

func (c *Client) removePending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) notify(ctx context.Context, method string, params json.RawMessage) error {
	frame, err := json.Marshal(Notification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%w: marshal notification: %v", ErrProtocol, err)
	}
	return c.transport.Send(ctx, frame)
}

// readLoop owns the transport's receive side for the lifetime of the
// client. Every inbound frame is dispatched by id to the matching entry in
// pending; frames with no id are routed to notifications. On transport
// closure or I/O error it transitions the client to Closed and drains
// pending itself, per spec §4.5, rather than leaving in-flight calls to
// block until their timeout.
func (c *Client) readLoop() {
	ctx := context.Background()
	for {
		frame, err := c.transport.Recv(ctx)
		if err != nil {
			c.closeOnReadError(err)
			return
		}
		c.dispatch(frame)
	}
}

// closeOnReadError transitions the client to Closed, fails every pending
// request, and closes the transport. A waiting caller receives either
// ErrClosed or an *RPCError whose message wraps ErrTransport and the read
// error, whichever of the two signals its select observes first. It is the
// reader-side counterpart to Shutdown; the two share the same
// closed-state gate so whichever runs first does the draining and the
// other becomes a no-op, matching the spec's "closed ⇒ pending is empty"
// invariant regardless of which side observes the failure first.
func (c *Client) closeOnReadError(err error) {
	c.mu.Lock()
	if c.st == stateClosed {
		c.mu.Unlock()
		return
	}
	c.st = stateClosed
	c.mu.Unlock()

	close(c.done)

	failErr := fmt.Errorf("%w: %v", ErrTransport, err)
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		ch <- &Response{ID: id, Error: &RPCError{Message: failErr.Error()}}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if cerr := c.transport.Close(); cerr != nil {
		c.logger.Warn("mcp: transport close after read error", "error", cerr)
	}
	c.logger.Warn("mcp: reader loop terminated", "error", err)
}

func (c *Client) dispatch(frame []byte) {
	var envelope struct {
		ID     json.Number `json:"id"`
		Method string      `json:"method"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		c.logger.Warn("mcp: dropping malformed frame", "error", err)
		return
	}

	if envelope.Method != "" && envelope.ID == "" {
		var n Notification
		if err := json.Unmarshal(frame, &n); err != nil {
			c.logger.Warn("mcp: dropping malformed notification", "error", err)
			return
		}
		select {
		case c.notifications <- &n:
		default:
			c.logger.Warn("mcp: notification channel full, dropping")
		}
		return
	}

	var raw rawResponse
	if err := json.Unmarshal(frame, &raw); err != nil {
		c.logger.Warn("mcp: dropping malformed response", "error", err)
		return
	}
	if raw.ID == "" {
		c.logger.Warn("mcp: response missing id, dropping")
		return
	}
	idStr := strings.TrimSpace(raw.ID.String())
	var id uint64
	if _, err := fmt.Sscan(idStr, &id); err != nil {
		c.logger.Warn("mcp: unparseable response id, dropping", "id", idStr)
		return
	}

	resp := &Response{JSONRPC: raw.JSONRPC, ID: id, Result: raw.Result, Error: raw.Error}

	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Warn("mcp: response for unknown id, dropping", "id", id)
		return
	}
	ch <- resp
}
