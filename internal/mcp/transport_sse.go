package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/http2"
)

// SSETransport speaks MCP over a Server-Sent Events stream for inbound
// messages and a companion POST endpoint for outbound ones.
type SSETransport struct {
	cfg    SSEConfig
	logger *slog.Logger
	client *http.Client

	frames chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSSETransport constructs an SSE transport. The stream is not opened
// until Connect.
func NewSSETransport(cfg SSEConfig, logger *slog.Logger) *SSETransport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PostURL == "" {
		cfg.PostURL = cfg.URL
	}
	transport := &http.Transport{}
	// SSE streams are long-lived; multiplexing them over one HTTP/2
	// connection avoids pinning a TCP connection per idle event stream.
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.Warn("sse transport: http2 configuration failed, falling back to http/1.1", "error", err)
	}
	return &SSETransport{
		cfg:    cfg,
		logger: logger.With("mcp_transport", "sse", "url", cfg.URL),
		client: &http.Client{
			Transport: transport,
		},
		frames: make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (t *SSETransport) Connect(ctx context.Context) error {
	if t.cfg.URL == "" {
		return fmt.Errorf("%w: sse transport requires a url", ErrTransport)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: build sse request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: open sse stream: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("%w: sse stream returned status %d", ErrTransport, resp.StatusCode)
	}

	go t.readEvents(resp.Body)
	return nil
}

// readEvents parses "data:"-framed SSE events, one JSON message per event,
// terminated by a blank line.
func (t *SSETransport) readEvents(body io.ReadCloser) {
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var buf bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimPrefix(line, "data:")
			payload = strings.TrimPrefix(payload, " ")
			buf.WriteString(payload)
		case line == "":
			if buf.Len() > 0 {
				frame := make([]byte, buf.Len())
				copy(frame, buf.Bytes())
				select {
				case t.frames <- frame:
				case <-t.closed:
					return
				}
				buf.Reset()
			}
		}
	}
}

func (t *SSETransport) Send(ctx context.Context, frame []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.PostURL, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("%w: build post request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post request: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: post returned status %d", ErrTransport, resp.StatusCode)
	}
	return nil
}

func (t *SSETransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, ErrClosed
	case f := <-t.frames:
		return f, nil
	}
}

func (t *SSETransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
	})
	return nil
}
