package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// HTTPTransport speaks MCP over streamable HTTP: outbound frames are
// POSTed to the configured URL, and inbound frames are read from a single
// long-polling GET connection to the same URL, one newline-delimited JSON
// object per chunk. Unlike SSETransport there is no separate event-stream
// endpoint or "data:" framing.
type HTTPTransport struct {
	cfg    HTTPConfig
	logger *slog.Logger
	client *http.Client

	frames chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewHTTPTransport constructs a streamable-HTTP transport. The long poll is
// not started until Connect.
func NewHTTPTransport(cfg HTTPConfig, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		cfg:    cfg,
		logger: logger.With("mcp_transport", "http", "url", cfg.URL, "poll_id", uuid.NewString()),
		client: &http.Client{Timeout: cfg.Timeout},
		frames: make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.cfg.URL == "" {
		return fmt.Errorf("%w: http transport requires a url", ErrTransport)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: build long-poll request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json, application/x-ndjson")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: open long-poll connection: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("%w: long-poll returned status %d", ErrTransport, resp.StatusCode)
	}

	go t.readChunks(resp.Body)
	return nil
}

// readChunks reads newline-delimited JSON frames from the long-poll
// response body as they arrive, pushing each complete frame to the
// buffered frames channel.
func (t *HTTPTransport) readChunks(body io.ReadCloser) {
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		select {
		case t.frames <- frame:
		case <-t.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Debug("http transport: long-poll read ended", "error", err)
	}
}

func (t *HTTPTransport) Send(ctx context.Context, frame []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(frame))
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

func (t *HTTPTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, ErrClosed
	case f := <-t.frames:
		return f, nil
	}
}

func (t *HTTPTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
	})
	return nil
}
