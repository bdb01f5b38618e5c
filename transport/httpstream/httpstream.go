// Package httpstream implements the HTTP Streamable transport (§4.3, §6):
// JSON-RPC requests go out as POST bodies; responses return either inline
// in the POST body or pushed later over an SSE stream keyed by the
// mcp-session-id header. Grounded on the donor's
// internal/mcp/streamable_http_transport.go.
package httpstream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/flowmcp/mcpcore/capability"
	"github.com/flowmcp/mcpcore/transport"
)

// MaxSSEEventSize bounds a single SSE event, preventing unbounded buffering
// across partial reads (§9, generator-style SSE streaming note).
const MaxSSEEventSize = 1024 * 1024

// DefaultConnectTimeout bounds header/TLS handshake waits; it never bounds
// a long-lived SSE body.
const DefaultConnectTimeout = 30 * time.Second

// Config configures a client-side Transport.
type Config struct {
	// URL is the MCP server's /mcp endpoint.
	URL string

	// BearerTokenProvider resolves a bearer token per request. The core
	// treats the result as opaque transport metadata (§3, Non-goals); it
	// never interprets it.
	BearerTokenProvider func(context.Context) (string, error)

	Headers map[string]string
	Client  *http.Client
}

// Transport implements transport.Transport over HTTP POST + SSE.
type Transport struct {
	cfg       Config
	rpcClient *http.Client

	mu                sync.Mutex
	sessionID         string
	negotiatedVersion string
	closed            bool

	msgQueue chan transport.Message
	done     chan struct{}
}

// New constructs a client Transport. It does not dial until the first Send.
func New(cfg Config) *Transport {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{
		cfg:       cfg,
		rpcClient: cloneClient(client),
		msgQueue:  make(chan transport.Message, 100),
		done:      make(chan struct{}),
	}
}

func (t *Transport) Send(ctx context.Context, msg transport.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.NewError(transport.KindNotConnected, "transport closed", nil)
	}
	sessionID := t.sessionID
	negotiated := t.negotiatedVersion
	t.mu.Unlock()

	versions := capability.SupportedProtocolVersions
	if negotiated != "" {
		versions = []string{negotiated}
		for _, v := range capability.SupportedProtocolVersions {
			if v != negotiated {
				versions = append(versions, v)
			}
		}
	}

	var lastErr error
	for i, version := range versions {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(msg))
		if err != nil {
			return transport.NewError(transport.KindInvalidMessage, "build request", err)
		}
		if err := t.setHeaders(ctx, req, version, sessionID); err != nil {
			return transport.NewError(transport.KindConnectionFailed, "set headers", err)
		}

		resp, err := t.rpcClient.Do(req)
		if err != nil {
			return transport.NewError(transport.KindWriteFailed, "send request", err)
		}

		if resp.StatusCode == http.StatusBadRequest {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			if isVersionRejection(string(body)) && i < len(versions)-1 {
				lastErr = fmt.Errorf("version %s rejected: %s", version, body)
				continue
			}
			return transport.NewError(transport.KindProtocolViolation, fmt.Sprintf("request rejected: %s", body), nil)
		}

		if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
			t.mu.Lock()
			t.sessionID = sid
			t.mu.Unlock()
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			return transport.NewError(transport.KindConnectionFailed, fmt.Sprintf("%s: %s", resp.Status, body), nil)
		}

		t.mu.Lock()
		t.negotiatedVersion = version
		t.mu.Unlock()

		contentType := resp.Header.Get("Content-Type")
		defer resp.Body.Close()
		switch {
		case strings.HasPrefix(contentType, "text/event-stream"):
			return t.drainSSE(ctx, resp.Body)
		case strings.HasPrefix(contentType, "application/json"):
			return t.drainJSON(ctx, resp.Body)
		default:
			return nil
		}
	}

	if lastErr != nil {
		return transport.NewError(transport.KindProtocolViolation, "all protocol versions rejected", lastErr)
	}
	return transport.NewError(transport.KindProtocolViolation, "no protocol versions to try", nil)
}

func (t *Transport) drainSSE(ctx context.Context, body io.Reader) error {
	scanner := newSSEScanner(body, MaxSSEEventSize)
	for {
		event, err := scanner.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return transport.NewError(transport.KindReadFailed, "read SSE stream", err)
		}
		if len(event.Data) == 0 || (event.Event != "" && event.Event != "message") {
			continue
		}
		select {
		case <-t.done:
			return transport.NewError(transport.KindConnectionClosed, "transport closed", nil)
		case t.msgQueue <- event.Data:
		case <-ctx.Done():
			return transport.NewError(transport.KindTimeout, "send cancelled", ctx.Err())
		}
	}
}

func (t *Transport) drainJSON(ctx context.Context, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return transport.NewError(transport.KindReadFailed, "read response", err)
	}
	if len(data) == 0 {
		return nil
	}
	select {
	case <-t.done:
		return transport.NewError(transport.KindConnectionClosed, "transport closed", nil)
	case t.msgQueue <- data:
		return nil
	case <-ctx.Done():
		return transport.NewError(transport.KindTimeout, "send cancelled", ctx.Err())
	}
}

func (t *Transport) Receive(ctx context.Context) (transport.Message, error) {
	select {
	case msg, ok := <-t.msgQueue:
		if !ok {
			return nil, nil
		}
		return msg, nil
	case <-t.done:
		return nil, nil
	case <-ctx.Done():
		return nil, transport.NewError(transport.KindTimeout, "receive cancelled", ctx.Err())
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	close(t.done)
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *Transport) Metadata() transport.Metadata {
	t.mu.Lock()
	defer t.mu.Unlock()
	return transport.Metadata{
		Kind:      "http-stream",
		SessionID: t.sessionID,
		Extra:     map[string]string{"protocolVersion": t.negotiatedVersion},
	}
}

func (t *Transport) setHeaders(ctx context.Context, req *http.Request, version, sessionID string) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("mcp-protocol-version", version)
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}
	if t.cfg.BearerTokenProvider != nil {
		token, err := t.cfg.BearerTokenProvider(ctx)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

func isVersionRejection(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "protocol-version") || strings.Contains(lower, "protocolversion") ||
		(strings.Contains(lower, "unsupported") && strings.Contains(lower, "version"))
}

// sseEvent is a single parsed Server-Sent Event frame.
type sseEvent struct {
	ID    string
	Event string
	Data  []byte
}

// sseScanner is a lazy pull-parser over an SSE byte stream: it handles
// partial events across read boundaries and never buffers past maxSize
// (§9, generator-style SSE streaming).
type sseScanner struct {
	reader  *bufio.Reader
	maxSize int
	size    int
}

func newSSEScanner(r io.Reader, maxSize int) *sseScanner {
	return &sseScanner{reader: bufio.NewReader(r), maxSize: maxSize}
}

func (s *sseScanner) Next() (*sseEvent, error) {
	event := &sseEvent{}
	var dataLines [][]byte
	s.size = 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				event.Data = bytes.Join(dataLines, []byte("\n"))
				return event, nil
			}
			return nil, err
		}

		s.size += len(line)
		if s.size > s.maxSize {
			return nil, fmt.Errorf("sse event exceeds max size of %d bytes", s.maxSize)
		}

		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))

		if len(line) == 0 {
			if len(dataLines) > 0 || event.ID != "" || event.Event != "" {
				event.Data = bytes.Join(dataLines, []byte("\n"))
				return event, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
		switch string(field) {
		case "id":
			event.ID = string(value)
		case "event":
			event.Event = string(value)
		case "data":
			dataLines = append(dataLines, value)
		}
	}
}

func cloneClient(base *http.Client) *http.Client {
	c := &http.Client{}
	*c = *base
	c.Timeout = 0
	if t, ok := c.Transport.(*http.Transport); ok {
		tt := t.Clone()
		if tt.ResponseHeaderTimeout == 0 {
			tt.ResponseHeaderTimeout = DefaultConnectTimeout
		}
		c.Transport = tt
	} else if c.Transport == nil {
		c.Transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: DefaultConnectTimeout,
		}
	}
	return c
}
