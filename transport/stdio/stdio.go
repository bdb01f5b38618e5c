// Package stdio implements the line-delimited (NDJSON) Transport over a
// pair of stdin/stdout-shaped pipes, grounded on the donor's
// internal/mcp/framing.go StdioTransport.
package stdio

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/flowmcp/mcpcore/jsonrpc"
	"github.com/flowmcp/mcpcore/transport"
)

// Transport implements transport.Transport over io.WriteCloser/io.ReadCloser
// halves using newline-delimited JSON framing, the standard for MCP stdio.
type Transport struct {
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	reader  *jsonrpc.LineReader
	maxSize int

	mu     sync.Mutex
	closed bool
}

// New wraps stdin/stdout with NDJSON framing, bounding each frame at
// maxSize bytes (0 uses jsonrpc.DefaultMaxMessageSize).
func New(stdin io.WriteCloser, stdout io.ReadCloser, maxSize int) *Transport {
	if maxSize <= 0 {
		maxSize = jsonrpc.DefaultMaxMessageSize
	}
	return &Transport{
		stdin:   stdin,
		stdout:  stdout,
		reader:  jsonrpc.NewLineReader(bufio.NewReader(stdout), maxSize),
		maxSize: maxSize,
	}
}

func (t *Transport) Send(ctx context.Context, msg transport.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transport.NewError(transport.KindNotConnected, "transport closed", nil)
	}
	if err := jsonrpc.CheckSize(msg, t.maxSize); err != nil {
		return transport.NewError(transport.KindMessageTooLarge, "message exceeds max size", err)
	}

	if _, err := t.stdin.Write(msg); err != nil {
		return transport.NewError(transport.KindWriteFailed, "write message", err)
	}
	if _, err := t.stdin.Write([]byte("\n")); err != nil {
		return transport.NewError(transport.KindWriteFailed, "write newline", err)
	}
	return nil
}

type readResult struct {
	line []byte
	err  error
}

// Receive reads the next NDJSON frame, respecting ctx cancellation by
// closing stdout to unblock the background read, mirroring the donor's
// goroutine-plus-select cancellation pattern.
func (t *Transport) Receive(ctx context.Context) (transport.Message, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.NewError(transport.KindNotConnected, "transport closed", nil)
	}
	t.mu.Unlock()

	resultCh := make(chan readResult, 1)
	go func() {
		line, err := t.reader.ReadFrame()
		resultCh <- readResult{line: line, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err == io.EOF {
			return nil, nil
		}
		if result.err == jsonrpc.ErrMessageTooLarge {
			return nil, transport.NewError(transport.KindMessageTooLarge, "frame exceeds max size", result.err)
		}
		if result.err != nil {
			return nil, transport.NewError(transport.KindReadFailed, "read line", result.err)
		}
		return result.line, nil

	case <-ctx.Done():
		_ = t.stdout.Close()
		return nil, transport.NewError(transport.KindTimeout, "receive cancelled", ctx.Err())
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var firstErr error
	if err := t.stdin.Close(); err != nil {
		firstErr = transport.NewError(transport.KindConnectionFailed, "close stdin", err)
	}
	if err := t.stdout.Close(); err != nil && firstErr == nil {
		firstErr = transport.NewError(transport.KindConnectionFailed, "close stdout", err)
	}
	return firstErr
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *Transport) Metadata() transport.Metadata {
	return transport.Metadata{Kind: "stdio"}
}
