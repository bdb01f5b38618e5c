// Package mcptest provides a configurable fake MCP server and pipe-based
// wiring for the rest of the module's own tests, grounded on the donor's
// internal/mcptest/fakeserver (delay/error/crash/malformed injection) and
// internal/mcp/client_test.go's io.Pipe-based testPipe()/runFakeServer()
// harness — adapted from raw NDJSON-over-io.Pipe to transport.Transport
// frames directly, since this module's transports operate on already-framed
// messages rather than owning their own line framing.
package mcptest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowmcp/mcpcore/jsonrpc"
	"github.com/flowmcp/mcpcore/transport"
)

// Tool is a minimal tools/list entry for fake responses.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

// Config controls the fake server's misbehavior for exercising the peer's
// edge-case handling.
type Config struct {
	// Tools is returned verbatim from tools/list.
	Tools []Tool

	// Delays sleeps the given duration before responding to a method.
	// Keep these short (10-50ms) to avoid a slow test suite.
	Delays map[string]time.Duration

	// Errors forces a JSON-RPC error response for a method.
	Errors map[string]*jsonrpc.Error

	// FailOnAttempt fails the Nth call (1-indexed) to a method, succeeding
	// otherwise — for exercising retry middleware.
	FailOnAttempt map[string]int

	// CrashOnMethod closes the transport instead of responding once this
	// method is received, simulating an abrupt peer death.
	CrashOnMethod string
	// CrashOnNthRequest closes the transport once this many requests have
	// been received in total. Zero disables it.
	CrashOnNthRequest int

	// SendNotificationBeforeResponse emits a harmless notification just
	// before every response, exercising interleaved-message handling.
	SendNotificationBeforeResponse bool
	// SendMismatchedIDFirst emits a response carrying a bogus id before
	// the real one, exercising the router's unknown-id log-and-drop path.
	SendMismatchedIDFirst bool

	// Malformed writes an unparseable frame instead of any response.
	Malformed bool

	// ToolHandler, if set, answers tools/call; otherwise tools/call
	// returns method-not-found.
	ToolHandler func(name string, arguments json.RawMessage) (result json.RawMessage, rpcErr *jsonrpc.Error)
}

// Serve drives t as a misbehaving MCP server until ctx is done, t is
// closed, or a crash condition fires. It understands "initialize",
// "notifications/initialized", "tools/list", and "tools/call"; anything
// else gets method-not-found unless overridden via Errors.
func Serve(ctx context.Context, t transport.Transport, cfg Config) error {
	requestCount := 0
	attempts := make(map[string]int)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := t.Receive(ctx)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}

		frame, err := jsonrpc.Decode(msg)
		if err != nil {
			continue
		}
		if frame.Kind == jsonrpc.KindNotification {
			continue
		}
		if frame.Kind != jsonrpc.KindRequest {
			continue
		}
		req := frame.AsRequest

		requestCount++
		attempts[req.Method]++

		if cfg.CrashOnNthRequest > 0 && requestCount >= cfg.CrashOnNthRequest {
			_ = t.Close()
			return fmt.Errorf("mcptest: simulated crash at request %d", requestCount)
		}
		if cfg.CrashOnMethod != "" && req.Method == cfg.CrashOnMethod {
			_ = t.Close()
			return fmt.Errorf("mcptest: simulated crash on method %s", req.Method)
		}

		if delay, ok := cfg.Delays[req.Method]; ok {
			time.Sleep(delay)
		}

		if cfg.Malformed {
			_ = t.Send(ctx, []byte("not valid json"))
			continue
		}

		if failAt, ok := cfg.FailOnAttempt[req.Method]; ok && attempts[req.Method] == failAt {
			sendError(ctx, t, cfg, req.ID, jsonrpc.ErrInternalError("simulated failure on attempt"))
			continue
		}

		if forced, ok := cfg.Errors[req.Method]; ok {
			sendError(ctx, t, cfg, req.ID, forced)
			continue
		}

		switch req.Method {
		case "initialize":
			result := map[string]any{
				"protocolVersion": "2025-06-18",
				"serverInfo":      map[string]string{"name": "mcptest-fake", "version": "0.0.0"},
				"capabilities":    map[string]any{"tools": map[string]any{}},
			}
			sendResult(ctx, t, cfg, req.ID, result)

		case "tools/list":
			tools := cfg.Tools
			if tools == nil {
				tools = []Tool{}
			}
			sendResult(ctx, t, cfg, req.ID, map[string]any{"tools": tools})

		case "tools/call":
			if cfg.ToolHandler == nil {
				sendError(ctx, t, cfg, req.ID, jsonrpc.ErrMethodNotFound(req.Method, nil))
				continue
			}
			var params struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			}
			_ = json.Unmarshal(req.Params, &params)
			result, rpcErr := cfg.ToolHandler(params.Name, params.Arguments)
			if rpcErr != nil {
				sendError(ctx, t, cfg, req.ID, rpcErr)
			} else {
				sendResultRaw(ctx, t, cfg, req.ID, result)
			}

		default:
			sendError(ctx, t, cfg, req.ID, jsonrpc.ErrMethodNotFound(req.Method, nil))
		}
	}
}

func noise(ctx context.Context, t transport.Transport) {
	note := &jsonrpc.Notification{Method: "mcptest/noise"}
	data, _ := jsonrpc.Encode(note)
	_ = t.Send(ctx, data)
}

func mismatchedIDFirst(ctx context.Context, t transport.Transport) {
	bogus := jsonrpc.NewResultResponse(jsonrpc.NewStringID("mcptest-bogus-id"), json.RawMessage(`{}`))
	data, _ := jsonrpc.Encode(bogus)
	_ = t.Send(ctx, data)
}

func sendResult(ctx context.Context, t transport.Transport, cfg Config, id jsonrpc.RequestID, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	sendResultRaw(ctx, t, cfg, id, raw)
}

func sendResultRaw(ctx context.Context, t transport.Transport, cfg Config, id jsonrpc.RequestID, result json.RawMessage) {
	if cfg.SendNotificationBeforeResponse {
		noise(ctx, t)
	}
	if cfg.SendMismatchedIDFirst {
		mismatchedIDFirst(ctx, t)
	}
	data, err := jsonrpc.Encode(jsonrpc.NewResultResponse(id, result))
	if err != nil {
		return
	}
	_ = t.Send(ctx, data)
}

func sendError(ctx context.Context, t transport.Transport, cfg Config, id jsonrpc.RequestID, rpcErr *jsonrpc.Error) {
	if cfg.SendNotificationBeforeResponse {
		noise(ctx, t)
	}
	if cfg.SendMismatchedIDFirst {
		mismatchedIDFirst(ctx, t)
	}
	data, err := jsonrpc.Encode(jsonrpc.NewErrorResponse(id, rpcErr))
	if err != nil {
		return
	}
	_ = t.Send(ctx, data)
}
