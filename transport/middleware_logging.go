package transport

import (
	"context"
	"encoding/json"
	"log"
)

// LoggingConfig configures the logging middleware layer. LogPayloads is
// opt-in since payloads may carry sensitive tool arguments (§4.3).
type LoggingConfig struct {
	Logger      *log.Logger
	LogPayloads bool
}

type loggingEnvelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
}

// loggingTransport logs method/id for every frame that passes through,
// following the donor's `MCP Send`/`MCP Recv` DebugLogging toggle pattern
// (internal/mcp/framing.go) but structured per-field instead of the whole
// payload by default.
type loggingTransport struct {
	inner Transport
	cfg   LoggingConfig
}

// WithLogging layers method/id logging over inner.
func WithLogging(inner Transport, cfg LoggingConfig) Transport {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &loggingTransport{inner: inner, cfg: cfg}
}

func (t *loggingTransport) Send(ctx context.Context, msg Message) error {
	t.logFrame("send", msg)
	err := t.inner.Send(ctx, msg)
	if err != nil {
		t.cfg.Logger.Printf("mcp send error: %v", err)
	}
	return err
}

func (t *loggingTransport) Receive(ctx context.Context) (Message, error) {
	msg, err := t.inner.Receive(ctx)
	if err != nil {
		t.cfg.Logger.Printf("mcp recv error: %v", err)
		return msg, err
	}
	t.logFrame("recv", msg)
	return msg, nil
}

func (t *loggingTransport) logFrame(direction string, msg Message) {
	if t.cfg.LogPayloads {
		t.cfg.Logger.Printf("mcp %s: %s", direction, string(msg))
		return
	}
	var env loggingEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.cfg.Logger.Printf("mcp %s: <unparseable frame>", direction)
		return
	}
	switch {
	case env.Method != "" && len(env.ID) > 0:
		t.cfg.Logger.Printf("mcp %s: method=%s id=%s", direction, env.Method, env.ID)
	case env.Method != "":
		t.cfg.Logger.Printf("mcp %s: notification method=%s", direction, env.Method)
	default:
		t.cfg.Logger.Printf("mcp %s: response id=%s", direction, env.ID)
	}
}

func (t *loggingTransport) Close() error       { return t.inner.Close() }
func (t *loggingTransport) IsConnected() bool  { return t.inner.IsConnected() }
func (t *loggingTransport) Metadata() Metadata { return t.inner.Metadata() }
