// Package transport defines the abstract Transport contract every concrete
// wire implementation (stdio, HTTP streamable, in-memory pipe, …) must
// satisfy, plus a composable middleware stack that wraps one Transport in
// another (§4.3). Concrete transports live in subpackages.
package transport

import (
	"context"
	"fmt"
)

// Message is the minimal shape the transport layer moves: an already
// encoded JSON-RPC frame. Encoding/decoding into jsonrpc.Frame happens one
// layer up, in the peer/router — the transport only ever sees bytes, per
// the donor's Transport.Send/Receive([]byte) contract.
type Message = []byte

// Transport is the contract every wire implementation satisfies: grounded
// on the donor's internal/mcp/transport.go Transport interface, generalized
// from synchronous methods to context-aware ones so timeouts and
// cancellation compose cleanly with the middleware stack.
type Transport interface {
	// Send enqueues msg for delivery. Returns once the message is handed to
	// the OS or the remote acknowledges framing (transport-specific).
	Send(ctx context.Context, msg Message) error

	// Receive yields the next message. Returns (nil, nil) iff the peer
	// closed cleanly; returns an error on unclean termination.
	Receive(ctx context.Context) (Message, error)

	// Close performs a graceful, idempotent shutdown.
	Close() error

	// IsConnected is a synchronous liveness accessor.
	IsConnected() bool

	// Metadata returns transport-specific diagnostic information (session
	// id, remote address, negotiated subprotocol, credential presence).
	Metadata() Metadata
}

// Metadata is synchronous, transport-specific diagnostic data. The core
// surfaces it without interpreting it — e.g. a bearer token attached by
// transport/httpauth travels here as opaque metadata (§3, Non-goals).
type Metadata struct {
	Kind      string
	SessionID string
	Extra     map[string]string
}

// Kind classifies an Error for retry/fatal decisions in middleware (§7).
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectionFailed
	KindConnectionClosed
	KindReadFailed
	KindWriteFailed
	KindTimeout
	KindInvalidMessage
	KindProtocolViolation
	KindRateLimited
	KindMessageTooLarge
	KindNotConnected
)

// Error is a transport-level failure: a machine-readable Kind, a human
// message, and an optional cause chain (§3 error taxonomy, §7).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("transport: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a transport Error of the given kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Retriable reports whether an error of this kind is safe for the retry
// middleware to resend (§4.3: retry layer's retriable-vs-fatal split).
func (k Kind) Retriable() bool {
	switch k {
	case KindTimeout, KindConnectionClosed, KindReadFailed, KindWriteFailed:
		return true
	default:
		return false
	}
}

// IsRetriable reports whether err (or an *Error in its chain) is retriable.
// Non-transport errors are treated as fatal.
func IsRetriable(err error) bool {
	var te *Error
	for e := err; e != nil; e = unwrap(e) {
		if asErr, ok := e.(*Error); ok {
			te = asErr
			break
		}
	}
	if te == nil {
		return false
	}
	return te.Kind.Retriable()
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}
