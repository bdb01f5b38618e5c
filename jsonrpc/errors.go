package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Domain error codes, in the application range (<= -32000) per §6.
const (
	ErrCodeToolExecution          = -32000
	ErrCodeResourceNotFound       = -32001
	ErrCodeResourceAccessDenied   = -32002
	ErrCodeCapabilityNotSupported = -32003
	ErrCodeSessionExpired         = -32004
	ErrCodeHandshakeFailed        = -32005
	ErrCodeUserRejected           = -32006
	ErrCodeCancelled              = -32007
)

// ErrorKind classifies an Error by the machine-readable taxonomy §3/§7
// describe: the protocol-level kinds (parse-error .. internal-error) and
// the domain-level kinds (tool-execution .. cancelled). Callers switch on
// Kind rather than parsing Message. Named ErrorKind rather than Kind since
// this package already uses Kind for Frame's request/response/notification
// tag (message.go).
type ErrorKind string

const (
	ErrorKindParseError     ErrorKind = "parse-error"
	ErrorKindInvalidRequest ErrorKind = "invalid-request"
	ErrorKindMethodNotFound ErrorKind = "method-not-found"
	ErrorKindInvalidParams  ErrorKind = "invalid-params"
	ErrorKindInternalError  ErrorKind = "internal-error"

	ErrorKindToolExecution          ErrorKind = "tool-execution"
	ErrorKindResourceNotFound       ErrorKind = "resource-not-found"
	ErrorKindResourceAccessDenied   ErrorKind = "resource-access-denied"
	ErrorKindCapabilityNotSupported ErrorKind = "capability-not-supported"
	ErrorKindSessionExpired         ErrorKind = "session-expired"
	ErrorKindHandshakeFailed        ErrorKind = "handshake-failed"
	ErrorKindUserRejected           ErrorKind = "user-rejected"
	ErrorKindCancelled              ErrorKind = "cancelled"
)

// Error is a JSON-RPC 2.0 error object: code, message, and optional
// structured data, plus a Kind classification and an optional Cause so
// errors.Is/errors.As can walk the chain back to whatever underlying
// failure produced it (§7). It implements the standard error interface.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`

	Kind  ErrorKind `json:"-"`
	Cause error     `json:"-"`
}

// Error renders kind, message, and — when present — a compact summary of
// the wrapped cause chain (§7 "error formatting MUST include kind,
// message, and a compact summary of the chain").
func (e *Error) Error() string {
	s := fmt.Sprintf("jsonrpc: %s (%d): %s", e.Kind, e.Code, e.Message)
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error, marshaling data if non-nil. A data value that
// fails to marshal is dropped rather than propagated, since the error
// itself must still be constructible.
func NewError(code int, kind ErrorKind, message string, data any) *Error {
	e := &Error{Code: code, Kind: kind, Message: message}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			e.Data = b
		}
	}
	return e
}

// WrapError builds an Error that chains cause, so a handler's underlying
// failure survives as something errors.Is/errors.As can still reach
// instead of being flattened into a string (§7 domain errors "preserving
// the peer's ability to retry or surface to end users").
func WrapError(code int, kind ErrorKind, message string, cause error) *Error {
	e := NewError(code, kind, message, nil)
	e.Cause = cause
	return e
}

func ErrParseError(detail string) *Error {
	return NewError(ErrCodeParseError, ErrorKindParseError, "Parse error: "+detail, nil)
}

func ErrInvalidRequest(detail string) *Error {
	return NewError(ErrCodeInvalidRequest, ErrorKindInvalidRequest, "Invalid Request: "+detail, nil)
}

func ErrMethodNotFound(method string, known []string) *Error {
	var data any
	if len(known) > 0 {
		data = map[string][]string{"knownMethods": known}
	}
	return NewError(ErrCodeMethodNotFound, ErrorKindMethodNotFound, fmt.Sprintf("Method not found: %s", method), data)
}

func ErrInvalidParams(detail string) *Error {
	return NewError(ErrCodeInvalidParams, ErrorKindInvalidParams, "Invalid params: "+detail, nil)
}

func ErrInternalError(detail string) *Error {
	return NewError(ErrCodeInternalError, ErrorKindInternalError, "Internal error: "+detail, nil)
}

// ErrInternalErrorCause wraps cause as an internal-error, for the one
// place (registry.Invoke) where a handler returns a plain error that
// isn't already a *jsonrpc.Error: the original error is chained rather
// than flattened into Message (§7). Message stays generic — Error()
// already appends Cause's text, so baking it into Message too would
// render it twice.
func ErrInternalErrorCause(cause error) *Error {
	return WrapError(ErrCodeInternalError, ErrorKindInternalError, "Internal error", cause)
}

func ErrToolExecution(toolName, detail string) *Error {
	return NewError(ErrCodeToolExecution, ErrorKindToolExecution, fmt.Sprintf("Tool execution failed: %s: %s", toolName, detail), map[string]string{"toolName": toolName})
}

func ErrResourceNotFound(uri string) *Error {
	return NewError(ErrCodeResourceNotFound, ErrorKindResourceNotFound, fmt.Sprintf("Resource not found: %s", uri), map[string]string{"uri": uri})
}

func ErrResourceAccessDenied(uri string) *Error {
	return NewError(ErrCodeResourceAccessDenied, ErrorKindResourceAccessDenied, fmt.Sprintf("Resource access denied: %s", uri), map[string]string{"uri": uri})
}

// ErrCapabilityNotSupported reports that the peer never advertised
// capability, listing what it did advertise for diagnostics (§4.2).
func ErrCapabilityNotSupported(capability string, advertised []string) *Error {
	return NewError(ErrCodeCapabilityNotSupported, ErrorKindCapabilityNotSupported, fmt.Sprintf("Capability not supported: %s", capability), map[string]any{
		"capability": capability,
		"advertised": advertised,
	})
}

func ErrSessionExpired(sessionID string) *Error {
	return NewError(ErrCodeSessionExpired, ErrorKindSessionExpired, fmt.Sprintf("Session expired: %s", sessionID), map[string]string{"sessionId": sessionID})
}

func ErrHandshakeFailed(detail string) *Error {
	return NewError(ErrCodeHandshakeFailed, ErrorKindHandshakeFailed, "Handshake failed: "+detail, nil)
}

func ErrUserRejected(detail string) *Error {
	return NewError(ErrCodeUserRejected, ErrorKindUserRejected, "User rejected: "+detail, nil)
}

func ErrCancelled(requestID string) *Error {
	return NewError(ErrCodeCancelled, ErrorKindCancelled, fmt.Sprintf("Request cancelled: %s", requestID), map[string]string{"requestId": requestID})
}
