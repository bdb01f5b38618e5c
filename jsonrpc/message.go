// Package jsonrpc implements the wire-level JSON-RPC 2.0 envelopes used by
// the protocol engine: requests, responses, notifications, and the
// identifier type that ties a response back to its request.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const Version = "2.0"

// RequestID is a JSON-RPC id: either a number or a string on the wire.
// It round-trips verbatim rather than normalising to one shape, since a
// peer may assign ids we must echo back unchanged.
type RequestID struct {
	raw json.RawMessage
}

// NewNumberID wraps an integer id.
func NewNumberID(n int64) RequestID {
	b, _ := json.Marshal(n)
	return RequestID{raw: b}
}

// NewStringID wraps a string id.
func NewStringID(s string) RequestID {
	b, _ := json.Marshal(s)
	return RequestID{raw: b}
}

// IsZero reports whether the id was never set (e.g. a notification).
func (id RequestID) IsZero() bool {
	return len(id.raw) == 0
}

func (id RequestID) String() string {
	if id.IsZero() {
		return "<none>"
	}
	return string(id.raw)
}

// Equal compares two ids by their wire representation.
func (id RequestID) Equal(other RequestID) bool {
	return bytes.Equal(id.raw, other.raw)
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		id.raw = nil
		return nil
	}
	switch trimmed[0] {
	case '"', '-', '+', '.', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		id.raw = append(json.RawMessage(nil), trimmed...)
		return nil
	default:
		return fmt.Errorf("jsonrpc: id must be a number or string, got %s", trimmed)
	}
}

// Request is an outbound or inbound JSON-RPC call expecting a Response.
type Request struct {
	ID     RequestID       `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Notification is a one-way message with no id and no expected reply.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response carries exactly one of Result or Error, never both.
type Response struct {
	ID     RequestID       `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// NewResultResponse builds a success response.
func NewResultResponse(id RequestID, result json.RawMessage) *Response {
	return &Response{ID: id, Result: result}
}

// NewErrorResponse builds a failure response.
func NewErrorResponse(id RequestID, err *Error) *Response {
	return &Response{ID: id, Error: err}
}

// envelope is the superset shape used to sniff which of Request/Response/
// Notification a raw frame represents, per the tagged-union data model.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind classifies a decoded frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindRequest
	KindNotification
	KindResponse
)

// Frame is a decoded, not-yet-classified wire message. Exactly one of
// AsRequest/AsNotification/AsResponse is meaningful, selected by Kind.
type Frame struct {
	Kind         Kind
	AsRequest    Request
	AsNotification Notification
	AsResponse   Response
}

// Decode parses one JSON-RPC frame and classifies it per the tagged-union
// rule in the data model: presence of "id" plus "method" is a Request,
// "method" without "id" is a Notification, and "result"/"error" (with
// "id") is a Response. A missing or wrong jsonrpc version is rejected.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("jsonrpc: parse error: %w", err)
	}
	if env.JSONRPC != Version {
		return Frame{}, fmt.Errorf("jsonrpc: unsupported jsonrpc version %q", env.JSONRPC)
	}

	hasID := env.ID != nil && !env.ID.IsZero()
	hasMethod := env.Method != ""
	hasResultOrError := env.Result != nil || env.Error != nil

	switch {
	case hasMethod && hasID:
		return Frame{Kind: KindRequest, AsRequest: Request{ID: *env.ID, Method: env.Method, Params: env.Params}}, nil
	case hasMethod && !hasID:
		return Frame{Kind: KindNotification, AsNotification: Notification{Method: env.Method, Params: env.Params}}, nil
	case hasResultOrError:
		if env.Result != nil && env.Error != nil {
			return Frame{}, fmt.Errorf("jsonrpc: response has both result and error")
		}
		id := RequestID{}
		if env.ID != nil {
			id = *env.ID
		}
		return Frame{Kind: KindResponse, AsResponse: Response{ID: id, Result: env.Result, Error: env.Error}}, nil
	default:
		return Frame{}, fmt.Errorf("jsonrpc: frame is neither a request, notification, nor response")
	}
}

// Encode serializes a Request, Notification, or Response, always stamping
// the jsonrpc version and omitting null-only fields so a response stays a
// one-of on the wire.
func Encode(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *Request:
		return json.Marshal(struct {
			JSONRPC string `json:"jsonrpc"`
			Request
		}{JSONRPC: Version, Request: *msg})
	case Request:
		return Encode(&msg)
	case *Notification:
		return json.Marshal(struct {
			JSONRPC string `json:"jsonrpc"`
			Notification
		}{JSONRPC: Version, Notification: *msg})
	case Notification:
		return Encode(&msg)
	case *Response:
		return json.Marshal(struct {
			JSONRPC string `json:"jsonrpc"`
			Response
		}{JSONRPC: Version, Response: *msg})
	case Response:
		return Encode(&msg)
	default:
		return nil, fmt.Errorf("jsonrpc: cannot encode %T", v)
	}
}
