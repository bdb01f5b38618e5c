// Package registry implements named-method dispatch for inbound requests:
// tools, resources, prompts, sampling, and elicitation handlers, each
// registered under a well-known MCP method name (§4.6).
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/flowmcp/mcpcore/capability"
	"github.com/flowmcp/mcpcore/jsonrpc"
)

// Backend is the back-handle a Context exposes so a handler can issue a
// reverse-direction request on the same connection (e.g. a tools/call
// handler invoking sampling/createMessage on the client). It is a weak
// reference in spirit: the peer/connection that implements it outlives
// any single handler invocation, and handlers must not retain it beyond
// their own call (§3 Ownership, §9 Pending-table cycles).
type Backend interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
}

// Context is passed to every handler invocation.
type Context struct {
	context.Context

	RequestID       jsonrpc.RequestID
	ClientCaps      capability.ClientCapabilities
	ServerCaps      capability.ServerCapabilities
	ProtocolVersion string
	ProgressToken   json.RawMessage
	Backend         Backend

	cancelled *atomicBool
}

// Cancelled reports whether the peer sent notifications/cancelled for this
// request's id.
func (c Context) Cancelled() bool {
	if c.cancelled == nil {
		return false
	}
	return c.cancelled.load()
}

// atomicBool is a tiny cancellation flag shared between the router (which
// flips it on notifications/cancelled) and handlers (which poll it at
// suspension points), per the cooperative cancellation model (§5).
type atomicBool struct {
	mu  sync.Mutex
	val bool
}

func (b *atomicBool) store(v bool) {
	b.mu.Lock()
	b.val = v
	b.mu.Unlock()
}

func (b *atomicBool) load() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.val
}

// NewCancelFlag constructs a flag usable both as Context.cancelled and as
// the router's cancel handle for an inbound request.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{flag: &atomicBool{}}
}

// CancelFlag is the cancel handle stored in a router's per-request table
// and consulted by Context.Cancelled.
type CancelFlag struct{ flag *atomicBool }

func (c *CancelFlag) Signal()      { c.flag.store(true) }
func (c *CancelFlag) Signalled() bool { return c.flag.load() }
func (c *CancelFlag) context() *atomicBool { return c.flag }

// WithCancelFlag attaches f to ctx so Context.Cancelled reflects it.
func WithCancelFlag(ctx Context, f *CancelFlag) Context {
	ctx.cancelled = f.context()
	return ctx
}

// Handler is a registered method implementation: given raw params and a
// Context, produce a raw JSON result or a domain error.
type Handler func(params json.RawMessage, ctx Context) (json.RawMessage, error)

// Registry maps method names to Handlers. Registering the same name twice
// replaces the previous handler (§4.6 idempotence).
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs handler under method, replacing any existing handler
// for that name.
func (r *Registry) Register(method string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = handler
}

// Unregister removes any handler installed under method.
func (r *Registry) Unregister(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, method)
}

// Lookup returns the handler for method, if any.
func (r *Registry) Lookup(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

// Methods lists every registered method name, sorted, for diagnostics in
// method-not-found error data (§4.6). Clients must not rely on this for
// anything but debugging.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke looks up method and calls its handler under a panic guard: a
// panic inside a handler is converted into an internal-error response
// instead of crashing the caller (§4.6, §7).
func (r *Registry) Invoke(method string, params json.RawMessage, ctx Context) (result json.RawMessage, rpcErr *jsonrpc.Error) {
	handler, ok := r.Lookup(method)
	if !ok {
		return nil, jsonrpc.ErrMethodNotFound(method, r.Methods())
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			rpcErr = jsonrpc.ErrInternalError(fmt.Sprintf("handler panic: %v", rec))
		}
	}()

	res, err := handler(params, ctx)
	if err != nil {
		if asRPC, ok := err.(*jsonrpc.Error); ok {
			return nil, asRPC
		}
		return nil, jsonrpc.ErrInternalErrorCause(err)
	}
	return res, nil
}
