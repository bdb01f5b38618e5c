// Package peer implements the message router described in §4.5: it
// multiplexes one bidirectional Transport between many concurrent callers
// and the registered handler registry, correlating outbound requests with
// responses, dispatching inbound requests, and fanning out notifications.
// This is the component the rest of the SDK is built around.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/flowmcp/mcpcore/capability"
	"github.com/flowmcp/mcpcore/jsonrpc"
	"github.com/flowmcp/mcpcore/observability"
	"github.com/flowmcp/mcpcore/registry"
	"github.com/flowmcp/mcpcore/transport"
)

// Options configures a Peer.
type Options struct {
	// CancelGracePeriod bounds how long a cancelled/timed-out outbound
	// request's id stays reserved to silently discard a late response
	// before the bookkeeping entry is dropped (§3, §8).
	CancelGracePeriod time.Duration

	// InboundGate, if set, is consulted before every inbound request is
	// dispatched to the registry. It lets the connection layer enforce
	// "no non-handshake request is dispatched while state != Ready"
	// (§4.4) without peer needing to import the connection package. A
	// non-nil return short-circuits dispatch with that error.
	InboundGate func(method string) *jsonrpc.Error

	// Latency, if set, records a sample for every completed outbound call
	// and inbound dispatch (§4.8). Optional.
	Latency *observability.Histogram

	// Tracer, if set, opens an OpenTelemetry span per outbound call and
	// per inbound dispatch (§4.8). Optional; nil disables tracing.
	Tracer *observability.Tracer
}

// DefaultCancelGracePeriod matches the connection layer's documented
// close-grace default (§9 Open Question 3).
const DefaultCancelGracePeriod = 30 * time.Second

// Peer owns the pending-request table, the single reader goroutine, the
// write-serialising lock, and notification fan-out for one connection
// (§4.5 Internal state per connection).
type Peer struct {
	transport transport.Transport
	registry  *registry.Registry
	opts      Options

	nextID atomic.Int64

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *jsonrpc.Response
	discarded map[string]struct{}

	cancelMu     sync.Mutex
	cancelTokens map[string]*registry.CancelFlag

	subMu       sync.Mutex
	subscribers []*subscriber

	capMu           sync.RWMutex
	clientCaps      capability.ClientCapabilities
	serverCaps      capability.ServerCapabilities
	protocolVersion string
}

type subscriber struct {
	prefix string
	sink   func(jsonrpc.Notification)
}

// New constructs a Peer over t, dispatching inbound requests through reg.
func New(t transport.Transport, reg *registry.Registry, opts Options) *Peer {
	if opts.CancelGracePeriod <= 0 {
		opts.CancelGracePeriod = DefaultCancelGracePeriod
	}
	return &Peer{
		transport:    t,
		registry:     reg,
		opts:         opts,
		pending:      make(map[string]chan *jsonrpc.Response),
		discarded:    make(map[string]struct{}),
		cancelTokens: make(map[string]*registry.CancelFlag),
	}
}

// SetCapabilities stores the negotiated capability sets and protocol
// version, made available to every inbound handler's Context. Called once
// by the connection layer after a successful handshake.
func (p *Peer) SetCapabilities(client capability.ClientCapabilities, server capability.ServerCapabilities, version string) {
	p.capMu.Lock()
	defer p.capMu.Unlock()
	p.clientCaps = client
	p.serverCaps = server
	p.protocolVersion = version
}

// PendingCount reports how many outbound requests are still awaiting a
// response, used by the connection layer to bound how long Close() drains
// in-flight calls before giving up (§4.4 CloseGracePeriod).
func (p *Peer) PendingCount() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return len(p.pending)
}

func (p *Peer) capabilities() (capability.ClientCapabilities, capability.ServerCapabilities, string) {
	p.capMu.RLock()
	defer p.capMu.RUnlock()
	return p.clientCaps, p.serverCaps, p.protocolVersion
}

// Call sends method as an outbound request and blocks for its response,
// honoring ctx cancellation/deadline per the outbound request flow (§4.5).
func (p *Peer) Call(ctx context.Context, method string, params any) (result json.RawMessage, callErr error) {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("peer: marshal params: %w", err)
	}

	id := jsonrpc.NewNumberID(p.nextID.Add(1))
	key := id.String()

	start := time.Now()
	var span trace.Span
	if p.opts.Tracer != nil {
		ctx, span = p.opts.Tracer.StartOutbound(ctx, method, key)
	}
	defer func() {
		if p.opts.Latency != nil {
			p.opts.Latency.Observe(time.Since(start))
		}
		if span != nil {
			observability.EndWithError(span, callErr)
		}
	}()

	waiter := make(chan *jsonrpc.Response, 1)

	p.pendingMu.Lock()
	p.pending[key] = waiter
	p.pendingMu.Unlock()

	req := &jsonrpc.Request{ID: id, Method: method, Params: paramsRaw}
	data, err := jsonrpc.Encode(req)
	if err != nil {
		p.dropPending(key)
		return nil, fmt.Errorf("peer: encode request: %w", err)
	}
	if err := p.send(ctx, data); err != nil {
		p.dropPending(key)
		return nil, err
	}

	select {
	case resp := <-waiter:
		if resp == connClosedResponse {
			return nil, transport.NewError(transport.KindConnectionClosed, "connection closed before response arrived", nil)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		p.cancelOutbound(key, id, ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, transport.NewError(transport.KindTimeout, fmt.Sprintf("request %s timed out", key), ctx.Err())
		}
		return nil, jsonrpc.ErrCancelled(key)
	}
}

// Notify sends method as a fire-and-forget notification.
func (p *Peer) Notify(ctx context.Context, method string, params any) error {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("peer: marshal params: %w", err)
	}
	note := &jsonrpc.Notification{Method: method, Params: paramsRaw}
	data, err := jsonrpc.Encode(note)
	if err != nil {
		return fmt.Errorf("peer: encode notification: %w", err)
	}
	return p.send(ctx, data)
}

func (p *Peer) send(ctx context.Context, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.transport.Send(ctx, data)
}

func (p *Peer) dropPending(key string) {
	p.pendingMu.Lock()
	delete(p.pending, key)
	p.pendingMu.Unlock()
}

// cancelOutbound removes the pending entry, marks it discarded for the
// grace period (so a late response is dropped silently rather than logged
// as unknown), and emits notifications/cancelled — satisfying cancellation
// symmetry (§8) for both explicit caller cancellation and deadline expiry.
func (p *Peer) cancelOutbound(key string, id jsonrpc.RequestID, cause error) {
	p.pendingMu.Lock()
	delete(p.pending, key)
	p.discarded[key] = struct{}{}
	p.pendingMu.Unlock()

	time.AfterFunc(p.opts.CancelGracePeriod, func() {
		p.pendingMu.Lock()
		delete(p.discarded, key)
		p.pendingMu.Unlock()
	})

	reason := "cancelled"
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = "timeout"
	}
	notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.Notify(notifyCtx, registry.NotificationCancelled, registry.CancelledParams{
		RequestID: json.RawMessage(id.String()),
		Reason:    reason,
	})
}

// Subscribe registers sink for every inbound notification whose method has
// the given prefix ("" matches everything). Returns an unsubscribe
// function, grounded on the donor's events.Bus Subscribe/unsubscribe
// closure pattern.
func (p *Peer) Subscribe(prefix string, sink func(jsonrpc.Notification)) func() {
	p.subMu.Lock()
	p.subscribers = append(p.subscribers, &subscriber{prefix: prefix, sink: sink})
	idx := len(p.subscribers) - 1
	p.subMu.Unlock()

	return func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		if idx < len(p.subscribers) {
			p.subscribers[idx] = nil
		}
	}
}

func (p *Peer) dispatchNotification(note jsonrpc.Notification) {
	p.subMu.Lock()
	subs := append([]*subscriber(nil), p.subscribers...)
	p.subMu.Unlock()

	for _, s := range subs {
		if s == nil || !strings.HasPrefix(note.Method, s.prefix) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("peer: notification subscriber panic: %v", r)
				}
			}()
			s.sink(note)
		}()
	}
}

// Run owns transport.Receive exclusively: it loops reading frames,
// correlating responses, dispatching requests, and fanning out
// notifications, until the transport closes or ctx is done. On return, it
// fails every still-pending outbound call with a transport error, since no
// more responses can ever arrive (§4.5 Reconnection).
func (p *Peer) Run(ctx context.Context) error {
	defer p.failAllPending()

	for {
		msg, err := p.transport.Receive(ctx)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}

		frame, err := jsonrpc.Decode(msg)
		if err != nil {
			log.Printf("peer: dropping unparseable frame: %v", err)
			continue
		}

		switch frame.Kind {
		case jsonrpc.KindResponse:
			p.handleResponse(frame.AsResponse)
		case jsonrpc.KindRequest:
			p.handleRequestFrame(frame.AsRequest)
		case jsonrpc.KindNotification:
			p.handleNotificationFrame(frame.AsNotification)
		}
	}
}

func (p *Peer) handleResponse(resp jsonrpc.Response) {
	key := resp.ID.String()

	p.pendingMu.Lock()
	waiter, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	_, wasDiscarded := p.discarded[key]
	if wasDiscarded {
		delete(p.discarded, key)
	}
	p.pendingMu.Unlock()

	switch {
	case ok:
		respCopy := resp
		waiter <- &respCopy
	case wasDiscarded:
		// Late response for a cancelled/timed-out request: discard
		// silently per cancellation symmetry (§8).
	default:
		log.Printf("peer: response for unknown or already-completed id %s", key)
	}
}

func (p *Peer) handleRequestFrame(req jsonrpc.Request) {
	key := req.ID.String()
	flag := registry.NewCancelFlag()

	p.cancelMu.Lock()
	p.cancelTokens[key] = flag
	p.cancelMu.Unlock()

	go p.handleRequest(req, flag)
}

func (p *Peer) handleRequest(req jsonrpc.Request, flag *registry.CancelFlag) {
	defer func() {
		p.cancelMu.Lock()
		delete(p.cancelTokens, req.ID.String())
		p.cancelMu.Unlock()
	}()

	start := time.Now()
	baseCtx := context.Context(context.Background())
	var span trace.Span
	if p.opts.Tracer != nil {
		baseCtx, span = p.opts.Tracer.StartInbound(baseCtx, req.Method, req.ID.String())
	}

	var result json.RawMessage
	var rpcErr *jsonrpc.Error

	if p.opts.InboundGate != nil {
		rpcErr = p.opts.InboundGate(req.Method)
	}
	if rpcErr == nil {
		clientCaps, serverCaps, version := p.capabilities()
		ctx := registry.Context{
			Context:         baseCtx,
			RequestID:       req.ID,
			ClientCaps:      clientCaps,
			ServerCaps:      serverCaps,
			ProtocolVersion: version,
			Backend:         p,
		}
		ctx = registry.WithCancelFlag(ctx, flag)
		result, rpcErr = p.registry.Invoke(req.Method, req.Params, ctx)
	}

	if p.opts.Latency != nil {
		p.opts.Latency.Observe(time.Since(start))
	}
	if span != nil {
		var spanErr error
		if rpcErr != nil {
			spanErr = rpcErr
		}
		observability.EndWithError(span, spanErr)
	}

	var resp *jsonrpc.Response
	if rpcErr != nil {
		resp = jsonrpc.NewErrorResponse(req.ID, rpcErr)
	} else {
		resp = jsonrpc.NewResultResponse(req.ID, result)
	}
	data, err := jsonrpc.Encode(resp)
	if err != nil {
		log.Printf("peer: encode response for %s: %v", req.Method, err)
		return
	}
	if err := p.send(context.Background(), data); err != nil {
		log.Printf("peer: send response for %s: %v", req.Method, err)
	}
}

func (p *Peer) handleNotificationFrame(note jsonrpc.Notification) {
	if note.Method == registry.NotificationCancelled {
		var params registry.CancelledParams
		if err := json.Unmarshal(note.Params, &params); err != nil {
			log.Printf("peer: malformed cancelled notification: %v", err)
			return
		}
		key := string(params.RequestID)
		p.cancelMu.Lock()
		flag, ok := p.cancelTokens[key]
		p.cancelMu.Unlock()
		if ok {
			flag.Signal()
		}
		return
	}
	p.dispatchNotification(note)
}

// failAllPending resolves every still-outstanding outbound waiter with a
// transport error, used when the reader loop exits because the transport
// died (§4.5 Reconnection, §8 no-pending-leak).
func (p *Peer) failAllPending() {
	p.pendingMu.Lock()
	waiters := p.pending
	p.pending = make(map[string]chan *jsonrpc.Response)
	p.discarded = make(map[string]struct{})
	p.pendingMu.Unlock()

	for _, waiter := range waiters {
		waiter <- connClosedResponse
	}
}

// connClosedResponse is the sentinel failAllPending hands every waiter;
// Call turns it into a connection-closed transport.Error.
var connClosedResponse = &jsonrpc.Response{}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}
