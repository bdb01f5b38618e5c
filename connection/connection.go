package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flowmcp/mcpcore/capability"
	"github.com/flowmcp/mcpcore/jsonrpc"
	"github.com/flowmcp/mcpcore/peer"
	"github.com/flowmcp/mcpcore/registry"
	"github.com/flowmcp/mcpcore/transport"
)

// DefaultCloseGracePeriod is the documented default for draining in-flight
// requests during close (§9 Open Question 3).
const DefaultCloseGracePeriod = 30 * time.Second

// Options configures a Connection.
type Options struct {
	Info             capability.Implementation
	Instructions     string
	CloseGracePeriod time.Duration
	Registry         *registry.Registry
	PeerOptions      peer.Options
}

// initializeParams is the wire shape of the initialize request (§6).
type initializeParams struct {
	ProtocolVersion string                         `json:"protocolVersion"`
	Capabilities    capability.ClientCapabilities  `json:"capabilities"`
	ClientInfo      capability.Implementation      `json:"clientInfo"`
}

// initializeResult is the wire shape of the initialize response (§6).
type initializeResult struct {
	ProtocolVersion string                     `json:"protocolVersion"`
	Capabilities    capability.ServerCapabilities `json:"capabilities"`
	ServerInfo      capability.Implementation  `json:"serverInfo"`
	Instructions    string                     `json:"instructions,omitempty"`
}

// Connection drives one side of one MCP connection: the typestate
// lifecycle, the handshake, and capability-gated request/notify, layered
// over a peer.Peer for correlation and dispatch (§4.4, §4.5).
type Connection struct {
	mu    sync.Mutex
	state State

	transport transport.Transport
	peer      *peer.Peer
	registry  *registry.Registry
	opts      Options

	clientCaps      capability.ClientCapabilities
	serverCaps      capability.ServerCapabilities
	protocolVersion string

	runErrCh chan error
	closeOnce sync.Once
}

// New constructs a disconnected Connection.
func New(opts Options) *Connection {
	if opts.CloseGracePeriod <= 0 {
		opts.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	return &Connection{
		state:    StateDisconnected,
		registry: opts.Registry,
		opts:     opts,
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Registry exposes the handler registry for pre-connect registration.
func (c *Connection) Registry() *registry.Registry { return c.registry }

// Connect attaches t and transitions Disconnected → Initializing, starting
// the peer's reader goroutine (§4.4).
func (c *Connection) Connect(ctx context.Context, t transport.Transport) error {
	c.mu.Lock()
	if err := allowed(c.state, "connect", StateDisconnected); err != nil {
		c.mu.Unlock()
		return err
	}
	c.transport = t
	popts := c.opts.PeerOptions
	popts.InboundGate = c.inboundGate
	c.peer = peer.New(t, c.registry, popts)
	c.state = StateInitializing
	c.mu.Unlock()

	c.armInitializedListener()

	c.runErrCh = make(chan error, 1)
	go func() { c.runErrCh <- c.peer.Run(ctx) }()
	return nil
}

// InitializeAsClient performs the client side of the handshake (§4.4,
// §6): send initialize, validate the negotiated version, send
// notifications/initialized, and transition to Ready.
func (c *Connection) InitializeAsClient(ctx context.Context, clientCaps capability.ClientCapabilities) error {
	c.mu.Lock()
	if err := allowed(c.state, "initialize", StateInitializing); err != nil {
		c.mu.Unlock()
		return err
	}
	c.clientCaps = clientCaps
	p := c.peer
	c.mu.Unlock()

	params := initializeParams{
		ProtocolVersion: capability.SupportedProtocolVersions[len(capability.SupportedProtocolVersions)-1],
		Capabilities:    clientCaps,
		ClientInfo:      c.opts.Info,
	}

	raw, err := p.Call(ctx, registry.MethodInitialize, params)
	if err != nil {
		c.transitionTo(StateDisconnected)
		return jsonrpc.ErrHandshakeFailed(err.Error())
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.transitionTo(StateDisconnected)
		return jsonrpc.ErrHandshakeFailed("malformed initialize result: " + err.Error())
	}

	if !capability.Contains(capability.SupportedProtocolVersions, result.ProtocolVersion) {
		_ = c.Close(ctx)
		return jsonrpc.ErrHandshakeFailed(fmt.Sprintf("server proposed unsupported protocol version %q", result.ProtocolVersion))
	}

	c.mu.Lock()
	c.serverCaps = result.Capabilities
	c.protocolVersion = result.ProtocolVersion
	c.mu.Unlock()
	p.SetCapabilities(clientCaps, result.Capabilities, result.ProtocolVersion)

	if err := p.Notify(ctx, registry.NotificationInitialized, nil); err != nil {
		c.transitionTo(StateDisconnected)
		return jsonrpc.ErrHandshakeFailed("send initialized: " + err.Error())
	}

	c.transitionTo(StateReady)
	return nil
}

// PrepareServer registers the initialize handler and the
// notifications/initialized listener that drive the server side of the
// handshake (§4.4). Call before Connect.
func (c *Connection) PrepareServer(serverCaps capability.ServerCapabilities) {
	c.mu.Lock()
	c.serverCaps = serverCaps
	c.mu.Unlock()

	c.registry.Register(registry.MethodInitialize, c.handleInitialize)
}

// armInitializedListener subscribes to notifications/initialized on the
// now-running peer so the server transitions to Ready once the client
// confirms. Called by Connect after peer construction.
func (c *Connection) armInitializedListener() {
	c.peer.Subscribe(registry.NotificationInitialized, func(jsonrpc.Notification) {
		c.transitionFrom(StateInitializing, StateReady)
	})
}

func (c *Connection) handleInitialize(params json.RawMessage, ctx registry.Context) (json.RawMessage, error) {
	var req initializeParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, jsonrpc.ErrInvalidParams("initialize: " + err.Error())
	}

	negotiated := capability.Negotiate(req.ProtocolVersion, capability.SupportedProtocolVersions)

	c.mu.Lock()
	c.clientCaps = req.Capabilities
	c.protocolVersion = negotiated
	serverCaps := c.serverCaps
	c.mu.Unlock()
	c.peer.SetCapabilities(req.Capabilities, serverCaps, negotiated)

	result := initializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    serverCaps,
		ServerInfo:      c.opts.Info,
		Instructions:    c.opts.Instructions,
	}
	return json.Marshal(result)
}

// Call issues method as an outbound request, enforcing the handshake gate
// (only "initialize" is legal before Ready) and the capability gate
// (requiredPeerCap, if non-empty, must be advertised by the peer) before ever
// touching the transport (§4.4, §4.2, §8).
func (c *Connection) Call(ctx context.Context, method string, params any, requiredPeerCap capability.Name) (json.RawMessage, error) {
	c.mu.Lock()
	state := c.state
	serverCaps := c.serverCaps
	p := c.peer
	c.mu.Unlock()

	if method != registry.MethodInitialize {
		if err := allowed(state, "call:"+method, StateReady); err != nil {
			return nil, err
		}
	}
	if requiredPeerCap != "" && !capability.HasServer(serverCaps, requiredPeerCap) {
		return nil, jsonrpc.ErrCapabilityNotSupported(string(requiredPeerCap), capability.AdvertisedServer(serverCaps))
	}
	return p.Call(ctx, method, params)
}

// Notify sends method as a notification, allowed in Ready (any
// notification) and Closing (any notification — draining) states.
func (c *Connection) Notify(ctx context.Context, method string, params any) error {
	c.mu.Lock()
	state := c.state
	p := c.peer
	c.mu.Unlock()

	if err := allowed(state, "notify:"+method, StateReady, StateClosing); err != nil {
		return err
	}
	return p.Notify(ctx, method, params)
}

// Close performs graceful shutdown: stop accepting new outbound requests,
// let in-flight ones complete or time out within CloseGracePeriod, then
// drop the transport. Re-entrant close is a no-op (§4.4 idempotence).
func (c *Connection) Close(ctx context.Context) error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.state == StateDisconnected || c.state == StateClosed {
			c.state = StateClosed
			c.mu.Unlock()
			return
		}
		c.state = StateClosing
		t := c.transport
		p := c.peer
		c.mu.Unlock()

		c.drainInFlight(ctx, p)

		if t != nil {
			closeErr = t.Close()
		}

		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
	})
	return closeErr
}

// inboundGate is the peer.Options.InboundGate hook: no inbound request
// other than "initialize" is dispatched while the connection is not Ready
// (§4.4).
func (c *Connection) inboundGate(method string) *jsonrpc.Error {
	if method == registry.MethodInitialize {
		return nil
	}
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateReady {
		return jsonrpc.ErrInvalidRequest(fmt.Sprintf("method %q not allowed before handshake completes (state %s)", method, state))
	}
	return nil
}

// drainInFlight waits for p's pending outbound requests to finish, up to
// CloseGracePeriod, polling rather than sleeping the full period so a quiet
// connection closes immediately (§4.4, §5 resource release).
func (c *Connection) drainInFlight(ctx context.Context, p *peer.Peer) {
	if p == nil || p.PendingCount() == 0 {
		return
	}
	deadline := time.Now().Add(c.opts.CloseGracePeriod)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.PendingCount() == 0 || time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Connection) transitionTo(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) transitionFrom(from, to State) {
	c.mu.Lock()
	if c.state == from {
		c.state = to
	}
	c.mu.Unlock()
}
