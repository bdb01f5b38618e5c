// Package inmem provides an in-process pipe Transport used by tests and the
// demo CLI to connect a client and server peer without any real I/O.
package inmem

import (
	"context"
	"sync"

	"github.com/flowmcp/mcpcore/transport"
)

// Pair returns two connected Transports: writes to one are readable from
// the other's Receive, and vice versa.
func Pair() (transport.Transport, transport.Transport) {
	ab := make(chan transport.Message, 64)
	ba := make(chan transport.Message, 64)
	closeAB := make(chan struct{})
	closeBA := make(chan struct{})

	a := &pipeTransport{out: ab, in: ba, closeOut: closeAB, closeIn: closeBA, kind: "inmem"}
	b := &pipeTransport{out: ba, in: ab, closeOut: closeBA, closeIn: closeAB, kind: "inmem"}
	return a, b
}

// pipeTransport implements transport.Transport over buffered channels.
type pipeTransport struct {
	out      chan transport.Message
	in       chan transport.Message
	closeOut chan struct{}
	closeIn  chan struct{}
	kind     string

	mu     sync.Mutex
	closed bool
}

func (p *pipeTransport) Send(ctx context.Context, msg transport.Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return transport.NewError(transport.KindNotConnected, "transport closed", nil)
	}
	p.mu.Unlock()

	cp := append(transport.Message(nil), msg...)
	select {
	case p.out <- cp:
		return nil
	case <-p.closeOut:
		return transport.NewError(transport.KindConnectionClosed, "transport closed", nil)
	case <-ctx.Done():
		return transport.NewError(transport.KindTimeout, "send cancelled", ctx.Err())
	}
}

func (p *pipeTransport) Receive(ctx context.Context) (transport.Message, error) {
	// A plain three-way select would race a message the peer buffered
	// just before calling Close: once closeIn is also ready, select
	// picks among ready cases at random and can return (nil, nil)
	// instead of the buffered message. Try the data channel alone,
	// non-blocking, first — draining whatever is already there takes
	// priority over noticing the peer closed.
	select {
	case msg, ok := <-p.in:
		if !ok {
			return nil, nil
		}
		return msg, nil
	default:
	}

	select {
	case msg, ok := <-p.in:
		if !ok {
			return nil, nil
		}
		return msg, nil
	case <-p.closeIn:
		return nil, nil
	case <-ctx.Done():
		return nil, transport.NewError(transport.KindTimeout, "receive cancelled", ctx.Err())
	}
}

func (p *pipeTransport) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.closeOut)
	return nil
}

func (p *pipeTransport) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *pipeTransport) Metadata() transport.Metadata {
	return transport.Metadata{Kind: p.kind}
}
