package pool

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowmcp/mcpcore/transport"
)

// Factory creates one new underlying transport connection on demand.
type Factory func(ctx context.Context) (transport.Transport, error)

// pooledConn wraps one connection with the bookkeeping the manager needs to
// evaluate idle and lifetime limits (translated from the reference
// implementation's PooledConnection).
type pooledConn struct {
	conn      transport.Transport
	id        uint64
	createdAt time.Time
	lastUsed  time.Time
}

func (p *pooledConn) touch()                        { p.lastUsed = time.Now() }
func (p *pooledConn) isIdle(timeout time.Duration) bool { return time.Since(p.lastUsed) > timeout }
func (p *pooledConn) isExpired(maxLifetime time.Duration) bool {
	return maxLifetime > 0 && time.Since(p.createdAt) > maxLifetime
}

// Pool manages a bounded set of transport.Transport connections, handing
// them out via Acquire and reclaiming them via Release.
type Pool struct {
	cfg     Config
	factory Factory

	mu        sync.Mutex
	available *list.List // of *pooledConn
	inUse     int
	closed    bool

	nextID     atomic.Uint64
	created    atomic.Uint64
	destroyed  atomic.Uint64
	acquires   atomic.Uint64
	releases   atomic.Uint64
	timeouts   atomic.Uint64
	recycledLT atomic.Uint64
	recycledHC atomic.Uint64
	peakInUse  atomic.Int64

	reaperDone chan struct{}
	reaperStop chan struct{}
	closeOnce  sync.Once
}

// New constructs a Pool. If cfg.WarmUp is set, MinConnections are created
// immediately using ctx for the factory calls; a failed warm-up call is
// returned to the caller, leaving no partially-built pool behind.
func New(ctx context.Context, cfg Config, factory Factory) (*Pool, error) {
	p := &Pool{
		cfg:        cfg,
		factory:    factory,
		available:  list.New(),
		reaperDone: make(chan struct{}),
		reaperStop: make(chan struct{}),
	}

	if cfg.WarmUp {
		for i := 0; i < cfg.MinConnections; i++ {
			pc, err := p.create(ctx)
			if err != nil {
				return nil, fmt.Errorf("pool: warm up connection %d: %w", i, err)
			}
			p.mu.Lock()
			p.available.PushBack(pc)
			p.mu.Unlock()
		}
	}

	if cfg.HealthCheckInterval > 0 {
		go p.runReaper()
	} else {
		close(p.reaperDone)
	}

	return p, nil
}

func (p *Pool) create(ctx context.Context) (*pooledConn, error) {
	conn, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	pc := &pooledConn{conn: conn, id: p.nextID.Add(1), createdAt: now, lastUsed: now}
	p.created.Add(1)
	return pc, nil
}

// Acquire returns a connection from the idle set, or creates a new one if
// under MaxConnections, retrying until AcquireTimeout elapses or ctx is
// done. Matches the reference implementation's evict-unhealthy/idle-expired,
// else create-if-under-max, else wait-and-retry loop.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	deadline := time.Now().Add(p.cfg.AcquireTimeout)

	for {
		if p.cfg.AcquireTimeout > 0 && time.Now().After(deadline) {
			p.timeouts.Add(1)
			return nil, transport.NewError(transport.KindTimeout, "pool acquire", context.DeadlineExceeded)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, transport.NewError(transport.KindConnectionClosed, "pool is closed", nil)
		}

		for {
			front := p.available.Front()
			if front == nil {
				break
			}
			p.available.Remove(front)
			pc := front.Value.(*pooledConn)

			if p.cfg.TestOnAcquire && !pc.conn.IsConnected() {
				p.destroyed.Add(1)
				p.recycledHC.Add(1)
				continue
			}
			if p.cfg.IdleTimeout > 0 && pc.isIdle(p.cfg.IdleTimeout) {
				_ = pc.conn.Close()
				p.destroyed.Add(1)
				continue
			}
			if pc.isExpired(p.cfg.MaxConnectionLifetime) {
				_ = pc.conn.Close()
				p.destroyed.Add(1)
				p.recycledLT.Add(1)
				continue
			}

			pc.touch()
			p.inUse++
			p.bumpPeak()
			p.acquires.Add(1)
			p.mu.Unlock()
			return &Conn{pooledConn: pc, pool: p}, nil
		}

		total := p.available.Len() + p.inUse
		if total < p.cfg.MaxConnections {
			p.inUse++
			p.bumpPeak()
			p.mu.Unlock()

			pc, err := p.create(ctx)
			if err != nil {
				p.mu.Lock()
				p.inUse--
				p.mu.Unlock()
				return nil, err
			}
			p.acquires.Add(1)
			return &Conn{pooledConn: pc, pool: p}, nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (p *Pool) bumpPeak() {
	if int64(p.inUse) > p.peakInUse.Load() {
		p.peakInUse.Store(int64(p.inUse))
	}
}

// release returns pc to the idle set, or discards it if the pool is closed
// or (when TestOnRelease is set) unhealthy.
func (p *Pool) release(pc *pooledConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inUse > 0 {
		p.inUse--
	}

	if p.closed {
		_ = pc.conn.Close()
		p.destroyed.Add(1)
		return
	}
	if p.cfg.TestOnRelease && !pc.conn.IsConnected() {
		_ = pc.conn.Close()
		p.destroyed.Add(1)
		p.recycledHC.Add(1)
		return
	}

	pc.touch()
	p.available.PushBack(pc)
	p.releases.Add(1)
}

// Close marks the pool closed and closes every idle connection. In-flight
// (acquired) connections are closed as they are released. Idempotent:
// repeated calls are a no-op, per §4.4's "re-entrant close is a no-op".
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		close(p.reaperStop)
		<-p.reaperDone
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for e := p.available.Front(); e != nil; e = e.Next() {
		pc := e.Value.(*pooledConn)
		if err := pc.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.destroyed.Add(1)
	}
	p.available.Init()
	return firstErr
}

// IsClosed reports whether Close has completed.
func (p *Pool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats returns a snapshot of the pool's activity counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inUse, idle := p.inUse, p.available.Len()
	p.mu.Unlock()

	return Stats{
		ConnectionsCreated: p.created.Load(),
		ConnectionsClosed:  p.destroyed.Load(),
		Acquires:           p.acquires.Load(),
		Releases:           p.releases.Load(),
		Timeouts:           p.timeouts.Load(),
		InUse:              inUse,
		Idle:               idle,
		RecycledLifetime:   p.recycledLT.Load(),
		RecycledHealth:     p.recycledHC.Load(),
		PeakInUse:          int(p.peakInUse.Load()),
	}
}

// cleanupIdle walks the idle queue front-to-back like the reference
// implementation's cleanup_idle, closing lifetime-expired connections
// regardless of MinConnections and idle-expired ones only while more than
// MinConnections are idle.
func (p *Pool) cleanupIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for e := p.available.Front(); e != nil; {
		next := e.Next()
		pc := e.Value.(*pooledConn)

		expired := pc.isExpired(p.cfg.MaxConnectionLifetime)
		idle := p.cfg.IdleTimeout > 0 && pc.isIdle(p.cfg.IdleTimeout) && p.available.Len() > p.cfg.MinConnections
		if expired || idle {
			p.available.Remove(e)
			_ = pc.conn.Close()
			p.destroyed.Add(1)
			if expired {
				p.recycledLT.Add(1)
			}
		}
		e = next
	}
}

func (p *Pool) runReaper() {
	defer close(p.reaperDone)
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.reaperStop:
			return
		case <-ticker.C:
			p.cleanupIdle()
		}
	}
}

// Conn wraps a pooledConn's transport.Transport so callers can use
// it directly while Release() still has access to the pooling bookkeeping
// via the enclosing pooledConn.
type Conn struct {
	*pooledConn
	pool *Pool
}

// Release returns the connection to the pool it was acquired from.
func (t *Conn) Release() { t.pool.release(t.pooledConn) }

var _ transport.Transport = (*Conn)(nil)

func (t *Conn) Send(ctx context.Context, msg transport.Message) error {
	return t.conn.Send(ctx, msg)
}
func (t *Conn) Receive(ctx context.Context) (transport.Message, error) {
	return t.conn.Receive(ctx)
}

// Close satisfies transport.Transport by returning the connection to the
// pool rather than tearing down the underlying transport: a caller holding
// a *Conn through the Transport interface has no way to call Release, so
// Close is the only signal it can give that it is done with the
// connection. Calling the pool's own Close to shut everything down is
// unaffected, since that path closes pooledConns directly.
func (t *Conn) Close() error {
	t.pool.release(t.pooledConn)
	return nil
}
func (t *Conn) IsConnected() bool            { return t.conn.IsConnected() }
func (t *Conn) Metadata() transport.Metadata { return t.conn.Metadata() }
