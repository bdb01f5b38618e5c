package transport

import (
	"context"
	"sync/atomic"
	"time"
)

// Counters are the lock-free atomic counters the metrics middleware layer
// maintains (§4.3, §4.8): messages/bytes sent and received, plus send/recv
// error counts. All fields are read/reset atomically.
type Counters struct {
	MessagesSent     atomic.Int64
	MessagesReceived atomic.Int64
	SendErrors       atomic.Int64
	RecvErrors       atomic.Int64
	BytesSent        atomic.Int64
	BytesReceived    atomic.Int64
	startedAt        atomic.Int64 // unix nanos
}

// Snapshot is a point-in-time read of Counters plus derived rates.
type Snapshot struct {
	MessagesSent     int64
	MessagesReceived int64
	SendErrors       int64
	RecvErrors       int64
	BytesSent        int64
	BytesReceived    int64
	Elapsed          time.Duration
	SendRate         float64 // messages/sec
	ReceiveRate      float64 // messages/sec
}

// NewCounters returns a Counters with its start timestamp stamped to now.
func NewCounters(now time.Time) *Counters {
	c := &Counters{}
	c.startedAt.Store(now.UnixNano())
	return c
}

// Snapshot reads all counters atomically and computes rates against now.
func (c *Counters) Snapshot(now time.Time) Snapshot {
	started := time.Unix(0, c.startedAt.Load())
	elapsed := now.Sub(started)
	snap := Snapshot{
		MessagesSent:     c.MessagesSent.Load(),
		MessagesReceived: c.MessagesReceived.Load(),
		SendErrors:       c.SendErrors.Load(),
		RecvErrors:       c.RecvErrors.Load(),
		BytesSent:        c.BytesSent.Load(),
		BytesReceived:    c.BytesReceived.Load(),
		Elapsed:          elapsed,
	}
	secs := elapsed.Seconds()
	if secs > 0 {
		snap.SendRate = float64(snap.MessagesSent) / secs
		snap.ReceiveRate = float64(snap.MessagesReceived) / secs
	}
	return snap
}

// Reset zeroes all counters and restamps the start time to now, per the
// metrics layer's "supports reset" requirement (§4.3).
func (c *Counters) Reset(now time.Time) {
	c.MessagesSent.Store(0)
	c.MessagesReceived.Store(0)
	c.SendErrors.Store(0)
	c.RecvErrors.Store(0)
	c.BytesSent.Store(0)
	c.BytesReceived.Store(0)
	c.startedAt.Store(now.UnixNano())
}

// metricsTransport wraps an inner Transport, incrementing Counters on every
// Send/Receive.
type metricsTransport struct {
	inner    Transport
	counters *Counters
}

// WithMetrics layers counter tracking over inner. The caller retains
// counters to read/reset it independently of the transport's lifetime.
func WithMetrics(inner Transport, counters *Counters) Transport {
	return &metricsTransport{inner: inner, counters: counters}
}

func (t *metricsTransport) Send(ctx context.Context, msg Message) error {
	err := t.inner.Send(ctx, msg)
	if err != nil {
		t.counters.SendErrors.Add(1)
		return err
	}
	t.counters.MessagesSent.Add(1)
	t.counters.BytesSent.Add(int64(len(msg)))
	return nil
}

func (t *metricsTransport) Receive(ctx context.Context) (Message, error) {
	msg, err := t.inner.Receive(ctx)
	if err != nil {
		t.counters.RecvErrors.Add(1)
		return msg, err
	}
	if msg != nil {
		t.counters.MessagesReceived.Add(1)
		t.counters.BytesReceived.Add(int64(len(msg)))
	}
	return msg, nil
}

func (t *metricsTransport) Close() error       { return t.inner.Close() }
func (t *metricsTransport) IsConnected() bool  { return t.inner.IsConnected() }
func (t *metricsTransport) Metadata() Metadata { return t.inner.Metadata() }
