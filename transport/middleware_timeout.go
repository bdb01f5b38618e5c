package transport

import (
	"context"
	"time"
)

// TimeoutConfig configures the timeout middleware layer, independently per
// direction (§4.3).
type TimeoutConfig struct {
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration
}

// timeoutTransport wraps an inner Transport, bounding Send/Receive with a
// per-direction deadline. On expiry it returns a timeout Error and does not
// leave the inner operation running beyond the caller's observation of it:
// the inner call still runs to completion in its own goroutine (Go cannot
// forcibly abort a blocked call), but its result is discarded once the
// deadline fires.
type timeoutTransport struct {
	inner Transport
	cfg   TimeoutConfig
}

// WithTimeout layers timeout enforcement over inner.
func WithTimeout(inner Transport, cfg TimeoutConfig) Transport {
	return &timeoutTransport{inner: inner, cfg: cfg}
}

func (t *timeoutTransport) Send(ctx context.Context, msg Message) error {
	if t.cfg.SendTimeout <= 0 {
		return t.inner.Send(ctx, msg)
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.SendTimeout)
	defer cancel()
	return runBounded(ctx, func() error { return t.inner.Send(ctx, msg) })
}

func (t *timeoutTransport) Receive(ctx context.Context) (Message, error) {
	if t.cfg.ReceiveTimeout <= 0 {
		return t.inner.Receive(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ReceiveTimeout)
	defer cancel()
	return runBoundedReceive(ctx, func() (Message, error) { return t.inner.Receive(ctx) })
}

func (t *timeoutTransport) Close() error            { return t.inner.Close() }
func (t *timeoutTransport) IsConnected() bool       { return t.inner.IsConnected() }
func (t *timeoutTransport) Metadata() Metadata      { return t.inner.Metadata() }

// runBounded runs fn to completion, but returns a timeout Error as soon as
// ctx is cancelled rather than waiting for fn itself to notice.
func runBounded(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return NewError(KindTimeout, "operation timed out", ctx.Err())
	}
}

// receiveResult carries both return values of a Receive call over a
// single channel, so a deadline firing concurrently with fn's completion
// never races an outer variable the abandoned goroutine still writes to.
type receiveResult struct {
	msg Message
	err error
}

// runBoundedReceive is runBounded's two-return-value counterpart for
// Transport.Receive: fn's (Message, error) travel together through done,
// never through a closed-over variable the timed-out caller might read
// while the still-running goroutine writes it.
func runBoundedReceive(ctx context.Context, fn func() (Message, error)) (Message, error) {
	done := make(chan receiveResult, 1)
	go func() {
		msg, err := fn()
		done <- receiveResult{msg: msg, err: err}
	}()

	select {
	case res := <-done:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, NewError(KindTimeout, "operation timed out", ctx.Err())
	}
}
