package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RetryConfig configures the send-side retry middleware layer (§4.3):
// exponential backoff with an optional jitter factor in [0,1).
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// DefaultRetryConfig mirrors conservative defaults for transient I/O.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// retryTransport wraps an inner Transport, retrying Send on retriable
// errors with exponential backoff. Retries are serialised per instance via
// mu so re-sends of a given message never interleave with another retry
// sequence's re-sends, preserving the ordering guarantee in §4.3.
type retryTransport struct {
	inner Transport
	cfg   RetryConfig
	mu    sync.Mutex
}

// WithRetry layers retry-on-send over inner. Receive passes through
// unmodified: retrying a read would duplicate delivery.
func WithRetry(inner Transport, cfg RetryConfig) Transport {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &retryTransport{inner: inner, cfg: cfg}
}

func (t *retryTransport) Send(ctx context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delay := t.cfg.InitialDelay
	var lastErr error
	for attempt := 0; attempt < t.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := delay
			if t.cfg.Jitter > 0 {
				wait += time.Duration(rand.Float64() * t.cfg.Jitter * float64(delay))
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * t.cfg.Multiplier)
			if t.cfg.MaxDelay > 0 && delay > t.cfg.MaxDelay {
				delay = t.cfg.MaxDelay
			}
		}

		err := t.inner.Send(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetriable(err) {
			return err
		}
	}
	return lastErr
}

func (t *retryTransport) Receive(ctx context.Context) (Message, error) { return t.inner.Receive(ctx) }
func (t *retryTransport) Close() error                                 { return t.inner.Close() }
func (t *retryTransport) IsConnected() bool                            { return t.inner.IsConnected() }
func (t *retryTransport) Metadata() Metadata                           { return t.inner.Metadata() }
