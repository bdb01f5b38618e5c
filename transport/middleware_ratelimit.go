package transport

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the token-bucket rate-limit layer (§4.3).
// BlockOnLimit selects between waiting for a token and failing fast with
// rate-limited.
type RateLimitConfig struct {
	RatePerSecond float64
	Burst         int
	BlockOnLimit  bool
}

// rateLimitTransport wraps an inner Transport's Send side with a token
// bucket from golang.org/x/time/rate, grounded on the pack's
// xxsc0529-genai-toolbox and teradata-labs-loom go.mod entries for
// golang.org/x/time.
type rateLimitTransport struct {
	inner   Transport
	limiter *rate.Limiter
	block   bool
}

// WithRateLimit layers send-side rate limiting over inner.
func WithRateLimit(inner Transport, cfg RateLimitConfig) Transport {
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	return &rateLimitTransport{inner: inner, limiter: limiter, block: cfg.BlockOnLimit}
}

func (t *rateLimitTransport) Send(ctx context.Context, msg Message) error {
	if t.block {
		if err := t.limiter.Wait(ctx); err != nil {
			return NewError(KindRateLimited, "rate limit wait cancelled", err)
		}
	} else if !t.limiter.Allow() {
		return NewError(KindRateLimited, "rate limit exceeded", nil)
	}
	return t.inner.Send(ctx, msg)
}

func (t *rateLimitTransport) Receive(ctx context.Context) (Message, error) { return t.inner.Receive(ctx) }
func (t *rateLimitTransport) Close() error                                 { return t.inner.Close() }
func (t *rateLimitTransport) IsConnected() bool                            { return t.inner.IsConnected() }
func (t *rateLimitTransport) Metadata() Metadata                           { return t.inner.Metadata() }
