package transport

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeTransport is a minimal in-process Transport double for middleware
// unit tests, letting each test control exactly what Send/Receive do.
type fakeTransport struct {
	mu sync.Mutex

	sendFunc    func(ctx context.Context, msg Message) error
	sendCount   int
	receiveFunc func(ctx context.Context) (Message, error)
	closed      bool
}

func (f *fakeTransport) Send(ctx context.Context, msg Message) error {
	f.mu.Lock()
	f.sendCount++
	f.mu.Unlock()
	if f.sendFunc != nil {
		return f.sendFunc(ctx, msg)
	}
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) (Message, error) {
	if f.receiveFunc != nil {
		return f.receiveFunc(ctx)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
func (f *fakeTransport) IsConnected() bool { return !f.closed }
func (f *fakeTransport) Metadata() Metadata { return Metadata{Kind: "fake"} }

func (f *fakeTransport) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCount
}

func TestChainAppliesLayersInnerToOuter(t *testing.T) {
	var order []string
	mark := func(name string) Layer {
		return func(inner Transport) Transport {
			order = append(order, name)
			return inner
		}
	}
	Chain(&fakeTransport{}, mark("a"), mark("b"), mark("c"))
	if len(order) != 3 || order[0] != "a" || order[2] != "c" {
		t.Fatalf("expected layers applied in a,b,c order, got %v", order)
	}
}

func TestWithTimeoutFailsSlowSend(t *testing.T) {
	inner := &fakeTransport{
		sendFunc: func(ctx context.Context, msg Message) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	wrapped := WithTimeout(inner, TimeoutConfig{SendTimeout: 10 * time.Millisecond})
	err := wrapped.Send(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !IsRetriable(err) {
		t.Fatalf("expected timeout error to be retriable, got %v", err)
	}
}

func TestWithTimeoutPassesThroughFastSend(t *testing.T) {
	inner := &fakeTransport{}
	wrapped := WithTimeout(inner, TimeoutConfig{SendTimeout: time.Second})
	if err := wrapped.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithTimeoutZeroDisablesEnforcement(t *testing.T) {
	inner := &fakeTransport{}
	wrapped := WithTimeout(inner, TimeoutConfig{})
	if err := wrapped.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("unexpected error with timeout disabled: %v", err)
	}
}

func TestWithTimeoutFailsSlowReceive(t *testing.T) {
	inner := &fakeTransport{
		receiveFunc: func(ctx context.Context) (Message, error) {
			time.Sleep(100 * time.Millisecond)
			return []byte("too late"), nil
		},
	}
	wrapped := WithTimeout(inner, TimeoutConfig{ReceiveTimeout: 10 * time.Millisecond})
	msg, err := wrapped.Receive(context.Background())
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if msg != nil {
		t.Fatalf("expected no message alongside a timeout error, got %q", msg)
	}
	if !IsRetriable(err) {
		t.Fatalf("expected timeout error to be retriable, got %v", err)
	}
}

func TestWithTimeoutPassesThroughFastReceive(t *testing.T) {
	inner := &fakeTransport{
		receiveFunc: func(ctx context.Context) (Message, error) {
			return []byte("reply"), nil
		},
	}
	wrapped := WithTimeout(inner, TimeoutConfig{ReceiveTimeout: time.Second})
	msg, err := wrapped.Receive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(msg) != "reply" {
		t.Fatalf("expected reply, got %q", msg)
	}
}

func TestWithRetryRetriesRetriableErrorsThenSucceeds(t *testing.T) {
	attempts := 0
	inner := &fakeTransport{
		sendFunc: func(ctx context.Context, msg Message) error {
			attempts++
			if attempts < 3 {
				return NewError(KindTimeout, "transient", nil)
			}
			return nil
		},
	}
	wrapped := WithRetry(inner, RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 1})
	if err := wrapped.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryDoesNotRetryFatalErrors(t *testing.T) {
	attempts := 0
	inner := &fakeTransport{
		sendFunc: func(ctx context.Context, msg Message) error {
			attempts++
			return NewError(KindInvalidMessage, "fatal", nil)
		},
	}
	wrapped := WithRetry(inner, RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})
	if err := wrapped.Send(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a fatal error, got %d", attempts)
	}
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	inner := &fakeTransport{
		sendFunc: func(ctx context.Context, msg Message) error {
			attempts++
			return NewError(KindTimeout, "always fails", nil)
		},
	}
	wrapped := WithRetry(inner, RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1})
	if err := wrapped.Send(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected exactly MaxAttempts=3 attempts, got %d", attempts)
	}
}

func TestWithRateLimitBlocksWhenBurstExhaustedAndNotBlocking(t *testing.T) {
	inner := &fakeTransport{}
	wrapped := WithRateLimit(inner, RateLimitConfig{RatePerSecond: 0.0001, Burst: 1, BlockOnLimit: false})
	if err := wrapped.Send(context.Background(), []byte("1")); err != nil {
		t.Fatalf("first send within burst should succeed: %v", err)
	}
	if err := wrapped.Send(context.Background(), []byte("2")); err == nil {
		t.Fatal("expected second send to be rate limited")
	}
}

func TestWithMetricsTracksSendAndReceive(t *testing.T) {
	inner := &fakeTransport{
		receiveFunc: func(ctx context.Context) (Message, error) { return []byte("hello"), nil },
	}
	counters := NewCounters(time.Now())
	wrapped := WithMetrics(inner, counters)

	if err := wrapped.Send(context.Background(), []byte("abc")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := wrapped.Receive(context.Background()); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	snap := counters.Snapshot(time.Now())
	if snap.MessagesSent != 1 || snap.BytesSent != 3 {
		t.Fatalf("unexpected send counters: %+v", snap)
	}
	if snap.MessagesReceived != 1 || snap.BytesReceived != 5 {
		t.Fatalf("unexpected receive counters: %+v", snap)
	}
}

func TestCountersResetZeroesAndRestampsStart(t *testing.T) {
	counters := NewCounters(time.Now())
	counters.MessagesSent.Add(5)
	counters.Reset(time.Now())
	if counters.MessagesSent.Load() != 0 {
		t.Fatal("expected Reset to zero MessagesSent")
	}
}

func TestIsRetriableClassifiesTransportErrors(t *testing.T) {
	if !IsRetriable(NewError(KindTimeout, "x", nil)) {
		t.Fatal("expected timeout to be retriable")
	}
	if IsRetriable(NewError(KindInvalidMessage, "x", nil)) {
		t.Fatal("expected invalid message to be fatal")
	}
	if IsRetriable(nil) {
		t.Fatal("expected nil error to be treated as non-retriable")
	}
}
