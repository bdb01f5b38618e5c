package inmem

import (
	"context"
	"testing"
	"time"
)

func TestPairDeliversMessagesBothWays(t *testing.T) {
	a, b := Pair()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := a.Send(ctx, []byte("ping")); err != nil {
		t.Fatalf("a.Send: %v", err)
	}
	got, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("b.Receive: %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("expected ping, got %q", got)
	}

	if err := b.Send(ctx, []byte("pong")); err != nil {
		t.Fatalf("b.Send: %v", err)
	}
	got, err = a.Receive(ctx)
	if err != nil {
		t.Fatalf("a.Receive: %v", err)
	}
	if string(got) != "pong" {
		t.Fatalf("expected pong, got %q", got)
	}
}

func TestPairCloseUnblocksReceive(t *testing.T) {
	a, b := Pair()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		msg, err := b.Receive(ctx)
		if err != nil {
			t.Errorf("Receive after close should report a clean EOF, got error: %v", err)
		}
		if msg != nil {
			t.Errorf("expected nil message after close, got %q", msg)
		}
		close(done)
	}()

	a.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock after peer closed")
	}
}

func TestPairSendAfterCloseFails(t *testing.T) {
	a, _ := Pair()
	a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := a.Send(ctx, []byte("x")); err == nil {
		t.Fatal("expected Send on a closed transport to fail")
	}
	if a.IsConnected() {
		t.Fatal("expected IsConnected to be false after Close")
	}
}

func TestPairDeliversBufferedMessageBeforeClose(t *testing.T) {
	a, b := Pair()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := a.Send(ctx, []byte("last message")); err != nil {
		t.Fatalf("a.Send: %v", err)
	}
	a.Close()

	got, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("b.Receive: %v", err)
	}
	if string(got) != "last message" {
		t.Fatalf("expected buffered message to survive peer close, got %q", got)
	}

	msg, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("b.Receive after drain: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message once the peer is closed and drained, got %q", msg)
	}
}

func TestPairCloseIsIdempotent(t *testing.T) {
	a, _ := Pair()
	if err := a.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
