package httpstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowmcp/mcpcore/capability"
	"github.com/flowmcp/mcpcore/transport"
)

func TestSendJSONResponseIsQueuedForReceive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Mcp-Session-Id", "sess-1")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer srv.Close()

	tr := New(Config{URL: srv.URL})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Send(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(msg) != `{"jsonrpc":"2.0","id":1,"result":{}}` {
		t.Fatalf("unexpected message %s", msg)
	}
	if tr.Metadata().SessionID != "sess-1" {
		t.Fatalf("expected session id to be captured, got %+v", tr.Metadata())
	}
}

func TestSendSSEResponseStreamsMultipleEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"a\":1}\n\n")
		fmt.Fprint(w, "data: {\"a\":2}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}))
	defer srv.Close()

	tr := New(Config{URL: srv.URL})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Send(ctx, []byte(`{}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	first, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive first: %v", err)
	}
	second, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive second: %v", err)
	}
	if string(first) != `{"a":1}` || string(second) != `{"a":2}` {
		t.Fatalf("unexpected events %s, %s", first, second)
	}
}

func TestSendSetsBearerTokenHeader(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := New(Config{
		URL: srv.URL,
		BearerTokenProvider: func(context.Context) (string, error) {
			return "secret-token", nil
		},
	})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Send(ctx, []byte(`{}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := gotAuth.Load(); got != "Bearer secret-token" {
		t.Fatalf("expected bearer token header, got %v", got)
	}
}

func TestSendNegotiatesProtocolVersionOnRejection(t *testing.T) {
	preferred := capability.SupportedProtocolVersions[0]

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		version := r.Header.Get("mcp-protocol-version")
		if n == 1 && version == preferred {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("unsupported protocol-version"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := New(Config{URL: srv.URL})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Send(ctx, []byte(`{}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected a retry with a different protocol version, got %d calls", calls.Load())
	}
}

func TestSendReturnsProtocolViolationOnNonRejectionBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("malformed json"))
	}))
	defer srv.Close()

	tr := New(Config{URL: srv.URL})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := tr.Send(ctx, []byte(`{}`))
	if err == nil {
		t.Fatal("expected an error")
	}
	terr, ok := err.(*transport.Error)
	if !ok || terr.Kind != transport.KindProtocolViolation {
		t.Fatalf("expected KindProtocolViolation, got %v", err)
	}
}

func TestCloseUnblocksReceive(t *testing.T) {
	tr := New(Config{URL: "http://unused.invalid"})

	done := make(chan struct{})
	go func() {
		_, _ = tr.Receive(context.Background())
		close(done)
	}()

	tr.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	tr := New(Config{URL: "http://unused.invalid"})
	tr.Close()

	err := tr.Send(context.Background(), []byte(`{}`))
	if err == nil {
		t.Fatal("expected Send after Close to fail")
	}
}
