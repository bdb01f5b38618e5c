package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/flowmcp/mcpcore/jsonrpc"
)

func TestRegisterReplacesExistingHandler(t *testing.T) {
	r := New()
	r.Register("ping", func(json.RawMessage, Context) (json.RawMessage, error) {
		return json.RawMessage(`"first"`), nil
	})
	r.Register("ping", func(json.RawMessage, Context) (json.RawMessage, error) {
		return json.RawMessage(`"second"`), nil
	})

	result, rpcErr := r.Invoke("ping", nil, Context{Context: context.Background()})
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if string(result) != `"second"` {
		t.Fatalf("expected the replacement handler to win, got %s", result)
	}
}

func TestUnregisterRemovesHandler(t *testing.T) {
	r := New()
	r.Register("ping", func(json.RawMessage, Context) (json.RawMessage, error) { return nil, nil })
	r.Unregister("ping")

	if _, ok := r.Lookup("ping"); ok {
		t.Fatal("expected ping handler to be gone after Unregister")
	}
}

func TestInvokeUnknownMethodReturnsMethodNotFound(t *testing.T) {
	r := New()
	r.Register("known", func(json.RawMessage, Context) (json.RawMessage, error) { return nil, nil })

	_, rpcErr := r.Invoke("unknown", nil, Context{Context: context.Background()})
	if rpcErr == nil || rpcErr.Code != jsonrpc.ErrCodeMethodNotFound {
		t.Fatalf("expected method-not-found, got %v", rpcErr)
	}
}

func TestInvokeRecoversHandlerPanic(t *testing.T) {
	r := New()
	r.Register("boom", func(json.RawMessage, Context) (json.RawMessage, error) {
		panic("handler exploded")
	})

	result, rpcErr := r.Invoke("boom", nil, Context{Context: context.Background()})
	if result != nil {
		t.Fatalf("expected nil result on panic, got %s", result)
	}
	if rpcErr == nil || rpcErr.Code != jsonrpc.ErrCodeInternalError {
		t.Fatalf("expected internal error from recovered panic, got %v", rpcErr)
	}
}

func TestInvokeWrapsPlainErrorsAsInternalError(t *testing.T) {
	r := New()
	cause := errors.New("plain failure")
	r.Register("fails", func(json.RawMessage, Context) (json.RawMessage, error) {
		return nil, cause
	})

	_, rpcErr := r.Invoke("fails", nil, Context{Context: context.Background()})
	if rpcErr == nil || rpcErr.Code != jsonrpc.ErrCodeInternalError {
		t.Fatalf("expected plain error wrapped as internal error, got %v", rpcErr)
	}
	if !errors.Is(rpcErr, cause) {
		t.Fatalf("expected the original error to survive as the wrapped cause, got %v", rpcErr)
	}
}

func TestInvokePropagatesJSONRPCErrorUnchanged(t *testing.T) {
	r := New()
	want := jsonrpc.ErrResourceNotFound("file:///missing")
	r.Register("fails", func(json.RawMessage, Context) (json.RawMessage, error) {
		return nil, want
	})

	_, rpcErr := r.Invoke("fails", nil, Context{Context: context.Background()})
	if rpcErr != want {
		t.Fatalf("expected the exact *jsonrpc.Error to propagate, got %v", rpcErr)
	}
}

func TestMethodsListsSortedRegisteredNames(t *testing.T) {
	r := New()
	r.Register("z", func(json.RawMessage, Context) (json.RawMessage, error) { return nil, nil })
	r.Register("a", func(json.RawMessage, Context) (json.RawMessage, error) { return nil, nil })

	methods := r.Methods()
	if len(methods) != 2 || methods[0] != "a" || methods[1] != "z" {
		t.Fatalf("expected sorted [a z], got %v", methods)
	}
}

func TestCancelFlagSignalsContext(t *testing.T) {
	flag := NewCancelFlag()
	ctx := WithCancelFlag(Context{Context: context.Background()}, flag)

	if ctx.Cancelled() {
		t.Fatal("expected not cancelled before Signal")
	}
	flag.Signal()
	if !ctx.Cancelled() {
		t.Fatal("expected cancelled after Signal")
	}
}

func TestContextCancelledFalseWithoutFlag(t *testing.T) {
	ctx := Context{Context: context.Background()}
	if ctx.Cancelled() {
		t.Fatal("expected a Context built without WithCancelFlag to report not cancelled")
	}
}
