package registry

import "testing"

func TestSubscribePublishInvokesAllSinksForURI(t *testing.T) {
	s := NewSubscriptions()
	var calls []string
	s.Subscribe("file:///a", func(uri string) { calls = append(calls, "sink1:"+uri) })
	s.Subscribe("file:///a", func(uri string) { calls = append(calls, "sink2:"+uri) })
	s.Subscribe("file:///b", func(uri string) { calls = append(calls, "sinkB:"+uri) })

	s.Publish("file:///a")

	if len(calls) != 2 {
		t.Fatalf("expected 2 sinks invoked for file:///a, got %v", calls)
	}
}

func TestUnsubscribeRemovesAllSinksForURI(t *testing.T) {
	s := NewSubscriptions()
	called := false
	s.Subscribe("file:///a", func(uri string) { called = true })
	s.Unsubscribe("file:///a")

	s.Publish("file:///a")

	if called {
		t.Fatal("expected no sinks invoked after Unsubscribe")
	}
}

func TestPublishUnknownURIIsNoOp(t *testing.T) {
	s := NewSubscriptions()
	s.Publish("file:///never-subscribed")
}
