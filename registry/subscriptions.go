package registry

import "sync"

// UpdateSink receives a notification that uri changed, so the server can
// emit notifications/resources/updated (§4.6).
type UpdateSink func(uri string)

// Subscriptions tracks which URIs have an active resources/subscribe sink.
// One sink per connection is expected; callers key this per-peer.
type Subscriptions struct {
	mu    sync.Mutex
	sinks map[string][]UpdateSink
}

// NewSubscriptions constructs an empty subscription table.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{sinks: make(map[string][]UpdateSink)}
}

// Subscribe registers sink to be called whenever uri is updated.
func (s *Subscriptions) Subscribe(uri string, sink UpdateSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks[uri] = append(s.sinks[uri], sink)
}

// Unsubscribe removes every sink registered for uri.
func (s *Subscriptions) Unsubscribe(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, uri)
}

// Publish invokes every sink subscribed to uri.
func (s *Subscriptions) Publish(uri string) {
	s.mu.Lock()
	sinks := append([]UpdateSink(nil), s.sinks[uri]...)
	s.mu.Unlock()
	for _, sink := range sinks {
		sink(uri)
	}
}
