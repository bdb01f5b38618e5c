package mcptest

import (
	"context"

	"github.com/flowmcp/mcpcore/transport"
	"github.com/flowmcp/mcpcore/transport/inmem"
)

// Pipe returns two connected in-memory transports, named for their
// conventional role in a test: the client drives requests against
// server, which a fake or real handler serves.
func Pipe() (client transport.Transport, server transport.Transport) {
	return inmem.Pair()
}

// RunFakeServer starts Serve(ctx, server, cfg) in a goroutine and returns a
// channel that receives its terminal error (nil on clean shutdown).
func RunFakeServer(ctx context.Context, server transport.Transport, cfg Config) <-chan error {
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, server, cfg) }()
	return done
}
