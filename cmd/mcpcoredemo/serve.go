package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowmcp/mcpcore/capability"
	"github.com/flowmcp/mcpcore/connection"
	"github.com/flowmcp/mcpcore/jsonrpc"
	"github.com/flowmcp/mcpcore/observability"
	"github.com/flowmcp/mcpcore/peer"
	"github.com/flowmcp/mcpcore/registry"
	"github.com/flowmcp/mcpcore/runtimeconfig"
	"github.com/flowmcp/mcpcore/transport"
	"github.com/flowmcp/mcpcore/transport/stdio"
)

// demoLatency records Call/dispatch latency shared by the serve and
// dashboard commands when they run in the same process (see dashboard.go).
var demoLatency = observability.NewHistogram()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as an MCP server over stdio, exposing the demo tools",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type echoArgs struct {
	Text string `json:"text"`
}

type sleepArgs struct {
	Milliseconds int `json:"milliseconds"`
}

func toolsListHandler(_ json.RawMessage, _ registry.Context) (json.RawMessage, error) {
	return json.Marshal(registry.ToolsListResult{
		Tools: []registry.ToolDescriptor{
			{Name: "echo", Description: "Echoes back the given text"},
			{Name: "sleep", Description: "Sleeps for the given number of milliseconds"},
		},
	})
}

func toolsCallHandler(params json.RawMessage, ctx registry.Context) (json.RawMessage, error) {
	var call registry.ToolCallParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, jsonrpc.ErrInvalidParams("tools/call: " + err.Error())
	}

	switch call.Name {
	case "echo":
		var args echoArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, jsonrpc.ErrInvalidParams("echo: " + err.Error())
		}
		return toolResultText(args.Text)

	case "sleep":
		var args sleepArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, jsonrpc.ErrInvalidParams("sleep: " + err.Error())
		}
		select {
		case <-time.After(time.Duration(args.Milliseconds) * time.Millisecond):
		case <-ctx.Done():
			return nil, jsonrpc.ErrCancelled(ctx.RequestID.String())
		}
		if ctx.Cancelled() {
			return nil, jsonrpc.ErrCancelled(ctx.RequestID.String())
		}
		return toolResultText(fmt.Sprintf("slept %dms", args.Milliseconds))

	default:
		return nil, jsonrpc.ErrToolExecution(call.Name, "unknown tool")
	}
}

func toolResultText(text string) (json.RawMessage, error) {
	block, err := json.Marshal(map[string]string{"type": "text", "text": text})
	if err != nil {
		return nil, err
	}
	return json.Marshal(registry.ToolCallResult{Content: []registry.ContentBlock{registry.ContentBlock(block)}})
}

func runServe(cmd *cobra.Command, args []string) error {
	log.SetOutput(os.Stderr)

	cfg, err := runtimeconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load runtime config: %w", err)
	}

	reg := registry.New()
	reg.Register(registry.MethodToolsList, toolsListHandler)
	reg.Register(registry.MethodToolsCall, toolsCallHandler)

	conn := connection.New(connection.Options{
		Info:        capability.Implementation{Name: "mcpcoredemo", Version: version},
		Registry:    reg,
		PeerOptions: peer.Options{Latency: demoLatency},
	})
	conn.PrepareServer(capability.ServerCapabilities{Tools: map[string]any{}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	watcher, err := runtimeconfig.NewWatcher(configPath)
	if err != nil {
		log.Printf("config hot-reload disabled: %v", err)
	} else {
		defer watcher.Close()
		go watchRuntimeConfig(ctx, watcher, &cfg)
	}

	// The server writes responses to its own stdout and reads requests from
	// its own stdin; transport/stdio.New is symmetric, so the OS streams are
	// wired in the opposite slots from a client's perspective.
	var t transport.Transport = stdio.New(os.Stdout, os.Stdin, 0)
	t = transport.WithTimeout(t, transport.TimeoutConfig{SendTimeout: cfg.Middleware.SendTimeout})
	if err := conn.Connect(ctx, t); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	<-ctx.Done()
	return conn.Close(context.Background())
}

// watchRuntimeConfig logs each hot-reloaded config. Applying it to the
// already-negotiated send-timeout layer would require rebuilding the
// middleware chain mid-connection; this demo keeps that out of scope and
// just reports what changed, the way the donor's applyReload logged before
// rebuilding its own heavier state.
func watchRuntimeConfig(ctx context.Context, w *runtimeconfig.Watcher, current *runtimeconfig.RuntimeConfig) {
	for {
		select {
		case <-ctx.Done():
			return
		case next := <-w.Changes():
			log.Printf("runtime config reloaded: sendTimeout=%s maxConnections=%d",
				next.Middleware.SendTimeout, next.Pool.MaxConnections)
			*current = next
		}
	}
}
