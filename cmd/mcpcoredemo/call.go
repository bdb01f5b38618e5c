package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowmcp/mcpcore/capability"
	"github.com/flowmcp/mcpcore/connection"
	"github.com/flowmcp/mcpcore/registry"
	"github.com/flowmcp/mcpcore/transport/stdio"
)

var callArgsJSON string

var callCmd = &cobra.Command{
	Use:   "call <tool-name>",
	Short: "Spawn a demo server subprocess and call one of its tools",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().StringVar(&callArgsJSON, "args", "{}", "JSON object of tool arguments")
	rootCmd.AddCommand(callCmd)
}

// spawnServer starts this same binary's "serve" subcommand as a child
// process and wires its stdin/stdout into a stdio.Transport, grounded on
// the donor's internal/process/supervisor.go subprocess spawning pattern
// (exec.CommandContext + StdinPipe/StdoutPipe), without the donor's PID
// tracking and restart supervision.
func spawnServer(ctx context.Context) (*exec.Cmd, *stdio.Transport, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.CommandContext(ctx, self, "serve")
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start subprocess: %w", err)
	}

	return cmd, stdio.New(stdin, stdout, 0), nil
}

func runCall(cmd *cobra.Command, args []string) error {
	toolName := args[0]

	var toolArgs json.RawMessage
	if err := json.Unmarshal([]byte(callArgsJSON), &toolArgs); err != nil {
		return fmt.Errorf("--args is not valid JSON: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	child, t, err := spawnServer(ctx)
	if err != nil {
		return err
	}
	defer child.Wait()

	conn := connection.New(connection.Options{
		Info: capability.Implementation{Name: "mcpcoredemo-client", Version: version},
	})
	if err := conn.Connect(ctx, t); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := conn.InitializeAsClient(ctx, capability.ClientCapabilities{}); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer conn.Close(context.Background())

	params := registry.ToolCallParams{Name: toolName, Arguments: toolArgs}
	raw, err := conn.Call(ctx, registry.MethodToolsCall, params, capability.Tools)
	if err != nil {
		return fmt.Errorf("tools/call %s: %w", toolName, err)
	}

	var result registry.ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	for _, block := range result.Content {
		fmt.Println(string(block))
	}
	return nil
}
