// Command mcpcoredemo exercises the mcpcore SDK end to end: a stdio server
// exposing a couple of demo tools, a client that drives it, a pool-stats
// probe, and a live stats dashboard. Grounded on the donor's cmd/mcpmu
// cobra wiring, adapted from a server-aggregator CLI to a protocol-engine
// demo CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// defaultConfigPath mirrors the donor's ~/.config/<product>/config.json
// convention, renamed to this module's own directory.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mcpcoredemo.json"
	}
	return filepath.Join(home, ".config", "mcpcoredemo", "config.json")
}

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "mcpcoredemo",
	Short:   "Demo CLI for the mcpcore MCP SDK",
	Version: version,
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the runtime config JSON file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
