package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowmcp/mcpcore/pool"
	"github.com/flowmcp/mcpcore/runtimeconfig"
	"github.com/flowmcp/mcpcore/transport"
	"github.com/flowmcp/mcpcore/transport/inmem"
)

var (
	poolStatsAcquireCount int
	poolStatsMax          int
)

var poolStatsCmd = &cobra.Command{
	Use:   "pool-stats",
	Short: "Exercise an in-memory connection pool and print its stats as JSON",
	RunE:  runPoolStats,
}

func init() {
	poolStatsCmd.Flags().IntVar(&poolStatsAcquireCount, "acquire", 5, "number of connections to acquire in sequence")
	poolStatsCmd.Flags().IntVar(&poolStatsMax, "max", 0, "pool MaxConnections (0 uses the runtime config value)")
	rootCmd.AddCommand(poolStatsCmd)
}

// poolConfigFrom builds a pool.Config from the on-disk runtime config,
// letting an explicit --max flag override it.
func poolConfigFrom(rc runtimeconfig.RuntimeConfig, maxOverride int) pool.Config {
	cfg := pool.DefaultConfig()
	cfg.MaxConnections = rc.Pool.MaxConnections
	cfg.MinConnections = rc.Pool.MinConnections
	cfg.IdleTimeout = rc.Pool.IdleTimeout
	cfg.AcquireTimeout = rc.Pool.AcquireTimeout
	if maxOverride > 0 {
		cfg.MaxConnections = maxOverride
	}
	return cfg
}

// inmemFactory hands the pool one side of a fresh in-memory pipe per
// connection; the other side is left unread, which is fine since nothing in
// this demo actually sends traffic over the pooled connections.
func inmemFactory(context.Context) (transport.Transport, error) {
	a, _ := inmem.Pair()
	return a, nil
}

func runPoolStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rc, err := runtimeconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load runtime config: %w", err)
	}
	cfg := poolConfigFrom(rc, poolStatsMax)

	p, err := pool.New(ctx, cfg, inmemFactory)
	if err != nil {
		return fmt.Errorf("pool.New: %w", err)
	}
	defer p.Close()

	for i := 0; i < poolStatsAcquireCount; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire %d: %w", i, err)
		}
		c.Release()
	}

	out, err := json.MarshalIndent(p.Stats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
