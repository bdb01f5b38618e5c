// Package pool implements a bounded connection pool for pooled transport
// connections: acquire/release with health checks, an idle reaper, a
// maximum-lifetime recycle policy, and atomic usage statistics.
//
// There is no Go donor analogue for this component — the closest
// donor code, the process supervisor, manages OS subprocesses rather than
// pooled transports — so the acquire/release/reaper control flow here is
// translated from the connection-pool manager of the reference
// implementation this module's specification was distilled from.
package pool

import "time"

// Config governs pool sizing, timeouts, and health-check behavior.
type Config struct {
	// MaxConnections caps the total number of connections, idle + in use.
	MaxConnections int
	// MinConnections is the floor the idle reaper will not shrink below,
	// and the count warmed up at construction when WarmUp is set.
	MinConnections int
	// IdleTimeout is how long a connection may sit idle before the
	// reaper (or a subsequent Acquire) closes it.
	IdleTimeout time.Duration
	// AcquireTimeout bounds how long Acquire will wait for capacity.
	AcquireTimeout time.Duration
	// HealthCheckInterval is how often the background reaper sweeps the
	// idle set for expired or unhealthy connections.
	HealthCheckInterval time.Duration
	// TestOnAcquire checks IsConnected before handing out an idle
	// connection, discarding it and trying the next if unhealthy.
	TestOnAcquire bool
	// TestOnRelease checks IsConnected before returning a connection to
	// the idle set, discarding it instead if unhealthy.
	TestOnRelease bool
	// MaxConnectionLifetime forcibly recycles a connection once its age
	// exceeds this, regardless of health. Zero disables the limit.
	MaxConnectionLifetime time.Duration
	// WarmUp pre-creates MinConnections connections at construction.
	WarmUp bool
}

// DefaultConfig mirrors the reference implementation's defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnections:      10,
		MinConnections:      1,
		IdleTimeout:         5 * time.Minute,
		AcquireTimeout:      30 * time.Second,
		HealthCheckInterval: time.Minute,
		TestOnAcquire:       true,
		TestOnRelease:       false,
	}
}

// Stats is a point-in-time snapshot of pool activity counters.
type Stats struct {
	ConnectionsCreated uint64
	ConnectionsClosed  uint64
	Acquires           uint64
	Releases           uint64
	Timeouts           uint64
	InUse              int
	Idle               int
	RecycledLifetime   uint64
	RecycledHealth     uint64
	PeakInUse          int
}
