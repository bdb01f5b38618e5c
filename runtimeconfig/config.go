// Package runtimeconfig loads the middleware/pool/observability tuning
// knobs from a JSON file and hot-reloads them on atomic file replace,
// grounded on the donor's internal/config/config.go (Load/Save, atomic
// temp-file-plus-rename write) and internal/server/server.go's watchConfig
// (parent-directory fsnotify watch with a debounce timer).
package runtimeconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RuntimeConfig holds the subset of settings this module's components may
// have changed out from under them at runtime: transport middleware
// thresholds, pool sizing, and an observability toggle. Anything not
// listed here (protocol versions, capability sets, wire formats) is fixed
// at connection time and is never part of a hot reload.
type RuntimeConfig struct {
	Middleware MiddlewareConfig `json:"middleware"`
	Pool       PoolConfig       `json:"pool"`
	Tracing    TracingConfig    `json:"tracing"`
}

// MiddlewareConfig mirrors the knobs transport.WithTimeout/WithRetry/
// WithRateLimit accept.
type MiddlewareConfig struct {
	SendTimeout  time.Duration `json:"sendTimeout"`
	RetryEnabled bool          `json:"retryEnabled"`
	MaxAttempts  int           `json:"maxAttempts"`
	RateLimitRPS float64       `json:"rateLimitRPS"`
	RateLimitBurst int         `json:"rateLimitBurst"`
}

// PoolConfig mirrors the subset of pool.Config that is safe to change
// without tearing down already-pooled connections.
type PoolConfig struct {
	MaxConnections int           `json:"maxConnections"`
	MinConnections int           `json:"minConnections"`
	IdleTimeout    time.Duration `json:"idleTimeout"`
	AcquireTimeout time.Duration `json:"acquireTimeout"`
}

// TracingConfig toggles optional OpenTelemetry span emission.
type TracingConfig struct {
	Enabled bool `json:"enabled"`
}

// Default returns the baseline configuration used when no file exists yet.
func Default() RuntimeConfig {
	return RuntimeConfig{
		Middleware: MiddlewareConfig{
			SendTimeout:    30 * time.Second,
			RetryEnabled:   true,
			MaxAttempts:    3,
			RateLimitRPS:   50,
			RateLimitBurst: 10,
		},
		Pool: PoolConfig{
			MaxConnections: 10,
			MinConnections: 1,
			IdleTimeout:    5 * time.Minute,
			AcquireTimeout: 30 * time.Second,
		},
	}
}

// Load reads path, returning Default() if the file does not exist.
func Load(path string) (RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return RuntimeConfig{}, fmt.Errorf("runtimeconfig: read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("runtimeconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically via a temp-file-plus-rename, so a
// concurrent watcher never observes a partially written file.
func Save(path string, cfg RuntimeConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("runtimeconfig: create dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("runtimeconfig: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("runtimeconfig: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("runtimeconfig: rename into place: %w", err)
	}
	return nil
}
