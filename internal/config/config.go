// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package config defines the Canaryd configuration surface and its layered
// loading via Koanf v2 (defaults -> YAML file -> environment variables).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the canary control plane.
type Config struct {
	Registry RegistryConfig       `koanf:"registry"`
	Gateway  MetricsGatewayConfig `koanf:"metrics_gateway"`
	Monitor  MonitorConfig        `koanf:"monitor"`
	Rollout  RolloutConfig        `koanf:"rollout"`
	Store    StoreConfig          `koanf:"store"`
	Router   RouterConfig         `koanf:"router"`
	Server   ServerConfig         `koanf:"server"`
	Logging  LoggingConfig        `koanf:"logging"`
}

// BreakerConfig configures a sony/gobreaker circuit breaker guarding an
// external collaborator.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker.
	FailureThreshold uint32 `koanf:"failure_threshold"`

	// Interval is the cyclic period in the closed state for clearing counts.
	Interval time.Duration `koanf:"interval"`

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRequests is the number of probe requests allowed half-open.
	MaxRequests uint32 `koanf:"max_requests"`
}

// RegistryConfig points at the external model registry.
type RegistryConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	Breaker BreakerConfig `koanf:"breaker"`
}

// MetricsGatewayConfig points at the external time-series metrics store.
type MetricsGatewayConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	Breaker BreakerConfig `koanf:"breaker"`
}

// MonitorConfig controls the periodic monitoring loop.
type MonitorConfig struct {
	// Interval between monitoring ticks.
	Interval time.Duration `koanf:"interval"`

	// EvaluationTimeout bounds one deployment's evaluate-decide-execute
	// cycle. On timeout the deployment is skipped for that tick only.
	EvaluationTimeout time.Duration `koanf:"evaluation_timeout"`

	// MaxConcurrent caps how many deployments are evaluated in parallel
	// within one tick.
	MaxConcurrent int `koanf:"max_concurrent"`
}

// RolloutConfig holds the global rollout gates.
type RolloutConfig struct {
	// MinHealthScore is the canary health gate for start(), on a 0-100
	// scale.
	MinHealthScore float64 `koanf:"min_health_score"`

	// CompletionConfidence is the minimum evaluation confidence required
	// before a rollout may complete.
	CompletionConfidence float64 `koanf:"completion_confidence"`
}

// StoreConfig controls deployment-state persistence.
type StoreConfig struct {
	// Persistence enables the Badger-backed snapshot of deployment
	// records. When disabled the store is purely in-memory.
	Persistence bool `koanf:"persistence"`

	// Path is the Badger database directory.
	Path string `koanf:"path"`
}

// RouterConfig controls best-effort routing-decision recording.
type RouterConfig struct {
	// RecordBuffer is the size of the async recording queue; decisions
	// are dropped (never blocking the routing call) when it is full.
	RecordBuffer int `koanf:"record_buffer"`

	// RecordRatePerSecond caps how many routing decisions per second are
	// published for audit. Zero disables the cap.
	RecordRatePerSecond float64 `koanf:"record_rate_per_second"`

	// RecordBurst is the burst size for the recording rate limiter.
	RecordBurst int `koanf:"record_burst"`
}

// ServerConfig controls the read-only observability HTTP server.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig mirrors logging.Config for koanf unmarshaling.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			URL:     "http://127.0.0.1:8081",
			Timeout: 10 * time.Second,
			Breaker: defaultBreaker("model-registry"),
		},
		Gateway: MetricsGatewayConfig{
			URL:     "http://127.0.0.1:8082",
			Timeout: 10 * time.Second,
			Breaker: defaultBreaker("metrics-gateway"),
		},
		Monitor: MonitorConfig{
			Interval:          60 * time.Second,
			EvaluationTimeout: 30 * time.Second,
			MaxConcurrent:     8,
		},
		Rollout: RolloutConfig{
			MinHealthScore:       80,
			CompletionConfidence: 0.95,
		},
		Store: StoreConfig{
			Persistence: false,
			Path:        "/data/canaryd",
		},
		Router: RouterConfig{
			RecordBuffer:        1024,
			RecordRatePerSecond: 500,
			RecordBurst:         100,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            9080,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultBreaker(string) BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
	}
}

// Validate checks the configuration for values the control plane cannot
// operate with.
func (c *Config) Validate() error {
	if c.Registry.URL == "" {
		return fmt.Errorf("registry.url is required")
	}
	if c.Gateway.URL == "" {
		return fmt.Errorf("metrics_gateway.url is required")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.Monitor.EvaluationTimeout <= 0 {
		return fmt.Errorf("monitor.evaluation_timeout must be positive, got %s", c.Monitor.EvaluationTimeout)
	}
	if c.Monitor.MaxConcurrent <= 0 {
		return fmt.Errorf("monitor.max_concurrent must be positive, got %d", c.Monitor.MaxConcurrent)
	}
	if c.Rollout.MinHealthScore < 0 || c.Rollout.MinHealthScore > 100 {
		return fmt.Errorf("rollout.min_health_score must be in [0,100], got %g", c.Rollout.MinHealthScore)
	}
	if c.Rollout.CompletionConfidence < 0 || c.Rollout.CompletionConfidence > 1 {
		return fmt.Errorf("rollout.completion_confidence must be in [0,1], got %g", c.Rollout.CompletionConfidence)
	}
	if c.Store.Persistence && c.Store.Path == "" {
		return fmt.Errorf("store.path is required when store.persistence is enabled")
	}
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	return nil
}
