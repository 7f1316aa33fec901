// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/canaryd/config.yaml",
	"/etc/canaryd/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Transform env var names to koanf paths: MONITOR_INTERVAL ->
	// monitor.interval, REGISTRY_URL -> registry.url.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment variables cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Model registry collaborator
		"registry_url":               "registry.url",
		"registry_timeout":           "registry.timeout",
		"registry_breaker_threshold": "registry.breaker.failure_threshold",
		"registry_breaker_interval":  "registry.breaker.interval",
		"registry_breaker_timeout":   "registry.breaker.timeout",

		// Metrics gateway collaborator
		"metrics_gateway_url":               "metrics_gateway.url",
		"metrics_gateway_timeout":           "metrics_gateway.timeout",
		"metrics_gateway_breaker_threshold": "metrics_gateway.breaker.failure_threshold",
		"metrics_gateway_breaker_interval":  "metrics_gateway.breaker.interval",
		"metrics_gateway_breaker_timeout":   "metrics_gateway.breaker.timeout",

		// Monitoring loop
		"monitor_interval":           "monitor.interval",
		"monitor_evaluation_timeout": "monitor.evaluation_timeout",
		"monitor_max_concurrent":     "monitor.max_concurrent",

		// Rollout gates
		"rollout_min_health_score":      "rollout.min_health_score",
		"rollout_completion_confidence": "rollout.completion_confidence",

		// Deployment store
		"store_persistence": "store.persistence",
		"store_path":        "store.path",

		// Traffic router
		"router_record_buffer": "router.record_buffer",
		"router_record_rate":   "router.record_rate_per_second",
		"router_record_burst":  "router.record_burst",

		// Observability server
		"server_enabled":    "server.enabled",
		"http_host":         "server.host",
		"http_port":         "server.port",
		"http_timeout":      "server.timeout",
		"rate_limit_reqs":   "server.rate_limit_reqs",
		"rate_limit_window": "server.rate_limit_window",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
