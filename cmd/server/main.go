// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package main is the entry point for the Canaryd control plane.
//
// Canaryd manages progressive rollouts of new model versions: it splits
// live traffic between a production and a canary model, periodically
// compares their windowed metrics, and advances, pauses, rolls back, or
// completes each rollout according to its configured criteria.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered loading via Koanf v2 (defaults, config.yaml,
//     environment variables)
//  2. Deployment store: in-memory record arena, optionally persisted to
//     BadgerDB and reloaded on restart
//  3. Event bus: in-process Watermill Pub/Sub for lifecycle events
//  4. External clients: model registry and metrics gateway, each behind a
//     circuit breaker
//  5. Control loop: evaluator, decision engine, executor, and the
//     monitoring scheduler driving them
//  6. Supervision: a Suture tree with control, recording, and API layers
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the supervisor
// tree stops all services, then the store and bus are closed.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/canaryd/internal/config"
	"github.com/tomtom215/canaryd/internal/deploy"
	"github.com/tomtom215/canaryd/internal/engine"
	"github.com/tomtom215/canaryd/internal/evaluator"
	"github.com/tomtom215/canaryd/internal/events"
	"github.com/tomtom215/canaryd/internal/executor"
	"github.com/tomtom215/canaryd/internal/logging"
	"github.com/tomtom215/canaryd/internal/metricsgw"
	"github.com/tomtom215/canaryd/internal/monitor"
	"github.com/tomtom215/canaryd/internal/registry"
	"github.com/tomtom215/canaryd/internal/router"
	"github.com/tomtom215/canaryd/internal/server"
	"github.com/tomtom215/canaryd/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()
	logger.Info().Msg("Starting canaryd")

	var persister deploy.Persister
	if cfg.Store.Persistence {
		p, err := deploy.OpenBadgerPersister(cfg.Store.Path)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open deployment store")
		}
		persister = p
	}

	store, err := deploy.NewStore(persister)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load deployment state")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close deployment store")
		}
	}()

	bus := events.NewBus(events.DefaultConfig(), &logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close event bus")
		}
	}()

	registryClient := registry.NewHTTPClient(cfg.Registry)
	gatewayClient := metricsgw.NewHTTPClient(cfg.Gateway)

	sink := deploy.NewLoggingSink(&logger)
	manager := deploy.NewManager(store, registryClient, sink, bus, cfg.Rollout.MinHealthScore, &logger)

	trafficRouter := router.New(cfg.Router, store, registry.NewRegistrySelector(registryClient), bus, &logger)

	eval := evaluator.New(gatewayClient, store, &logger)
	eng := engine.New(cfg.Rollout.CompletionConfidence)
	exec := executor.New(manager, &logger)
	scheduler := monitor.NewScheduler(cfg.Monitor, store, eval, eng, exec, &logger)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build supervisor tree")
	}

	tree.AddControlService(supervisor.NewMonitorService("monitor", scheduler))
	tree.AddRecordingService(trafficRouter)
	if cfg.Server.Enabled {
		api := server.New(cfg.Server, manager, &logger)
		tree.AddAPIService(supervisor.NewHTTPService("http-api", api.HTTPServer(), cfg.Server.Timeout))
		logger.Info().Int("port", cfg.Server.Port).Msg("Observability API enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Supervisor tree exited")
		os.Exit(1)
	}
	logger.Info().Msg("Shutdown complete")
}
