// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package monitor runs the periodic control loop: every tick it evaluates
// each active deployment, derives a rollout decision, and executes it. A
// failure for one deployment never disturbs the others; the deployment is
// simply skipped until the next tick.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/canaryd/internal/config"
	"github.com/tomtom215/canaryd/internal/deploy"
	"github.com/tomtom215/canaryd/internal/engine"
	"github.com/tomtom215/canaryd/internal/evaluator"
	"github.com/tomtom215/canaryd/internal/executor"
	"github.com/tomtom215/canaryd/internal/metrics"
	"github.com/tomtom215/canaryd/internal/models"
)

// Scheduler drives the evaluate-decide-execute cycle on a fixed interval.
type Scheduler struct {
	store     *deploy.Store
	evaluator *evaluator.Evaluator
	engine    *engine.Engine
	executor  *executor.Executor
	logger    zerolog.Logger

	interval    time.Duration
	evalTimeout time.Duration
	semaphore   chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewScheduler creates a monitoring scheduler.
func NewScheduler(cfg config.MonitorConfig, store *deploy.Store, ev *evaluator.Evaluator, eng *engine.Engine, exec *executor.Executor, logger *zerolog.Logger) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	evalTimeout := cfg.EvaluationTimeout
	if evalTimeout <= 0 {
		evalTimeout = 30 * time.Second
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	return &Scheduler{
		store:       store,
		evaluator:   ev,
		engine:      eng,
		executor:    exec,
		logger:      logger.With().Str("component", "monitor").Logger(),
		interval:    interval,
		evalTimeout: evalTimeout,
		semaphore:   make(chan struct{}, maxConcurrent),
	}
}

// Start launches the monitoring loop. The first tick runs immediately so a
// restart does not wait a full interval before resuming oversight.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("monitor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(runCtx)
	s.logger.Info().Dur("interval", s.interval).Msg("Monitoring loop started")
	return nil
}

// Stop halts the loop and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info().Msg("Monitoring loop stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates all active deployments, bounded by the concurrency
// semaphore. Blocks until every deployment of this tick has finished.
func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	active := s.store.Active()

	var wg sync.WaitGroup
	for _, dep := range active {
		select {
		case s.semaphore <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func(dep *models.CanaryDeployment) {
			defer wg.Done()
			defer func() { <-s.semaphore }()
			s.process(ctx, dep)
		}(dep)
	}
	wg.Wait()

	metrics.MonitorTickDuration.Observe(time.Since(start).Seconds())
	if len(active) > 0 {
		s.logger.Debug().
			Int("deployments", len(active)).
			Dur("duration", time.Since(start)).
			Msg("Monitoring tick completed")
	}
}

// process runs one deployment's evaluate-decide-execute cycle under the
// per-deployment timeout. Panics and errors are contained here.
func (s *Scheduler) process(ctx context.Context, dep *models.CanaryDeployment) {
	defer func() {
		if r := recover(); r != nil {
			metrics.MonitorDeploymentsSkipped.Inc()
			s.logger.Error().
				Str("deployment_id", dep.ID).
				Interface("panic", r).
				Msg("Panic during deployment monitoring")
		}
	}()

	evalCtx, cancel := context.WithTimeout(ctx, s.evalTimeout)
	defer cancel()

	snapshot, err := s.evaluator.Evaluate(evalCtx, dep)
	if err != nil {
		metrics.MonitorDeploymentsSkipped.Inc()
		s.logger.Warn().Err(err).Str("deployment_id", dep.ID).Msg("Evaluation failed, skipping deployment this tick")
		return
	}

	decision := s.engine.Decide(dep, snapshot, time.Now().UTC())
	if _, err := s.executor.Execute(evalCtx, decision); err != nil {
		metrics.MonitorDeploymentsSkipped.Inc()
		s.logger.Warn().
			Err(err).
			Str("deployment_id", dep.ID).
			Str("action", string(decision.Action)).
			Msg("Decision execution failed, state unchanged")
	}
}
