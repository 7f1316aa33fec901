// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package router implements percentage-based traffic splitting between
// production and canary models. Routing is a hot path: it takes one read
// lock on the deployment store, one random draw, and never blocks on
// audit recording.
package router

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/canaryd/internal/config"
	"github.com/tomtom215/canaryd/internal/events"
	"github.com/tomtom215/canaryd/internal/metrics"
	"github.com/tomtom215/canaryd/internal/models"
	"github.com/tomtom215/canaryd/internal/registry"
)

// Request carries what the router needs to pick a model for one inference
// request.
type Request struct {
	// RequestID is assigned when empty.
	RequestID string
	AgentType string
}

// DeploymentSource yields the active deployments considered for routing.
type DeploymentSource interface {
	Active() []*models.CanaryDeployment
}

// ScopePredicate reports whether an active deployment applies to a
// request. The first active deployment matching the predicate routes the
// request; remaining deployments are not consulted.
type ScopePredicate func(dep *models.CanaryDeployment, req Request) bool

// MatchAll is the default scope: every active deployment applies to every
// request.
func MatchAll(*models.CanaryDeployment, Request) bool { return true }

// Router routes requests between production and canary models according
// to each deployment's current traffic split, falling back to the default
// model selector when no active deployment is in scope.
type Router struct {
	source   DeploymentSource
	fallback registry.DefaultModelSelector
	scope    ScopePredicate
	bus      *events.Bus
	logger   zerolog.Logger

	// rnd returns a uniform draw in [0,1). Injectable for deterministic
	// distribution tests; the default is a locked math/rand source.
	rnd func() float64

	recordCh chan models.RoutingDecision
	limiter  *rate.Limiter
}

// Option customizes a Router.
type Option func(*Router)

// WithScope replaces the deployment scope predicate.
func WithScope(scope ScopePredicate) Option {
	return func(r *Router) { r.scope = scope }
}

// WithRand replaces the random source. f must return values in [0,1).
func WithRand(f func() float64) Option {
	return func(r *Router) { r.rnd = f }
}

// New creates a Router.
func New(cfg config.RouterConfig, source DeploymentSource, fallback registry.DefaultModelSelector, bus *events.Bus, logger *zerolog.Logger, opts ...Option) *Router {
	buffer := cfg.RecordBuffer
	if buffer <= 0 {
		buffer = 1024
	}

	var limiter *rate.Limiter
	if cfg.RecordRatePerSecond > 0 {
		burst := cfg.RecordBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RecordRatePerSecond), burst)
	}

	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	var mu sync.Mutex
	r := &Router{
		source:   source,
		fallback: fallback,
		scope:    MatchAll,
		bus:      bus,
		logger:   logger.With().Str("component", "router").Logger(),
		rnd: func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return src.Float64()
		},
		recordCh: make(chan models.RoutingDecision, buffer),
		limiter:  limiter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route picks a model for the request. The first in-scope active
// deployment splits traffic by percentage; with no in-scope deployment the
// default selector decides. The returned decision is also queued for
// best-effort audit recording.
func (r *Router) Route(ctx context.Context, req Request) (models.RoutingDecision, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	for _, dep := range r.source.Active() {
		if !r.scope(dep, req) {
			continue
		}

		isCanary := r.rnd()*100 < float64(dep.TrafficSplit.Canary)
		modelID := dep.ProductionModelID
		if isCanary {
			modelID = dep.CanaryModelID
		}

		decision := models.RoutingDecision{
			DeploymentID:    dep.ID,
			RequestID:       req.RequestID,
			SelectedModelID: modelID,
			IsCanary:        isCanary,
			Timestamp:       time.Now().UTC(),
		}
		metrics.RecordRouting(isCanary, false)
		r.record(decision)
		return decision, nil
	}

	model, err := r.fallback.SelectDefaultModel(ctx, req.AgentType)
	if err != nil {
		return models.RoutingDecision{}, err
	}

	decision := models.RoutingDecision{
		RequestID:       req.RequestID,
		SelectedModelID: model.ID,
		IsCanary:        false,
		Timestamp:       time.Now().UTC(),
	}
	metrics.RecordRouting(false, true)
	r.record(decision)
	return decision, nil
}

// record queues a routing decision for async publication. Never blocks:
// when the queue is full or the rate cap is exceeded the decision is
// dropped and counted.
func (r *Router) record(decision models.RoutingDecision) {
	if r.limiter != nil && !r.limiter.Allow() {
		metrics.RoutingRecordsDropped.Inc()
		return
	}
	select {
	case r.recordCh <- decision:
	default:
		metrics.RoutingRecordsDropped.Inc()
	}
}

// Serve drains the recording queue, publishing each decision as a
// routing.request.recorded event. Runs until ctx is canceled; intended to
// be supervised.
func (r *Router) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case decision := <-r.recordCh:
			r.bus.PublishRouting(decision)
		}
	}
}
