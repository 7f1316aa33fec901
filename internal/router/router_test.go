// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package router

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/canaryd/internal/config"
	"github.com/tomtom215/canaryd/internal/events"
	"github.com/tomtom215/canaryd/internal/logging"
	"github.com/tomtom215/canaryd/internal/models"
)

type fakeSource struct {
	mu          sync.Mutex
	deployments []*models.CanaryDeployment
}

func (s *fakeSource) Active() []*models.CanaryDeployment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.CanaryDeployment, len(s.deployments))
	copy(out, s.deployments)
	return out
}

type fakeSelector struct {
	model *models.Model
	err   error
}

func (s *fakeSelector) SelectDefaultModel(context.Context, string) (*models.Model, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.model, nil
}

func activeDeployment(id string, canaryShare int) *models.CanaryDeployment {
	return &models.CanaryDeployment{
		ID:                id,
		ProductionModelID: "model-prod",
		CanaryModelID:     "model-canary",
		TrafficSplit:      models.TrafficSplit{Production: 100 - canaryShare, Canary: canaryShare},
		Status:            models.StatusActive,
	}
}

func newTestRouter(t *testing.T, source DeploymentSource, selector *fakeSelector, opts ...Option) *Router {
	t.Helper()
	logger := logging.NewTestLogger(io.Discard)
	bus := events.NewBus(events.DefaultConfig(), &logger)
	t.Cleanup(func() { _ = bus.Close() })

	cfg := config.RouterConfig{RecordBuffer: 64}
	return New(cfg, source, selector, bus, &logger, opts...)
}

func TestRouteDistribution(t *testing.T) {
	source := &fakeSource{deployments: []*models.CanaryDeployment{activeDeployment("cd-1", 30)}}
	rng := rand.New(rand.NewSource(1))
	r := newTestRouter(t, source, &fakeSelector{}, WithRand(rng.Float64))

	const total = 10000
	canary := 0
	for i := 0; i < total; i++ {
		dec, err := r.Route(context.Background(), Request{AgentType: "chat"})
		if err != nil {
			t.Fatalf("Route: %v", err)
		}
		if dec.IsCanary {
			canary++
			if dec.SelectedModelID != "model-canary" {
				t.Fatalf("canary decision selected %s", dec.SelectedModelID)
			}
		} else if dec.SelectedModelID != "model-prod" {
			t.Fatalf("production decision selected %s", dec.SelectedModelID)
		}
	}

	share := float64(canary) / total * 100
	if share < 27 || share > 33 {
		t.Errorf("canary share = %.1f%%, want 30%% +-3", share)
	}
}

func TestRouteBoundarySplits(t *testing.T) {
	tests := []struct {
		name       string
		share      int
		wantCanary bool
	}{
		{"zero percent never routes canary", 0, false},
		{"hundred percent always routes canary", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{deployments: []*models.CanaryDeployment{activeDeployment("cd-1", tt.share)}}
			rng := rand.New(rand.NewSource(7))
			r := newTestRouter(t, source, &fakeSelector{}, WithRand(rng.Float64))

			for i := 0; i < 1000; i++ {
				dec, err := r.Route(context.Background(), Request{AgentType: "chat"})
				if err != nil {
					t.Fatalf("Route: %v", err)
				}
				if dec.IsCanary != tt.wantCanary {
					t.Fatalf("request %d routed IsCanary=%v, want %v", i, dec.IsCanary, tt.wantCanary)
				}
			}
		})
	}
}

func TestRouteFallbackWithoutActiveDeployment(t *testing.T) {
	selector := &fakeSelector{model: &models.Model{ID: "model-default"}}
	r := newTestRouter(t, &fakeSource{}, selector)

	dec, err := r.Route(context.Background(), Request{AgentType: "chat"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.SelectedModelID != "model-default" || dec.IsCanary {
		t.Errorf("fallback decision = %+v", dec)
	}
	if dec.DeploymentID != "" {
		t.Error("fallback decision must not reference a deployment")
	}
	if dec.RequestID == "" {
		t.Error("request id was not assigned")
	}
}

func TestRouteFallbackError(t *testing.T) {
	selector := &fakeSelector{err: errors.New("no models registered")}
	r := newTestRouter(t, &fakeSource{}, selector)

	if _, err := r.Route(context.Background(), Request{AgentType: "chat"}); err == nil {
		t.Fatal("Route should propagate selector failure")
	}
}

func TestRouteScopePredicate(t *testing.T) {
	source := &fakeSource{deployments: []*models.CanaryDeployment{
		activeDeployment("cd-chat", 100),
		activeDeployment("cd-search", 100),
	}}
	scope := func(dep *models.CanaryDeployment, req Request) bool {
		return dep.ID == "cd-"+req.AgentType
	}
	rng := rand.New(rand.NewSource(3))
	r := newTestRouter(t, source, &fakeSelector{model: &models.Model{ID: "model-default"}},
		WithScope(scope), WithRand(rng.Float64))

	dec, err := r.Route(context.Background(), Request{AgentType: "search"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.DeploymentID != "cd-search" {
		t.Errorf("scoped request routed to %s, want cd-search", dec.DeploymentID)
	}

	dec, err = r.Route(context.Background(), Request{AgentType: "vision"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if dec.DeploymentID != "" || dec.SelectedModelID != "model-default" {
		t.Errorf("out-of-scope request = %+v, want fallback", dec)
	}
}

func TestRouteNeverBlocksOnFullRecordQueue(t *testing.T) {
	source := &fakeSource{deployments: []*models.CanaryDeployment{activeDeployment("cd-1", 50)}}
	logger := logging.NewTestLogger(io.Discard)
	bus := events.NewBus(events.DefaultConfig(), &logger)
	t.Cleanup(func() { _ = bus.Close() })

	// Tiny queue, no recorder draining it.
	r := New(config.RouterConfig{RecordBuffer: 2}, source, &fakeSelector{}, bus, &logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			if _, err := r.Route(context.Background(), Request{AgentType: "chat"}); err != nil {
				t.Errorf("Route: %v", err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("routing blocked on a full record queue")
	}
}

func TestServePublishesRoutingEvents(t *testing.T) {
	source := &fakeSource{deployments: []*models.CanaryDeployment{activeDeployment("cd-1", 100)}}
	logger := logging.NewTestLogger(io.Discard)
	bus := events.NewBus(events.DefaultConfig(), &logger)
	t.Cleanup(func() { _ = bus.Close() })

	r := New(config.RouterConfig{RecordBuffer: 16}, source, &fakeSelector{}, bus, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, events.TopicRequestRecorded)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	go func() { _ = r.Serve(ctx) }()

	dec, err := r.Route(ctx, Request{AgentType: "chat", RequestID: "req-42"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	select {
	case msg := <-msgs:
		ev, err := events.DecodeRoutingEvent(msg.Payload)
		if err != nil {
			t.Fatalf("decode routing event: %v", err)
		}
		msg.Ack()
		if ev.Decision.RequestID != "req-42" || ev.Decision.SelectedModelID != dec.SelectedModelID {
			t.Errorf("event decision = %+v, want %+v", ev.Decision, dec)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("routing event was not published")
	}
}
