// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package events

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/canaryd/internal/logging"
	"github.com/tomtom215/canaryd/internal/models"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	logger := logging.NewTestLogger(io.Discard)
	bus := NewBus(DefaultConfig(), &logger)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestPublishDeploymentRoundTrip(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, TopicDeploymentCreated)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	dep := &models.CanaryDeployment{
		ID:                "cd-1",
		Name:              "event test",
		ProductionModelID: "model-prod",
		CanaryModelID:     "model-canary",
		TrafficSplit:      models.TrafficSplit{Production: 100, Canary: 0},
		Status:            models.StatusPreparing,
	}
	bus.PublishDeployment(TopicDeploymentCreated, dep)

	select {
	case msg := <-msgs:
		ev, err := DecodeDeploymentEvent(msg.Payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		msg.Ack()
		if ev.Deployment.ID != "cd-1" || ev.Deployment.Status != models.StatusPreparing {
			t.Errorf("event deployment = %+v", ev.Deployment)
		}
		if ev.OccurredAt.IsZero() {
			t.Error("event has no timestamp")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("deployment event was not delivered")
	}
}

func TestPublishDecisionRoundTrip(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, TopicDecisionExecuted)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	dec := &models.RolloutDecision{
		DeploymentID: "cd-1",
		Action:       models.ActionContinue,
		Reason:       "advancing canary traffic 10% -> 20%",
	}
	bus.PublishDecision(dec, &models.CanaryDeployment{ID: "cd-1", Status: models.StatusActive})

	select {
	case msg := <-msgs:
		ev, err := DecodeDecisionEvent(msg.Payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		msg.Ack()
		if ev.Decision.Action != models.ActionContinue || ev.Deployment.ID != "cd-1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("decision event was not delivered")
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := newTestBus(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			bus.PublishRouting(models.RoutingDecision{RequestID: "req", SelectedModelID: "model-prod"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing without subscribers blocked")
	}
}
