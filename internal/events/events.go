// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package events is the lifecycle event surface of the control plane.
//
// Consumers (API and observability layers) subscribe to topics without
// coupling to a concrete emitter: the bus is built on Watermill's
// message.Publisher/message.Subscriber interfaces, backed in-process by the
// gochannel Pub/Sub. A broker-backed binding can replace the backend without
// touching publishers or subscribers.
package events

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/tomtom215/canaryd/internal/models"
)

// Lifecycle topics.
const (
	TopicDeploymentCreated    = "deployment.created"
	TopicDeploymentStarted    = "deployment.started"
	TopicDeploymentPaused     = "deployment.paused"
	TopicDeploymentResumed    = "deployment.resumed"
	TopicDeploymentRolledBack = "deployment.rolledback"
	TopicDeploymentCompleted  = "deployment.completed"
	TopicDecisionExecuted     = "rollout.decision.executed"
	TopicRequestRecorded      = "routing.request.recorded"
)

// DeploymentEvent carries the full deployment record at emission time.
type DeploymentEvent struct {
	Deployment *models.CanaryDeployment `json:"deployment"`
	OccurredAt time.Time                `json:"occurred_at"`
}

// DecisionEvent carries an executed decision and the deployment it applied to.
type DecisionEvent struct {
	Decision   *models.RolloutDecision  `json:"decision"`
	Deployment *models.CanaryDeployment `json:"deployment"`
	OccurredAt time.Time                `json:"occurred_at"`
}

// RoutingEvent carries one per-request routing decision for metric
// attribution.
type RoutingEvent struct {
	Decision   models.RoutingDecision `json:"decision"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// DecodeDeploymentEvent unmarshals a deployment event payload.
func DecodeDeploymentEvent(payload []byte) (*DeploymentEvent, error) {
	var ev DeploymentEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// DecodeDecisionEvent unmarshals a decision event payload.
func DecodeDecisionEvent(payload []byte) (*DecisionEvent, error) {
	var ev DecisionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// DecodeRoutingEvent unmarshals a routing event payload.
func DecodeRoutingEvent(payload []byte) (*RoutingEvent, error) {
	var ev RoutingEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
