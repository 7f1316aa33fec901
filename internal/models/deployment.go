// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package models defines the domain types shared across the rollout control
// plane: canary deployments, their lifecycle states, evaluation snapshots,
// and the decision/routing value objects exchanged between components.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DeploymentStatus is the lifecycle state of a canary deployment.
type DeploymentStatus string

const (
	// StatusPreparing is the initial state after creation, before the
	// canary model has passed its health gate.
	StatusPreparing DeploymentStatus = "preparing"
	// StatusActive means live traffic is being split between the
	// production and canary models.
	StatusActive DeploymentStatus = "active"
	// StatusPaused means the rollout is suspended pending a human decision.
	StatusPaused DeploymentStatus = "paused"
	// StatusCompleted is terminal: the canary was promoted to production.
	StatusCompleted DeploymentStatus = "completed"
	// StatusFailed is terminal: the rollout failed outside the normal
	// rollback path.
	StatusFailed DeploymentStatus = "failed"
	// StatusRolledBack is terminal: traffic was reverted to 100% production.
	StatusRolledBack DeploymentStatus = "rolledback"
)

// IsTerminal reports whether the status admits no further transitions.
func (s DeploymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRolledBack || s == StatusFailed
}

// CanTransitionTo reports whether the state machine permits moving from s
// to target. Rollback is reachable from any non-terminal state; everything
// else follows the preparing -> active <-> paused -> completed edges.
func (s DeploymentStatus) CanTransitionTo(target DeploymentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch target {
	case StatusActive:
		return s == StatusPreparing || s == StatusPaused
	case StatusPaused:
		return s == StatusActive
	case StatusCompleted:
		return s == StatusActive
	case StatusRolledBack, StatusFailed:
		return true
	default:
		return false
	}
}

// StrategyType selects how the canary traffic share grows between
// evaluation cycles.
type StrategyType string

const (
	// StrategyLinear increases the canary share by max/steps each cycle.
	StrategyLinear StrategyType = "linear"
	// StrategyExponential doubles the canary share each cycle (seeding at
	// 5% from zero).
	StrategyExponential StrategyType = "exponential"
	// StrategyStep increases the canary share in max/steps jumps with a
	// smaller default step count than linear.
	StrategyStep StrategyType = "step"
)

// Default step counts per strategy. Applied when RolloutStrategy.Steps is 0.
const (
	DefaultLinearSteps = 10
	DefaultStepSteps   = 4
)

// TrafficSplit is the desired percentage split of live requests.
// Invariant: Production + Canary == 100 at all times.
type TrafficSplit struct {
	Production int `json:"production" validate:"min=0,max=100"`
	Canary     int `json:"canary" validate:"min=0,max=100"`
}

// Valid reports whether the split percentages are in range and sum to 100.
func (t TrafficSplit) Valid() bool {
	return t.Production >= 0 && t.Canary >= 0 && t.Production+t.Canary == 100
}

// RolloutStrategy determines the traffic stepping function.
type RolloutStrategy struct {
	Type StrategyType `json:"type" validate:"required,oneof=linear exponential step"`

	// Duration is advisory: the intended total rollout time. The actual
	// pace is governed by the evaluation window and stepping function.
	Duration time.Duration `json:"duration,omitempty"`

	// Steps is the number of increments for linear/step strategies.
	// Zero means the per-strategy default.
	Steps int `json:"steps,omitempty" validate:"min=0"`

	// MaxTrafficPercentage caps the canary share, in (0,100].
	MaxTrafficPercentage int `json:"max_traffic_percentage" validate:"gt=0,max=100"`
}

// StepCount returns the effective step count for the strategy,
// substituting defaults for a zero Steps value.
func (r RolloutStrategy) StepCount() int {
	if r.Steps > 0 {
		return r.Steps
	}
	switch r.Type {
	case StrategyStep:
		return DefaultStepSteps
	default:
		return DefaultLinearSteps
	}
}

// SuccessCriteria are the thresholds the canary must meet, with sufficient
// samples, before the rollout may complete.
type SuccessCriteria struct {
	MinRequests             int           `json:"min_requests" validate:"gt=0"`
	MaxErrorRate            float64       `json:"max_error_rate" validate:"min=0,max=1"`
	MinSuccessRate          float64       `json:"min_success_rate" validate:"min=0,max=1"`
	MaxLatencyP95           time.Duration `json:"max_latency_p95" validate:"gt=0"`
	MinQualityScore         float64       `json:"min_quality_score" validate:"min=0"`
	EvaluationWindowMinutes int           `json:"evaluation_window_minutes" validate:"gt=0"`
}

// EvaluationWindow returns the trailing window as a duration.
func (c SuccessCriteria) EvaluationWindow() time.Duration {
	return time.Duration(c.EvaluationWindowMinutes) * time.Minute
}

// AlertThresholds carry spike/drop limits used by external alerting.
type AlertThresholds struct {
	ErrorSpike   float64 `json:"error_spike,omitempty"`
	LatencySpike float64 `json:"latency_spike,omitempty"`
	QualityDrop  float64 `json:"quality_drop,omitempty"`
}

// RollbackCriteria are the thresholds that, if breached by canary metrics,
// force an immediate reversion to 100% production traffic.
type RollbackCriteria struct {
	MaxErrorRate    float64         `json:"max_error_rate" validate:"min=0,max=1"`
	MaxLatencyP95   time.Duration   `json:"max_latency_p95" validate:"gt=0"`
	MinSuccessRate  float64         `json:"min_success_rate" validate:"min=0,max=1"`
	MinQualityScore float64         `json:"min_quality_score" validate:"min=0"`
	AlertThresholds AlertThresholds `json:"alert_thresholds,omitempty"`
}

// CanaryDeployment is one rollout unit: a production/canary model pair,
// the current traffic split, and the criteria governing its progression.
//
// Records are owned exclusively by the deployment store; callers always
// receive copies and refer to deployments by ID, never by shared pointer.
type CanaryDeployment struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=2000"`

	ProductionModelID string `json:"production_model_id" validate:"required"`
	CanaryModelID     string `json:"canary_model_id" validate:"required"`

	TrafficSplit     TrafficSplit     `json:"traffic_split"`
	RolloutStrategy  RolloutStrategy  `json:"rollout_strategy"`
	SuccessCriteria  SuccessCriteria  `json:"success_criteria"`
	RollbackCriteria RollbackCriteria `json:"rollback_criteria"`

	Status DeploymentStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedBy string `json:"created_by,omitempty"`
}

// NewDeploymentID returns a fresh opaque deployment identifier.
func NewDeploymentID() string {
	return "cd-" + uuid.New().String()
}

// Clone returns a deep copy of the deployment. The store hands out clones
// so that no caller can mutate a record outside the store's locking.
func (d *CanaryDeployment) Clone() *CanaryDeployment {
	if d == nil {
		return nil
	}
	cp := *d
	if d.StartedAt != nil {
		t := *d.StartedAt
		cp.StartedAt = &t
	}
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
