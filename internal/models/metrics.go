// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package models

import "time"

// Recommendation is the evaluator's verdict for one evaluation cycle.
type Recommendation string

const (
	// RecommendProceed means the canary meets every success criterion with
	// sufficient samples.
	RecommendProceed Recommendation = "proceed"
	// RecommendPause means no rollback threshold was breached but the
	// canary has not (yet) met all success criteria.
	RecommendPause Recommendation = "pause"
	// RecommendRollback means at least one rollback threshold was breached.
	RecommendRollback Recommendation = "rollback"
)

// ModelWindowMetrics are windowed aggregates for a single model, as
// returned by the metrics gateway for one evaluation window.
type ModelWindowMetrics struct {
	Requests     int           `json:"requests"`
	SuccessRate  float64       `json:"success_rate"`
	ErrorRate    float64       `json:"error_rate"`
	AvgLatency   time.Duration `json:"avg_latency"`
	P95Latency   time.Duration `json:"p95_latency"`
	QualityScore float64       `json:"quality_score"`
	AvgCost      float64       `json:"avg_cost"`
}

// Comparison holds the derived deltas and verdict for one evaluation.
//
// PerformanceDelta and CostDelta are relative to production (positive =
// canary worse); QualityDelta is absolute (positive = canary better).
type Comparison struct {
	PerformanceDelta float64        `json:"performance_delta"`
	QualityDelta     float64        `json:"quality_delta"`
	CostDelta        float64        `json:"cost_delta"`
	Recommendation   Recommendation `json:"recommendation"`
	// Confidence in [0,1] is sample-size based: how much data has
	// accumulated relative to 2x the configured minimum request count.
	// It is not a statistical significance test.
	Confidence float64 `json:"confidence"`
}

// CanaryMetrics is a point-in-time evaluation snapshot. Snapshots are
// immutable once created and appended to a deployment's history in
// evaluation order.
type CanaryMetrics struct {
	DeploymentID string             `json:"deployment_id"`
	EvaluatedAt  time.Time          `json:"evaluated_at"`
	WindowStart  time.Time          `json:"window_start"`
	Production   ModelWindowMetrics `json:"production"`
	Canary       ModelWindowMetrics `json:"canary"`
	Comparison   Comparison         `json:"comparison"`
}

// DecisionAction is the outcome of one decision-engine invocation.
type DecisionAction string

const (
	// ActionContinue advances the rollout to the next traffic split.
	ActionContinue DecisionAction = "continue"
	// ActionPause halts progression pending a human decision.
	ActionPause DecisionAction = "pause"
	// ActionRollback reverts all traffic to the production model.
	ActionRollback DecisionAction = "rollback"
	// ActionComplete promotes the canary and finishes the rollout.
	ActionComplete DecisionAction = "complete"
)

// RolloutDecision is the ephemeral value object produced by the decision
// engine and applied by the executor. It is not persisted; the metrics
// snapshot it references is.
type RolloutDecision struct {
	DeploymentID string         `json:"deployment_id"`
	Action       DecisionAction `json:"action"`
	Reason       string         `json:"reason"`
	Metrics      *CanaryMetrics `json:"metrics,omitempty"`

	// NewTrafficSplit is set only for ActionContinue.
	NewTrafficSplit *TrafficSplit `json:"new_traffic_split,omitempty"`
	// NextEvaluationTime is set only for ActionContinue.
	NextEvaluationTime *time.Time `json:"next_evaluation_time,omitempty"`
}

// RoutingDecision is the per-request audit record produced by the traffic
// router. Recording is best-effort; the value is never required to be
// durable.
type RoutingDecision struct {
	DeploymentID    string    `json:"deployment_id,omitempty"`
	RequestID       string    `json:"request_id"`
	SelectedModelID string    `json:"selected_model_id"`
	IsCanary        bool      `json:"is_canary"`
	Timestamp       time.Time `json:"timestamp"`
}
