// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package metrics provides Prometheus instrumentation for the rollout
// control plane: routing decisions, evaluation cycles, decision outcomes,
// circuit breakers, and lifecycle events.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Traffic Router metrics
	RoutingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_decisions_total",
			Help: "Total number of routing decisions",
		},
		[]string{"target"}, // "production", "canary", "fallback"
	)

	RoutingRecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routing_records_dropped_total",
			Help: "Routing decisions dropped by the best-effort audit recorder",
		},
	)

	// Comparison Evaluator metrics
	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluation_duration_seconds",
			Help:    "Duration of one comparison evaluation (both gateway calls)",
			Buckets: prometheus.DefBuckets,
		},
	)

	EvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_errors_total",
			Help: "Total number of failed evaluations",
		},
		[]string{"error_type"}, // "gateway", "timeout", "store"
	)

	EvaluationConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluation_confidence",
			Help:    "Sample-size confidence of evaluation snapshots",
			Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99, 1},
		},
	)

	// Rollout Decision metrics
	RolloutDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollout_decisions_total",
			Help: "Total number of rollout decisions executed",
		},
		[]string{"action"}, // "continue", "pause", "rollback", "complete"
	)

	ExecutionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execution_errors_total",
			Help: "Total number of decision application failures",
		},
		[]string{"action"},
	)

	// Deployment state metrics
	ActiveDeployments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_deployments",
			Help: "Current number of deployments in active status",
		},
	)

	CanaryTrafficShare = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "canary_traffic_share_percent",
			Help: "Current canary traffic percentage per deployment",
		},
		[]string{"deployment_id"},
	)

	// Monitoring loop metrics
	MonitorTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_tick_duration_seconds",
			Help:    "Duration of one full monitoring tick across deployments",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	MonitorDeploymentsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_deployments_skipped_total",
			Help: "Deployments skipped for a tick due to evaluation or execution failure",
		},
	)

	// Circuit Breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Lifecycle event metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_events_published_total",
			Help: "Total number of lifecycle events published to the bus",
		},
		[]string{"topic"},
	)
)

// RecordRouting records a routing decision outcome.
func RecordRouting(isCanary, fallback bool) {
	target := "production"
	switch {
	case fallback:
		target = "fallback"
	case isCanary:
		target = "canary"
	}
	RoutingDecisionsTotal.WithLabelValues(target).Inc()
}

// RecordEvaluation records the duration and outcome of one evaluation.
func RecordEvaluation(duration time.Duration, confidence float64, err error, errorType string) {
	EvaluationDuration.Observe(duration.Seconds())
	if err != nil {
		if errorType == "" {
			errorType = "gateway"
		}
		EvaluationErrors.WithLabelValues(errorType).Inc()
		return
	}
	EvaluationConfidence.Observe(confidence)
}

// RecordDecision records an executed rollout decision.
func RecordDecision(action string, err error) {
	if err != nil {
		ExecutionErrors.WithLabelValues(action).Inc()
		return
	}
	RolloutDecisionsTotal.WithLabelValues(action).Inc()
}

// SetCanaryShare updates the per-deployment canary share gauge.
func SetCanaryShare(deploymentID string, percent int) {
	CanaryTrafficShare.WithLabelValues(deploymentID).Set(float64(percent))
}

// ClearCanaryShare removes the gauge series for a finished deployment.
func ClearCanaryShare(deploymentID string) {
	CanaryTrafficShare.DeleteLabelValues(deploymentID)
}

// RecordBreakerTransition records a circuit breaker state change and
// updates the state gauge.
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
