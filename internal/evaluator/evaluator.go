// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package evaluator compares canary against production over a trailing
// metrics window and produces immutable evaluation snapshots with a
// recommendation and a sample-size confidence.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/canaryd/internal/deploy"
	"github.com/tomtom215/canaryd/internal/metrics"
	"github.com/tomtom215/canaryd/internal/metricsgw"
	"github.com/tomtom215/canaryd/internal/models"
)

// EvaluationError reports a failed evaluation cycle. The deployment keeps
// its current traffic split; the monitoring loop retries next tick.
type EvaluationError struct {
	DeploymentID string
	Stage        string // "production-metrics", "canary-metrics", "store"
	Err          error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of deployment %s failed at %s: %v", e.DeploymentID, e.Stage, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Evaluator fetches windowed metrics for both models of a deployment and
// derives the comparison verdict.
type Evaluator struct {
	gateway metricsgw.Gateway
	store   *deploy.Store
	logger  zerolog.Logger

	// now is injectable for window tests.
	now func() time.Time
}

// New creates an Evaluator.
func New(gateway metricsgw.Gateway, store *deploy.Store, logger *zerolog.Logger) *Evaluator {
	return &Evaluator{
		gateway: gateway,
		store:   store,
		logger:  logger.With().Str("component", "evaluator").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs one comparison cycle for the deployment: two independent
// gateway fetches over the trailing evaluation window, delta computation,
// recommendation, and confidence. The snapshot is appended to the
// deployment's history before being returned.
func (e *Evaluator) Evaluate(ctx context.Context, dep *models.CanaryDeployment) (*models.CanaryMetrics, error) {
	start := e.now()
	windowStart := start.Add(-dep.SuccessCriteria.EvaluationWindow())

	prod, err := e.gateway.GetModelMetrics(ctx, dep.ProductionModelID, windowStart, false)
	if err != nil {
		metrics.RecordEvaluation(e.now().Sub(start), 0, err, errorType(ctx))
		return nil, &EvaluationError{DeploymentID: dep.ID, Stage: "production-metrics", Err: err}
	}

	canary, err := e.gateway.GetModelMetrics(ctx, dep.CanaryModelID, windowStart, true)
	if err != nil {
		metrics.RecordEvaluation(e.now().Sub(start), 0, err, errorType(ctx))
		return nil, &EvaluationError{DeploymentID: dep.ID, Stage: "canary-metrics", Err: err}
	}

	snapshot := &models.CanaryMetrics{
		DeploymentID: dep.ID,
		EvaluatedAt:  start,
		WindowStart:  windowStart,
		Production:   *prod,
		Canary:       *canary,
		Comparison:   e.compare(dep, prod, canary),
	}

	if err := e.store.AppendMetrics(snapshot); err != nil {
		metrics.RecordEvaluation(e.now().Sub(start), 0, err, "store")
		return nil, &EvaluationError{DeploymentID: dep.ID, Stage: "store", Err: err}
	}

	metrics.RecordEvaluation(e.now().Sub(start), snapshot.Comparison.Confidence, nil, "")
	e.logger.Debug().
		Str("deployment_id", dep.ID).
		Str("recommendation", string(snapshot.Comparison.Recommendation)).
		Float64("confidence", snapshot.Comparison.Confidence).
		Int("production_requests", prod.Requests).
		Int("canary_requests", canary.Requests).
		Msg("Evaluation completed")

	return snapshot, nil
}

// compare derives deltas, the recommendation, and the confidence for one
// production/canary metrics pair.
func (e *Evaluator) compare(dep *models.CanaryDeployment, prod, canary *models.ModelWindowMetrics) models.Comparison {
	cmp := models.Comparison{
		PerformanceDelta: relativeDelta(float64(canary.AvgLatency), float64(prod.AvgLatency)),
		QualityDelta:     canary.QualityScore - prod.QualityScore,
		CostDelta:        relativeDelta(canary.AvgCost, prod.AvgCost),
		Confidence:       confidence(prod.Requests, canary.Requests, dep.SuccessCriteria.MinRequests),
	}

	switch {
	case canary.Requests > 0 && rollbackBreached(dep.RollbackCriteria, canary):
		cmp.Recommendation = models.RecommendRollback
	case canary.Requests >= dep.SuccessCriteria.MinRequests && successMet(dep.SuccessCriteria, canary):
		cmp.Recommendation = models.RecommendProceed
	default:
		cmp.Recommendation = models.RecommendPause
	}
	return cmp
}

// rollbackBreached reports whether any hard rollback threshold is violated
// by the canary window.
func rollbackBreached(c models.RollbackCriteria, m *models.ModelWindowMetrics) bool {
	if c.MaxErrorRate > 0 && m.ErrorRate > c.MaxErrorRate {
		return true
	}
	if c.MaxLatencyP95 > 0 && m.P95Latency > c.MaxLatencyP95 {
		return true
	}
	if c.MinSuccessRate > 0 && m.SuccessRate < c.MinSuccessRate {
		return true
	}
	if c.MinQualityScore > 0 && m.QualityScore < c.MinQualityScore {
		return true
	}
	return false
}

// successMet reports whether every success criterion is satisfied by the
// canary window.
func successMet(c models.SuccessCriteria, m *models.ModelWindowMetrics) bool {
	if m.ErrorRate > c.MaxErrorRate {
		return false
	}
	if m.SuccessRate < c.MinSuccessRate {
		return false
	}
	if c.MaxLatencyP95 > 0 && m.P95Latency > c.MaxLatencyP95 {
		return false
	}
	if m.QualityScore < c.MinQualityScore {
		return false
	}
	return true
}

// confidence is purely sample-size based: the combined request count
// relative to twice the configured minimum, capped at 1.
func confidence(prodRequests, canaryRequests, minRequests int) float64 {
	if minRequests <= 0 {
		return 1
	}
	c := float64(prodRequests+canaryRequests) / float64(2*minRequests)
	if c > 1 {
		return 1
	}
	return c
}

// relativeDelta returns (canary-production)/production, or 0 when the
// production baseline is zero.
func relativeDelta(canary, production float64) float64 {
	if production == 0 {
		return 0
	}
	return (canary - production) / production
}

// errorType maps a failed fetch to a metrics label.
func errorType(ctx context.Context) string {
	if ctx.Err() != nil {
		return "timeout"
	}
	return "gateway"
}
