// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package engine turns evaluation snapshots into rollout decisions. Decide
// is a pure function of the deployment, the snapshot, and the clock: no
// I/O, no side effects, fully deterministic and unit-testable.
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/canaryd/internal/models"
)

// Exponential rollouts seed at this canary share when starting from zero.
const exponentialSeedPercent = 5

// Engine derives rollout decisions from evaluation snapshots.
type Engine struct {
	// completionConfidence is the minimum snapshot confidence required
	// before a rollout may complete.
	completionConfidence float64
}

// New creates an Engine.
func New(completionConfidence float64) *Engine {
	return &Engine{completionConfidence: completionConfidence}
}

// Decide produces the rollout decision for one evaluated deployment.
//
// Precedence, first match wins: a rollback recommendation always wins.
// Completion requires the canary at its traffic ceiling with sufficient
// samples, a proceed verdict, and confidence at or above the completion
// threshold. Otherwise the rollout continues whenever the strategy can
// still advance the split, even under a pause verdict, since an early
// window with too few canary requests is cured by sending more traffic,
// not less. Only when no further increase is possible does the rollout
// pause for an operator.
func (e *Engine) Decide(dep *models.CanaryDeployment, snapshot *models.CanaryMetrics, now time.Time) *models.RolloutDecision {
	decision := &models.RolloutDecision{
		DeploymentID: dep.ID,
		Metrics:      snapshot,
	}
	cmp := snapshot.Comparison

	if cmp.Recommendation == models.RecommendRollback {
		decision.Action = models.ActionRollback
		decision.Reason = fmt.Sprintf(
			"rollback criteria breached: error_rate=%.4f p95=%s success_rate=%.4f quality=%.2f",
			snapshot.Canary.ErrorRate, snapshot.Canary.P95Latency,
			snapshot.Canary.SuccessRate, snapshot.Canary.QualityScore)
		return decision
	}

	atCeiling := dep.TrafficSplit.Canary >= dep.RolloutStrategy.MaxTrafficPercentage

	if atCeiling &&
		snapshot.Canary.Requests >= dep.SuccessCriteria.MinRequests &&
		cmp.Recommendation == models.RecommendProceed &&
		cmp.Confidence >= e.completionConfidence {
		decision.Action = models.ActionComplete
		decision.Reason = fmt.Sprintf(
			"canary at %d%% ceiling with confidence %.2f, promoting",
			dep.TrafficSplit.Canary, cmp.Confidence)
		return decision
	}

	if next := NextCanaryShare(dep.RolloutStrategy, dep.TrafficSplit.Canary); next > dep.TrafficSplit.Canary {
		nextEval := now.Add(dep.SuccessCriteria.EvaluationWindow())
		decision.Action = models.ActionContinue
		decision.NewTrafficSplit = &models.TrafficSplit{Production: 100 - next, Canary: next}
		decision.NextEvaluationTime = &nextEval
		decision.Reason = fmt.Sprintf("advancing canary traffic %d%% -> %d%%", dep.TrafficSplit.Canary, next)
		return decision
	}

	decision.Action = models.ActionPause
	decision.Reason = fmt.Sprintf(
		"canary held at %d%% ceiling with completion criteria unmet, operator decision required",
		dep.TrafficSplit.Canary)
	return decision
}

// NextCanaryShare computes the next canary percentage for a strategy,
// clamped to the strategy's ceiling. The result equals current when the
// rollout cannot advance further.
func NextCanaryShare(strategy models.RolloutStrategy, current int) int {
	maxPct := strategy.MaxTrafficPercentage
	if current >= maxPct {
		return current
	}

	var next int
	switch strategy.Type {
	case models.StrategyExponential:
		if current == 0 {
			next = exponentialSeedPercent
		} else {
			next = current * 2
		}
	default: // linear and step share the fixed-increment form
		step := int(math.Round(float64(maxPct) / float64(strategy.StepCount())))
		if step < 1 {
			step = 1
		}
		next = current + step
	}

	if next > maxPct {
		next = maxPct
	}
	return next
}
