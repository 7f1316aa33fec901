// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package executor applies rollout decisions through the deployment
// lifecycle manager. It is the single path from a decision to a state
// change, so every executed decision is uniformly counted and emitted.
package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/canaryd/internal/deploy"
	"github.com/tomtom215/canaryd/internal/metrics"
	"github.com/tomtom215/canaryd/internal/models"
)

// Executor applies rollout decisions.
type Executor struct {
	manager *deploy.Manager
	logger  zerolog.Logger
}

// New creates an Executor.
func New(manager *deploy.Manager, logger *zerolog.Logger) *Executor {
	return &Executor{
		manager: manager,
		logger:  logger.With().Str("component", "executor").Logger(),
	}
}

// Execute applies one decision. On any application failure the deployment
// state is unchanged and the error is returned for the caller to log; the
// next monitoring tick re-evaluates from scratch.
func (x *Executor) Execute(ctx context.Context, dec *models.RolloutDecision) (*models.CanaryDeployment, error) {
	dep, err := x.apply(ctx, dec)
	metrics.RecordDecision(string(dec.Action), err)
	if err != nil {
		return nil, err
	}

	x.logger.Info().
		Str("deployment_id", dec.DeploymentID).
		Str("action", string(dec.Action)).
		Str("reason", dec.Reason).
		Msg("Rollout decision executed")
	x.manager.PublishDecision(dec, dep)
	return dep, nil
}

func (x *Executor) apply(ctx context.Context, dec *models.RolloutDecision) (*models.CanaryDeployment, error) {
	switch dec.Action {
	case models.ActionContinue:
		if dec.NewTrafficSplit == nil {
			// Holding the current split; nothing to apply.
			return x.manager.Store().Get(dec.DeploymentID)
		}
		return x.manager.ApplyTrafficSplit(ctx, dec.DeploymentID, *dec.NewTrafficSplit)
	case models.ActionPause:
		return x.manager.Pause(ctx, dec.DeploymentID)
	case models.ActionRollback:
		return x.manager.Rollback(ctx, dec.DeploymentID, dec.Reason)
	case models.ActionComplete:
		return x.manager.Complete(ctx, dec.DeploymentID)
	default:
		return nil, fmt.Errorf("unknown decision action %q for deployment %s", dec.Action, dec.DeploymentID)
	}
}
