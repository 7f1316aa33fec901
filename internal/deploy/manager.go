// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/canaryd/internal/events"
	"github.com/tomtom215/canaryd/internal/metrics"
	"github.com/tomtom215/canaryd/internal/models"
	"github.com/tomtom215/canaryd/internal/registry"
	"github.com/tomtom215/canaryd/internal/validation"
)

// TrafficSplitSink receives desired traffic splits for network-layer
// enforcement. Enforcement itself is external; this control plane only
// computes and signals the desired split.
type TrafficSplitSink interface {
	UpdateTrafficSplit(ctx context.Context, deploymentID string, split models.TrafficSplit) error
}

// Spec is a create request for a new canary deployment.
type Spec struct {
	Name              string
	Description       string
	ProductionModelID string
	CanaryModelID     string

	// TrafficSplit defaults to {production:100, canary:0} when nil.
	TrafficSplit *models.TrafficSplit

	RolloutStrategy  models.RolloutStrategy
	SuccessCriteria  models.SuccessCriteria
	RollbackCriteria models.RollbackCriteria

	CreatedBy string
}

// Status is the full status view returned by GetDeploymentStatus.
type Status struct {
	Deployment      *models.CanaryDeployment `json:"deployment"`
	CurrentMetrics  *models.CanaryMetrics    `json:"current_metrics,omitempty"`
	MetricsHistory  []*models.CanaryMetrics  `json:"metrics_history"`
	Recommendations []models.Recommendation  `json:"recommendations"`
}

// Manager is the deployment lifecycle manager. All status, trafficSplit,
// and terminal-timestamp writes flow through it (human-initiated
// operations and decision execution alike), so the state machine is
// enforced in exactly one place.
type Manager struct {
	store    *Store
	registry registry.ModelRegistry
	sink     TrafficSplitSink
	bus      *events.Bus
	logger   zerolog.Logger

	// minHealthScore is the canary health gate for Start, 0-100.
	minHealthScore float64
}

// NewManager creates a lifecycle manager.
func NewManager(store *Store, reg registry.ModelRegistry, sink TrafficSplitSink, bus *events.Bus, minHealthScore float64, logger *zerolog.Logger) *Manager {
	return &Manager{
		store:          store,
		registry:       reg,
		sink:           sink,
		bus:            bus,
		logger:         logger.With().Str("component", "deploy").Logger(),
		minHealthScore: minHealthScore,
	}
}

// Store exposes the underlying record store for read-only collaborators
// (router, evaluator, monitoring loop).
func (m *Manager) Store() *Store {
	return m.store
}

// Create validates the spec and registers a new deployment in preparing
// status. Violated preconditions surface as *ValidationError.
func (m *Manager) Create(ctx context.Context, spec Spec) (*models.CanaryDeployment, error) {
	now := time.Now().UTC()
	split := models.TrafficSplit{Production: 100, Canary: 0}
	if spec.TrafficSplit != nil {
		split = *spec.TrafficSplit
	}

	dep := &models.CanaryDeployment{
		ID:                models.NewDeploymentID(),
		Name:              spec.Name,
		Description:       spec.Description,
		ProductionModelID: spec.ProductionModelID,
		CanaryModelID:     spec.CanaryModelID,
		TrafficSplit:      split,
		RolloutStrategy:   spec.RolloutStrategy,
		SuccessCriteria:   spec.SuccessCriteria,
		RollbackCriteria:  spec.RollbackCriteria,
		Status:            models.StatusPreparing,
		CreatedAt:         now,
		UpdatedAt:         now,
		CreatedBy:         spec.CreatedBy,
	}

	if err := validation.ValidateStruct(*dep); err != nil {
		return nil, &ValidationError{Reason: "invalid deployment spec", Err: err}
	}
	if err := m.resolveModel(ctx, spec.ProductionModelID); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("production model %s", spec.ProductionModelID), Err: err}
	}
	if err := m.resolveModel(ctx, spec.CanaryModelID); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("canary model %s", spec.CanaryModelID), Err: err}
	}

	if err := m.store.Insert(dep); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("deployment_id", dep.ID).
		Str("production_model", dep.ProductionModelID).
		Str("canary_model", dep.CanaryModelID).
		Msg("Deployment created")
	m.bus.PublishDeployment(events.TopicDeploymentCreated, dep)

	return dep.Clone(), nil
}

// resolveModel verifies a model id exists in the registry.
func (m *Manager) resolveModel(ctx context.Context, id string) error {
	if _, err := m.registry.GetModel(ctx, id); err != nil {
		return err
	}
	return nil
}

// Start activates a preparing deployment. The canary model must meet the
// configured health gate; the initial traffic split is propagated to the
// split sink immediately on success.
func (m *Manager) Start(ctx context.Context, id string) (*models.CanaryDeployment, error) {
	dep, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if dep.Status != models.StatusPreparing {
		return nil, &InvalidStateError{DeploymentID: id, Status: dep.Status, Operation: "start"}
	}

	health, err := m.registry.GetModelHealth(ctx, dep.CanaryModelID)
	if err != nil {
		return nil, fmt.Errorf("canary health check: %w", err)
	}
	if health.HealthScore < m.minHealthScore {
		return nil, &HealthInsufficientError{
			ModelID:  dep.CanaryModelID,
			Score:    health.HealthScore,
			Required: m.minHealthScore,
		}
	}

	updated, err := m.store.Update(id, func(d *models.CanaryDeployment) error {
		if d.Status != models.StatusPreparing {
			return &InvalidStateError{DeploymentID: id, Status: d.Status, Operation: "start"}
		}
		now := time.Now().UTC()
		d.Status = models.StatusActive
		d.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := m.sink.UpdateTrafficSplit(ctx, id, updated.TrafficSplit); err != nil {
		// The router reads the store directly; sink propagation is
		// retried with the next executed decision.
		m.logger.Warn().Err(err).Str("deployment_id", id).Msg("Initial traffic split propagation failed")
	}

	m.refreshGauges(updated)
	m.logger.Info().
		Str("deployment_id", id).
		Float64("canary_health", health.HealthScore).
		Msg("Deployment started")
	m.bus.PublishDeployment(events.TopicDeploymentStarted, updated)

	return updated, nil
}

// Pause suspends an active deployment.
func (m *Manager) Pause(ctx context.Context, id string) (*models.CanaryDeployment, error) {
	updated, err := m.transition(id, models.StatusActive, models.StatusPaused, "pause")
	if err != nil {
		return nil, err
	}
	m.refreshGauges(updated)
	m.logger.Info().Str("deployment_id", id).Msg("Deployment paused")
	m.bus.PublishDeployment(events.TopicDeploymentPaused, updated)
	return updated, nil
}

// Resume reactivates a paused deployment.
func (m *Manager) Resume(ctx context.Context, id string) (*models.CanaryDeployment, error) {
	updated, err := m.transition(id, models.StatusPaused, models.StatusActive, "resume")
	if err != nil {
		return nil, err
	}
	m.refreshGauges(updated)
	m.logger.Info().Str("deployment_id", id).Msg("Deployment resumed")
	m.bus.PublishDeployment(events.TopicDeploymentResumed, updated)
	return updated, nil
}

// transition performs a guarded single-edge status change.
func (m *Manager) transition(id string, from, to models.DeploymentStatus, op string) (*models.CanaryDeployment, error) {
	return m.store.Update(id, func(d *models.CanaryDeployment) error {
		if d.Status != from {
			return &InvalidStateError{DeploymentID: id, Status: d.Status, Operation: op}
		}
		d.Status = to
		return nil
	})
}

// Rollback reverts all traffic to the production model and terminally
// marks the deployment rolled back. Legal from any non-terminal state.
// Calling it on an already rolled-back deployment is a no-op, tolerating
// duplicate rollback triggers from overlapping monitoring ticks.
func (m *Manager) Rollback(ctx context.Context, id, reason string) (*models.CanaryDeployment, error) {
	dep, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if dep.Status == models.StatusRolledBack {
		return dep, nil
	}
	if dep.Status.IsTerminal() {
		return nil, &InvalidStateError{DeploymentID: id, Status: dep.Status, Operation: "rollback"}
	}

	split := models.TrafficSplit{Production: 100, Canary: 0}
	if err := m.sink.UpdateTrafficSplit(ctx, id, split); err != nil {
		return nil, &ExecutionError{DeploymentID: id, Operation: "rollback", Err: err}
	}

	updated, err := m.store.Update(id, func(d *models.CanaryDeployment) error {
		if d.Status == models.StatusRolledBack {
			return errRollbackRaced
		}
		if d.Status.IsTerminal() {
			return &InvalidStateError{DeploymentID: id, Status: d.Status, Operation: "rollback"}
		}
		now := time.Now().UTC()
		d.TrafficSplit = split
		d.Status = models.StatusRolledBack
		d.CompletedAt = &now
		return nil
	})
	if errors.Is(err, errRollbackRaced) {
		// A concurrent tick already rolled the deployment back between our
		// read and this write. Return its record without re-persisting or
		// re-publishing the rollback event.
		return m.store.Get(id)
	}
	if err != nil {
		return nil, err
	}

	m.refreshGauges(updated)
	metrics.ClearCanaryShare(id)
	m.logger.Warn().Str("deployment_id", id).Str("reason", reason).Msg("Deployment rolled back")
	m.bus.PublishDeployment(events.TopicDeploymentRolledBack, updated)

	return updated, nil
}

// Complete finishes an active rollout: all traffic moves to the canary,
// the canary model is promoted to active and the former production model
// deprecated in the registry. Registry and sink calls happen before the
// state commit so a failed application leaves the deployment unchanged
// for the next tick to retry.
func (m *Manager) Complete(ctx context.Context, id string) (*models.CanaryDeployment, error) {
	dep, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if dep.Status != models.StatusActive {
		return nil, &InvalidStateError{DeploymentID: id, Status: dep.Status, Operation: "complete"}
	}

	if err := m.registry.UpdateModelStatus(ctx, dep.CanaryModelID, models.ModelStatusActive); err != nil {
		return nil, &ExecutionError{DeploymentID: id, Operation: "promote canary", Err: err}
	}
	if err := m.registry.UpdateModelStatus(ctx, dep.ProductionModelID, models.ModelStatusDeprecated); err != nil {
		return nil, &ExecutionError{DeploymentID: id, Operation: "deprecate production", Err: err}
	}

	split := models.TrafficSplit{Production: 0, Canary: 100}
	if err := m.sink.UpdateTrafficSplit(ctx, id, split); err != nil {
		return nil, &ExecutionError{DeploymentID: id, Operation: "complete", Err: err}
	}

	updated, err := m.store.Update(id, func(d *models.CanaryDeployment) error {
		if d.Status != models.StatusActive {
			return &InvalidStateError{DeploymentID: id, Status: d.Status, Operation: "complete"}
		}
		now := time.Now().UTC()
		d.TrafficSplit = split
		d.Status = models.StatusCompleted
		d.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.refreshGauges(updated)
	metrics.ClearCanaryShare(id)
	m.logger.Info().
		Str("deployment_id", id).
		Str("promoted_model", dep.CanaryModelID).
		Str("deprecated_model", dep.ProductionModelID).
		Msg("Deployment completed")
	m.bus.PublishDeployment(events.TopicDeploymentCompleted, updated)

	return updated, nil
}

// ApplyTrafficSplit moves an active deployment to a new split. The sink is
// notified before the store commits so the split never silently diverges
// from what was signaled for enforcement.
func (m *Manager) ApplyTrafficSplit(ctx context.Context, id string, split models.TrafficSplit) (*models.CanaryDeployment, error) {
	if !split.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid traffic split %d/%d", split.Production, split.Canary)}
	}

	dep, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if dep.Status != models.StatusActive {
		return nil, &InvalidStateError{DeploymentID: id, Status: dep.Status, Operation: "update traffic split"}
	}

	if err := m.sink.UpdateTrafficSplit(ctx, id, split); err != nil {
		return nil, &ExecutionError{DeploymentID: id, Operation: "update traffic split", Err: err}
	}

	updated, err := m.store.Update(id, func(d *models.CanaryDeployment) error {
		if d.Status != models.StatusActive {
			return &InvalidStateError{DeploymentID: id, Status: d.Status, Operation: "update traffic split"}
		}
		d.TrafficSplit = split
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SetCanaryShare(id, split.Canary)
	return updated, nil
}

// PublishDecision emits the decision-executed lifecycle event.
func (m *Manager) PublishDecision(dec *models.RolloutDecision, dep *models.CanaryDeployment) {
	m.bus.PublishDecision(dec, dep)
}

// GetDeploymentStatus returns the deployment, its latest metrics, full
// history, and the per-evaluation recommendations.
func (m *Manager) GetDeploymentStatus(id string) (*Status, error) {
	dep, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	history := m.store.History(id)
	recs := make([]models.Recommendation, 0, len(history))
	for _, snap := range history {
		recs = append(recs, snap.Comparison.Recommendation)
	}

	st := &Status{
		Deployment:      dep,
		MetricsHistory:  history,
		Recommendations: recs,
	}
	if len(history) > 0 {
		st.CurrentMetrics = history[len(history)-1]
	}
	return st, nil
}

// ListDeployments returns all deployments matching the filter.
func (m *Manager) ListDeployments(filter ListFilter) []*models.CanaryDeployment {
	return m.store.List(filter)
}

// refreshGauges updates the deployment-state prometheus gauges after a
// lifecycle transition.
func (m *Manager) refreshGauges(dep *models.CanaryDeployment) {
	metrics.ActiveDeployments.Set(float64(m.store.CountByStatus(models.StatusActive)))
	if dep.Status == models.StatusActive {
		metrics.SetCanaryShare(dep.ID, dep.TrafficSplit.Canary)
	}
}
