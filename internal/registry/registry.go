// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package registry defines the model-registry collaborator boundary and an
// HTTP client implementation. The registry owns model metadata and health;
// this control plane only reads models, reads health, and flips model
// status on rollout completion.
package registry

import (
	"context"
	"errors"

	"github.com/tomtom215/canaryd/internal/models"
)

// ErrModelNotFound is returned when a model id does not resolve.
var ErrModelNotFound = errors.New("model not found")

// ModelRegistry is the consumed collaborator contract.
type ModelRegistry interface {
	// GetModel resolves a model by id. Returns ErrModelNotFound when the
	// id is unknown.
	GetModel(ctx context.Context, id string) (*models.Model, error)

	// GetModelHealth returns the current health report for a model.
	// Returns ErrModelNotFound when the id is unknown.
	GetModelHealth(ctx context.Context, id string) (*models.ModelHealth, error)

	// UpdateModelStatus sets a model's lifecycle status (promotion /
	// deprecation on rollout completion).
	UpdateModelStatus(ctx context.Context, id string, status models.ModelStatus) error

	// GetActiveModelsForAgent lists active models serving an agent type.
	GetActiveModelsForAgent(ctx context.Context, agentType string) ([]models.Model, error)
}

// DefaultModelSelector picks a model when no active deployment matches a
// request. The router falls back to it for unrouted traffic.
type DefaultModelSelector interface {
	SelectDefaultModel(ctx context.Context, agentType string) (*models.Model, error)
}

// ErrNoDefaultModel is returned when the selector has no model to offer.
var ErrNoDefaultModel = errors.New("no default model available")

// RegistrySelector is a DefaultModelSelector backed by the model registry:
// it picks the first active model registered for the agent type.
type RegistrySelector struct {
	registry ModelRegistry
}

// NewRegistrySelector creates a registry-backed default model selector.
func NewRegistrySelector(reg ModelRegistry) *RegistrySelector {
	return &RegistrySelector{registry: reg}
}

// SelectDefaultModel implements DefaultModelSelector.
func (s *RegistrySelector) SelectDefaultModel(ctx context.Context, agentType string) (*models.Model, error) {
	active, err := s.registry.GetActiveModelsForAgent(ctx, agentType)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, ErrNoDefaultModel
	}
	m := active[0]
	return &m, nil
}
