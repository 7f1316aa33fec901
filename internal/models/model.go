// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package models

import "time"

// ModelStatus is the registry-side lifecycle state of a served model.
type ModelStatus string

const (
	// ModelStatusActive means the model serves production traffic.
	ModelStatusActive ModelStatus = "active"
	// ModelStatusCanary means the model is under progressive rollout.
	ModelStatusCanary ModelStatus = "canary"
	// ModelStatusDeprecated means the model was superseded and should
	// receive no new traffic.
	ModelStatusDeprecated ModelStatus = "deprecated"
)

// Model is the registry's view of a served model. The registry itself is an
// external collaborator; this type only mirrors the fields the rollout
// control plane consumes.
type Model struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Version   string      `json:"version,omitempty"`
	AgentType string      `json:"agent_type,omitempty"`
	Status    ModelStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at,omitempty"`
}

// ModelHealth is the registry's health report for a model.
// HealthScore is on a 0-100 scale.
type ModelHealth struct {
	ModelID     string    `json:"model_id"`
	HealthScore float64   `json:"health_score"`
	CheckedAt   time.Time `json:"checked_at,omitempty"`
}
