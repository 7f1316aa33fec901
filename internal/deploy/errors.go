// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package deploy

import (
	"errors"
	"fmt"

	"github.com/tomtom215/canaryd/internal/models"
)

// ErrDeploymentNotFound is returned when a deployment id does not resolve.
var ErrDeploymentNotFound = errors.New("deployment not found")

// ErrDeploymentExists is returned when inserting a duplicate deployment id.
var ErrDeploymentExists = errors.New("deployment already exists")

// errRollbackRaced marks a rollback that lost the race to a concurrent
// rollback between the status read and the store write. Never surfaced to
// callers; Manager.Rollback turns it into the idempotent no-op result.
var errRollbackRaced = errors.New("deployment already rolled back")

// ValidationError reports a create-time precondition violation: unknown
// model id, non-distinct models, or an invalid traffic split. Surfaced
// synchronously to the caller and never retried automatically.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deployment validation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("deployment validation failed: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// InvalidStateError reports an operation attempted from a disallowed
// lifecycle status.
type InvalidStateError struct {
	DeploymentID string
	Status       models.DeploymentStatus
	Operation    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s deployment %s in status %q", e.Operation, e.DeploymentID, e.Status)
}

// HealthInsufficientError reports a canary model failing the health gate
// at start time. The caller must remediate and retry start.
type HealthInsufficientError struct {
	ModelID  string
	Score    float64
	Required float64
}

func (e *HealthInsufficientError) Error() string {
	return fmt.Sprintf("canary model %s health %.1f below required %.1f", e.ModelID, e.Score, e.Required)
}

// ExecutionError reports a failure to apply a decision (for example the
// traffic-split propagation sink being unreachable). Deployment state is
// left unchanged; the monitoring loop retries on its next tick.
type ExecutionError struct {
	DeploymentID string
	Operation    string
	Err          error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to apply %s for deployment %s: %v", e.Operation, e.DeploymentID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
