// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package metricsgw defines the metrics-gateway collaborator boundary: the
// external time-series store that aggregates per-model latency, error, and
// quality numbers over a trailing window.
package metricsgw

import (
	"context"
	"time"

	"github.com/tomtom215/canaryd/internal/models"
)

// Gateway is the consumed collaborator contract. One call returns windowed
// aggregates for a single model from `since` to now.
type Gateway interface {
	GetModelMetrics(ctx context.Context, modelID string, since time.Time, isCanary bool) (*models.ModelWindowMetrics, error)
}
