// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package deploy

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/canaryd/internal/models"
)

// LoggingSink is a TrafficSplitSink that only logs the desired split.
// Used when no external traffic layer is wired in: the in-process router
// reads splits from the store, so enforcement still happens locally.
type LoggingSink struct {
	logger zerolog.Logger
}

// NewLoggingSink creates a logging-only traffic split sink.
func NewLoggingSink(logger *zerolog.Logger) *LoggingSink {
	return &LoggingSink{logger: logger.With().Str("component", "traffic-sink").Logger()}
}

// UpdateTrafficSplit implements TrafficSplitSink.
func (s *LoggingSink) UpdateTrafficSplit(_ context.Context, deploymentID string, split models.TrafficSplit) error {
	s.logger.Info().
		Str("deployment_id", deploymentID).
		Int("production", split.Production).
		Int("canary", split.Canary).
		Msg("Traffic split updated")
	return nil
}
