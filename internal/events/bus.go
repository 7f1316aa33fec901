// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/canaryd/internal/metrics"
	"github.com/tomtom215/canaryd/internal/models"
)

// Bus publishes typed lifecycle events over an in-process Watermill Pub/Sub.
//
// Publishing is non-blocking with respect to slow subscribers: the gochannel
// backend buffers per-subscriber output channels, and payloads are marshaled
// once per publish.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger
}

// Config holds bus configuration.
type Config struct {
	// Buffer is the per-subscriber output channel buffer.
	Buffer int64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Buffer: 256}
}

// NewBus creates a lifecycle event bus.
func NewBus(cfg Config, logger *zerolog.Logger) *Bus {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	busLogger := logger.With().Str("component", "events").Logger()

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.Buffer,
	}, newWatermillAdapter(busLogger))

	return &Bus{pubsub: pubsub, logger: busLogger}
}

// Subscribe returns a channel of raw messages for a topic. The channel is
// closed when ctx is canceled or the bus closes.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// PublishDeployment emits a deployment lifecycle event on the given topic.
func (b *Bus) PublishDeployment(topic string, dep *models.CanaryDeployment) {
	b.publish(topic, &DeploymentEvent{
		Deployment: dep,
		OccurredAt: time.Now().UTC(),
	})
}

// PublishDecision emits a rollout.decision.executed event.
func (b *Bus) PublishDecision(dec *models.RolloutDecision, dep *models.CanaryDeployment) {
	b.publish(TopicDecisionExecuted, &DecisionEvent{
		Decision:   dec,
		Deployment: dep,
		OccurredAt: time.Now().UTC(),
	})
}

// PublishRouting emits a routing.request.recorded event.
func (b *Bus) PublishRouting(rd models.RoutingDecision) {
	b.publish(TopicRequestRecorded, &RoutingEvent{
		Decision:   rd,
		OccurredAt: time.Now().UTC(),
	})
}

// publish marshals and sends one event. Failures are logged, never
// propagated: lifecycle emission must not fail control-plane operations.
func (b *Bus) publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		b.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish event")
		return
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
}

// watermillAdapter bridges Watermill's logger interface to zerolog.
type watermillAdapter struct {
	logger zerolog.Logger
}

func newWatermillAdapter(logger zerolog.Logger) watermill.LoggerAdapter {
	return &watermillAdapter{logger: logger}
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.logger.Error().Err(err), fields).Msg(msg)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.logger.Debug(), fields).Msg(msg) // watermill Info is chatty; demote
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.logger.Debug(), fields).Msg(msg)
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.logger.Trace(), fields).Msg(msg)
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.logger.With()
	for k, v := range fields {
		ctx = ctx.Str(k, fmt.Sprint(v))
	}
	return &watermillAdapter{logger: ctx.Logger()}
}

func (a *watermillAdapter) event(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		ev = ev.Str(k, fmt.Sprint(v))
	}
	return ev
}
