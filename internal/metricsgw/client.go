// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package metricsgw

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/canaryd/internal/config"
	"github.com/tomtom215/canaryd/internal/metrics"
	"github.com/tomtom215/canaryd/internal/models"
)

// HTTPClient is a Gateway implementation over the metrics store's REST API.
// Calls are circuit-breaker guarded: a flapping metrics store trips the
// breaker instead of stalling every monitoring tick.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*models.ModelWindowMetrics]
}

// NewHTTPClient creates a metrics gateway client from configuration.
func NewHTTPClient(cfg config.MetricsGatewayConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[*models.ModelWindowMetrics](gobreaker.Settings{
			Name:        "metrics-gateway",
			MaxRequests: cfg.Breaker.MaxRequests,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Breaker.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				metrics.RecordBreakerTransition(name, from.String(), to.String())
			},
		}),
	}
}

// GetModelMetrics implements Gateway.
func (c *HTTPClient) GetModelMetrics(ctx context.Context, modelID string, since time.Time, isCanary bool) (*models.ModelWindowMetrics, error) {
	return c.breaker.Execute(func() (*models.ModelWindowMetrics, error) {
		q := url.Values{}
		q.Set("since", since.UTC().Format(time.RFC3339))
		q.Set("canary", strconv.FormatBool(isCanary))

		endpoint := c.baseURL + "/api/v1/models/" + url.PathEscape(modelID) + "/metrics?" + q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("metrics gateway returned status %d for model %s", resp.StatusCode, modelID)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("read gateway response: %w", err)
		}

		var m models.ModelWindowMetrics
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode gateway response: %w", err)
		}
		return &m, nil
	})
}
