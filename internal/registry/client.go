// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/canaryd/internal/config"
	"github.com/tomtom215/canaryd/internal/metrics"
	"github.com/tomtom215/canaryd/internal/models"
)

// HTTPClient is a ModelRegistry implementation over the registry's REST
// API, with a circuit breaker guarding every call. Registry lookups happen
// on the evaluator/executor path only, never inside request routing.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[interface{}]
}

// NewHTTPClient creates a registry client from configuration.
func NewHTTPClient(cfg config.RegistryConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker("model-registry", cfg.Breaker),
	}
}

// newBreaker builds a gobreaker instance wired to prometheus state metrics.
func newBreaker(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker[interface{}] {
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	})
}

// GetModel implements ModelRegistry.
func (c *HTTPClient) GetModel(ctx context.Context, id string) (*models.Model, error) {
	var m models.Model
	if err := c.getJSON(ctx, "/api/v1/models/"+url.PathEscape(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetModelHealth implements ModelRegistry.
func (c *HTTPClient) GetModelHealth(ctx context.Context, id string) (*models.ModelHealth, error) {
	var h models.ModelHealth
	if err := c.getJSON(ctx, "/api/v1/models/"+url.PathEscape(id)+"/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// UpdateModelStatus implements ModelRegistry.
func (c *HTTPClient) UpdateModelStatus(ctx context.Context, id string, status models.ModelStatus) error {
	body, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut,
			c.baseURL+"/api/v1/models/"+url.PathEscape(id)+"/status", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrModelNotFound
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}

// GetActiveModelsForAgent implements ModelRegistry.
func (c *HTTPClient) GetActiveModelsForAgent(ctx context.Context, agentType string) ([]models.Model, error) {
	var out []models.Model
	if err := c.getJSON(ctx, "/api/v1/agents/"+url.PathEscape(agentType)+"/models", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// getJSON performs a breaker-guarded GET and decodes the response body.
func (c *HTTPClient) getJSON(ctx context.Context, path string, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrModelNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("registry returned status %d for %s", resp.StatusCode, path)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("read registry response: %w", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode registry response: %w", err)
		}
		return nil, nil
	})
	return err
}
