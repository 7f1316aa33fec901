// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/canaryd/internal/config"
	"github.com/tomtom215/canaryd/internal/deploy"
	"github.com/tomtom215/canaryd/internal/events"
	"github.com/tomtom215/canaryd/internal/logging"
	"github.com/tomtom215/canaryd/internal/models"
)

type stubRegistry struct{}

func (stubRegistry) GetModel(_ context.Context, id string) (*models.Model, error) {
	return &models.Model{ID: id}, nil
}

func (stubRegistry) GetModelHealth(_ context.Context, id string) (*models.ModelHealth, error) {
	return &models.ModelHealth{ModelID: id, HealthScore: 100}, nil
}

func (stubRegistry) UpdateModelStatus(context.Context, string, models.ModelStatus) error { return nil }

func (stubRegistry) GetActiveModelsForAgent(context.Context, string) ([]models.Model, error) {
	return nil, nil
}

type stubSink struct{}

func (stubSink) UpdateTrafficSplit(context.Context, string, models.TrafficSplit) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *deploy.Store) {
	t.Helper()
	store, err := deploy.NewStore(nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	logger := logging.NewTestLogger(io.Discard)
	bus := events.NewBus(events.DefaultConfig(), &logger)
	t.Cleanup(func() { _ = bus.Close() })

	manager := deploy.NewManager(store, stubRegistry{}, stubSink{}, bus, 80, &logger)
	srv := New(config.ServerConfig{Timeout: 5 * time.Second}, manager, &logger)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, store
}

func seedDeployment(t *testing.T, store *deploy.Store, id string, status models.DeploymentStatus) {
	t.Helper()
	err := store.Insert(&models.CanaryDeployment{
		ID:                id,
		Name:              id,
		ProductionModelID: "model-prod",
		CanaryModelID:     "model-canary",
		TrafficSplit:      models.TrafficSplit{Production: 90, Canary: 10},
		Status:            status,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Insert %s: %v", id, err)
	}
}

func getJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var body map[string]string
	getJSON(t, ts.URL+"/healthz", http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Errorf("health body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}
}

func TestListDeployments(t *testing.T) {
	ts, store := newTestServer(t)
	seedDeployment(t, store, "cd-1", models.StatusActive)
	seedDeployment(t, store, "cd-2", models.StatusPaused)
	seedDeployment(t, store, "cd-3", models.StatusActive)

	var body struct {
		Deployments []models.CanaryDeployment `json:"deployments"`
		Count       int                       `json:"count"`
	}
	getJSON(t, ts.URL+"/api/v1/deployments", http.StatusOK, &body)
	if body.Count != 3 || len(body.Deployments) != 3 {
		t.Errorf("unfiltered list count = %d", body.Count)
	}

	body.Deployments = nil
	getJSON(t, ts.URL+"/api/v1/deployments?status=active", http.StatusOK, &body)
	if body.Count != 2 {
		t.Errorf("active list count = %d, want 2", body.Count)
	}
	for _, dep := range body.Deployments {
		if dep.Status != models.StatusActive {
			t.Errorf("filtered list contains status %s", dep.Status)
		}
	}
}

func TestDeploymentStatusEndpoint(t *testing.T) {
	ts, store := newTestServer(t)
	seedDeployment(t, store, "cd-1", models.StatusActive)

	err := store.AppendMetrics(&models.CanaryMetrics{
		DeploymentID: "cd-1",
		EvaluatedAt:  time.Now().UTC(),
		Comparison:   models.Comparison{Recommendation: models.RecommendProceed, Confidence: 0.9},
	})
	if err != nil {
		t.Fatalf("AppendMetrics: %v", err)
	}

	var body deploy.Status
	getJSON(t, ts.URL+"/api/v1/deployments/cd-1/status", http.StatusOK, &body)
	if body.Deployment == nil || body.Deployment.ID != "cd-1" {
		t.Fatalf("status deployment = %+v", body.Deployment)
	}
	if body.CurrentMetrics == nil || body.CurrentMetrics.Comparison.Confidence != 0.9 {
		t.Errorf("current metrics = %+v", body.CurrentMetrics)
	}
	if len(body.Recommendations) != 1 || body.Recommendations[0] != models.RecommendProceed {
		t.Errorf("recommendations = %v", body.Recommendations)
	}
}

func TestDeploymentStatusNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	var body map[string]string
	getJSON(t, ts.URL+"/api/v1/deployments/cd-ghost/status", http.StatusNotFound, &body)
	if body["error"] == "" {
		t.Error("404 body missing error message")
	}
}
