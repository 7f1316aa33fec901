// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package deploy

import (
	"testing"
	"time"

	"github.com/tomtom215/canaryd/internal/models"
)

func TestBadgerPersisterRoundTrip(t *testing.T) {
	dir := t.TempDir()

	p, err := OpenBadgerPersister(dir)
	if err != nil {
		t.Fatalf("OpenBadgerPersister: %v", err)
	}

	dep := storeDeployment("cd-persist", models.StatusActive)
	if err := p.SaveDeployment(dep); err != nil {
		t.Fatalf("SaveDeployment: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		err := p.SaveMetrics(&models.CanaryMetrics{
			DeploymentID: "cd-persist",
			EvaluatedAt:  base.Add(time.Duration(i) * time.Minute),
			Comparison:   models.Comparison{Confidence: float64(i)},
		})
		if err != nil {
			t.Fatalf("SaveMetrics %d: %v", i, err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and confirm the state survives.
	p, err = OpenBadgerPersister(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p.Close()

	deps, err := p.LoadDeployments()
	if err != nil {
		t.Fatalf("LoadDeployments: %v", err)
	}
	if len(deps) != 1 || deps[0].ID != "cd-persist" || deps[0].Status != models.StatusActive {
		t.Fatalf("loaded deployments = %+v", deps)
	}

	hist, err := p.LoadHistory("cd-persist")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	for i, snap := range hist {
		if snap.Comparison.Confidence != float64(i) {
			t.Errorf("history[%d].Confidence = %g, want %d (order lost)", i, snap.Comparison.Confidence, i)
		}
	}

	if empty, err := p.LoadHistory("cd-other"); err != nil || len(empty) != 0 {
		t.Errorf("LoadHistory for unknown deployment = %v, %v", empty, err)
	}
}

func TestStoreReloadsFromPersister(t *testing.T) {
	dir := t.TempDir()

	p, err := OpenBadgerPersister(dir)
	if err != nil {
		t.Fatalf("OpenBadgerPersister: %v", err)
	}

	s, err := NewStore(p)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Insert(storeDeployment("cd-1", models.StatusActive)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Update("cd-1", func(d *models.CanaryDeployment) error {
		d.TrafficSplit = models.TrafficSplit{Production: 60, Canary: 40}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.AppendMetrics(&models.CanaryMetrics{
		DeploymentID: "cd-1",
		EvaluatedAt:  time.Now().UTC(),
		Comparison:   models.Comparison{Recommendation: models.RecommendProceed},
	}); err != nil {
		t.Fatalf("AppendMetrics: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A fresh store over the same directory sees the committed state.
	p2, err := OpenBadgerPersister(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2, err := NewStore(p2)
	if err != nil {
		t.Fatalf("NewStore after restart: %v", err)
	}
	defer s2.Close()

	dep, err := s2.Get("cd-1")
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if dep.TrafficSplit.Canary != 40 {
		t.Errorf("restored split = %+v, want 40%% canary", dep.TrafficSplit)
	}
	if hist := s2.History("cd-1"); len(hist) != 1 {
		t.Errorf("restored history length = %d, want 1", len(hist))
	}
}
