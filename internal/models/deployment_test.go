// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package models

import (
	"strings"
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to DeploymentStatus
		want     bool
	}{
		{StatusPreparing, StatusActive, true},
		{StatusPreparing, StatusPaused, false},
		{StatusPreparing, StatusCompleted, false},
		{StatusPreparing, StatusRolledBack, true},
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusRolledBack, true},
		{StatusActive, StatusFailed, true},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusCompleted, false},
		{StatusPaused, StatusRolledBack, true},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusRolledBack, false},
		{StatusRolledBack, StatusActive, false},
		{StatusFailed, StatusRolledBack, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []DeploymentStatus{StatusCompleted, StatusRolledBack, StatusFailed} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []DeploymentStatus{StatusPreparing, StatusActive, StatusPaused} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTrafficSplitValid(t *testing.T) {
	tests := []struct {
		split TrafficSplit
		want  bool
	}{
		{TrafficSplit{Production: 100, Canary: 0}, true},
		{TrafficSplit{Production: 0, Canary: 100}, true},
		{TrafficSplit{Production: 70, Canary: 30}, true},
		{TrafficSplit{Production: 70, Canary: 20}, false},
		{TrafficSplit{Production: 110, Canary: -10}, false},
		{TrafficSplit{Production: 50, Canary: 60}, false},
	}

	for _, tt := range tests {
		if got := tt.split.Valid(); got != tt.want {
			t.Errorf("Valid(%+v) = %v, want %v", tt.split, got, tt.want)
		}
	}
}

func TestStrategyStepCount(t *testing.T) {
	tests := []struct {
		strategy RolloutStrategy
		want     int
	}{
		{RolloutStrategy{Type: StrategyLinear}, 10},
		{RolloutStrategy{Type: StrategyStep}, 4},
		{RolloutStrategy{Type: StrategyExponential}, 10},
		{RolloutStrategy{Type: StrategyLinear, Steps: 5}, 5},
		{RolloutStrategy{Type: StrategyStep, Steps: 8}, 8},
	}

	for _, tt := range tests {
		if got := tt.strategy.StepCount(); got != tt.want {
			t.Errorf("StepCount(%+v) = %d, want %d", tt.strategy, got, tt.want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	started := time.Now().UTC()
	dep := &CanaryDeployment{
		ID:        "cd-1",
		StartedAt: &started,
	}

	cp := dep.Clone()
	newTime := started.Add(time.Hour)
	*cp.StartedAt = newTime
	cp.TrafficSplit.Canary = 50

	if !dep.StartedAt.Equal(started) {
		t.Error("Clone shares the StartedAt pointer")
	}
	if dep.TrafficSplit.Canary != 0 {
		t.Error("Clone shares value fields")
	}

	var nilDep *CanaryDeployment
	if nilDep.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestNewDeploymentID(t *testing.T) {
	a, b := NewDeploymentID(), NewDeploymentID()
	if !strings.HasPrefix(a, "cd-") {
		t.Errorf("id %q missing cd- prefix", a)
	}
	if a == b {
		t.Error("ids are not unique")
	}
}

func TestEvaluationWindow(t *testing.T) {
	c := SuccessCriteria{EvaluationWindowMinutes: 15}
	if got := c.EvaluationWindow(); got != 15*time.Minute {
		t.Errorf("EvaluationWindow = %s, want 15m", got)
	}
}
