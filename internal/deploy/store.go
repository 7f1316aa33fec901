// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package deploy owns the canonical state of every canary deployment: the
// concurrency-safe record store, the append-only metrics history, and the
// lifecycle manager enforcing the deployment state machine.
package deploy

import (
	"sync"
	"time"

	"github.com/tomtom215/canaryd/internal/models"
)

// Persister is the optional durable backend for deployment records and
// metrics history. The in-memory store remains the runtime source of
// truth; the persister is written through on every mutation and read only
// at startup.
type Persister interface {
	SaveDeployment(dep *models.CanaryDeployment) error
	SaveMetrics(m *models.CanaryMetrics) error
	LoadDeployments() ([]*models.CanaryDeployment, error)
	LoadHistory(deploymentID string) ([]*models.CanaryMetrics, error)
	Close() error
}

// ListFilter narrows List results. Zero value matches everything.
type ListFilter struct {
	Status models.DeploymentStatus
}

// Store is the deployment record arena: a mutex-guarded map keyed by
// deployment id. Records are never handed out by internal reference -
// every read returns a clone and every write goes through Update, so
// concurrent routing reads can never observe a partially-applied mutation.
type Store struct {
	mu      sync.RWMutex
	records map[string]*models.CanaryDeployment
	history map[string][]*models.CanaryMetrics
	persist Persister
}

// NewStore creates a store, reloading prior state from the persister when
// one is supplied.
func NewStore(persist Persister) (*Store, error) {
	s := &Store{
		records: make(map[string]*models.CanaryDeployment),
		history: make(map[string][]*models.CanaryMetrics),
		persist: persist,
	}

	if persist != nil {
		deps, err := persist.LoadDeployments()
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			s.records[dep.ID] = dep.Clone()
			hist, err := persist.LoadHistory(dep.ID)
			if err != nil {
				return nil, err
			}
			s.history[dep.ID] = hist
		}
	}

	return s, nil
}

// Insert adds a new deployment record.
func (s *Store) Insert(dep *models.CanaryDeployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[dep.ID]; ok {
		return ErrDeploymentExists
	}
	if s.persist != nil {
		if err := s.persist.SaveDeployment(dep); err != nil {
			return err
		}
	}
	s.records[dep.ID] = dep.Clone()
	return nil
}

// Get returns a copy of the deployment with the given id.
func (s *Store) Get(id string) (*models.CanaryDeployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dep, ok := s.records[id]
	if !ok {
		return nil, ErrDeploymentNotFound
	}
	return dep.Clone(), nil
}

// List returns copies of all deployments matching the filter, in no
// particular order.
func (s *Store) List(filter ListFilter) []*models.CanaryDeployment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.CanaryDeployment, 0, len(s.records))
	for _, dep := range s.records {
		if filter.Status != "" && dep.Status != filter.Status {
			continue
		}
		out = append(out, dep.Clone())
	}
	return out
}

// Active returns copies of all deployments in active status. This is the
// router's hot-path read; it takes only the read lock.
func (s *Store) Active() []*models.CanaryDeployment {
	return s.List(ListFilter{Status: models.StatusActive})
}

// Update applies mutate to the deployment under the write lock. The
// mutation sees a private clone; the record is swapped in (and persisted)
// only if mutate succeeds, so a failed mutation leaves no trace and
// readers never observe intermediate state. Returns a copy of the updated
// record.
func (s *Store) Update(id string, mutate func(*models.CanaryDeployment) error) (*models.CanaryDeployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[id]
	if !ok {
		return nil, ErrDeploymentNotFound
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	if s.persist != nil {
		if err := s.persist.SaveDeployment(next); err != nil {
			return nil, err
		}
	}
	s.records[id] = next
	return next.Clone(), nil
}

// AppendMetrics appends an evaluation snapshot to the deployment's
// history. Snapshots are immutable and strictly ordered by append time.
func (s *Store) AppendMetrics(m *models.CanaryMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[m.DeploymentID]; !ok {
		return ErrDeploymentNotFound
	}
	if s.persist != nil {
		if err := s.persist.SaveMetrics(m); err != nil {
			return err
		}
	}
	cp := *m
	s.history[m.DeploymentID] = append(s.history[m.DeploymentID], &cp)
	return nil
}

// History returns copies of all evaluation snapshots for a deployment, in
// evaluation order.
func (s *Store) History(id string) []*models.CanaryMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.history[id]
	out := make([]*models.CanaryMetrics, 0, len(hist))
	for _, m := range hist {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

// Latest returns the most recent evaluation snapshot, or nil when the
// deployment has not been evaluated yet.
func (s *Store) Latest(id string) *models.CanaryMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.history[id]
	if len(hist) == 0 {
		return nil
	}
	cp := *hist[len(hist)-1]
	return &cp
}

// CountByStatus returns the number of deployments in the given status.
func (s *Store) CountByStatus(status models.DeploymentStatus) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, dep := range s.records {
		if dep.Status == status {
			n++
		}
	}
	return n
}

// Close releases the persister, if any.
func (s *Store) Close() error {
	if s.persist != nil {
		return s.persist.Close()
	}
	return nil
}
