// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package deploy

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/canaryd/internal/models"
)

// Key prefixes for BadgerDB storage.
const (
	deploymentKeyPrefix = "deployment:"
	metricsKeyPrefix    = "metrics:"
)

// BadgerPersister is a Persister backed by BadgerDB. Deployment records
// are stored by id; metrics snapshots under ordered per-deployment keys so
// history loads back in evaluation order.
type BadgerPersister struct {
	db *badger.DB
}

// OpenBadgerPersister opens (or creates) the Badger database at path.
func OpenBadgerPersister(path string) (*BadgerPersister, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", path, err)
	}
	return &BadgerPersister{db: db}, nil
}

// NewBadgerPersister wraps an already-open Badger database.
func NewBadgerPersister(db *badger.DB) *BadgerPersister {
	return &BadgerPersister{db: db}
}

// SaveDeployment implements Persister.
func (p *BadgerPersister) SaveDeployment(dep *models.CanaryDeployment) error {
	data, err := json.Marshal(dep)
	if err != nil {
		return fmt.Errorf("marshal deployment: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(deploymentKeyPrefix+dep.ID), data)
	})
}

// SaveMetrics implements Persister. The key embeds the evaluation
// timestamp (nanoseconds, zero-padded) so a prefix scan yields snapshots
// in evaluation order.
func (p *BadgerPersister) SaveMetrics(m *models.CanaryMetrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}
	key := fmt.Sprintf("%s%s:%020d", metricsKeyPrefix, m.DeploymentID, m.EvaluatedAt.UnixNano())
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// LoadDeployments implements Persister.
func (p *BadgerPersister) LoadDeployments() ([]*models.CanaryDeployment, error) {
	var out []*models.CanaryDeployment

	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(deploymentKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var dep models.CanaryDeployment
				if err := json.Unmarshal(val, &dep); err != nil {
					return fmt.Errorf("unmarshal deployment: %w", err)
				}
				out = append(out, &dep)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadHistory implements Persister.
func (p *BadgerPersister) LoadHistory(deploymentID string) ([]*models.CanaryMetrics, error) {
	var out []*models.CanaryMetrics

	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metricsKeyPrefix + deploymentID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var m models.CanaryMetrics
				if err := json.Unmarshal(val, &m); err != nil {
					return fmt.Errorf("unmarshal metrics snapshot: %w", err)
				}
				out = append(out, &m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close implements Persister.
func (p *BadgerPersister) Close() error {
	return p.db.Close()
}
