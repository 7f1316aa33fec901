// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// StartStopper is the Start/Stop lifecycle shape used by the monitoring
// scheduler. The wrapper adapts it to suture's Serve contract.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
}

// MonitorService adapts the monitoring scheduler to a suture service.
type MonitorService struct {
	name    string
	monitor StartStopper
}

// NewMonitorService wraps a Start/Stop component for supervision.
func NewMonitorService(name string, monitor StartStopper) *MonitorService {
	return &MonitorService{name: name, monitor: monitor}
}

// Serve implements suture.Service: start the component, block until the
// context is canceled, then stop it synchronously.
func (s *MonitorService) Serve(ctx context.Context) error {
	if err := s.monitor.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", s.name, err)
	}
	<-ctx.Done()
	s.monitor.Stop()
	return ctx.Err()
}

func (s *MonitorService) String() string { return s.name }

// HTTPService adapts an http.Server to a suture service with graceful
// shutdown.
type HTTPService struct {
	name            string
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPService wraps an http.Server for supervision.
func NewHTTPService(name string, server *http.Server, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{name: name, server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown %s: %w", s.name, err)
		}
		return ctx.Err()
	}
}

func (s *HTTPService) String() string { return s.name }
