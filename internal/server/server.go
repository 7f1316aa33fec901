// Canaryd - Canary Deployment Control for Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/canaryd

// Package server exposes the read-only observability API: deployment
// listings, per-deployment status, health, and Prometheus metrics.
// Lifecycle operations are deliberately not exposed here; they go through
// the deployment manager's programmatic API.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/canaryd/internal/config"
	"github.com/tomtom215/canaryd/internal/deploy"
	"github.com/tomtom215/canaryd/internal/models"
)

// Server is the observability HTTP server.
type Server struct {
	manager *deploy.Manager
	logger  zerolog.Logger
	cfg     config.ServerConfig
}

// New creates a Server.
func New(cfg config.ServerConfig, manager *deploy.Manager, logger *zerolog.Logger) *Server {
	return &Server{
		manager: manager,
		logger:  logger.With().Str("component", "server").Logger(),
		cfg:     cfg,
	}
}

// HTTPServer returns a configured http.Server ready to be supervised.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
		IdleTimeout:       60 * time.Second,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.cfg.RateLimitReqs > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/deployments", s.handleListDeployments)
		r.Get("/deployments/{id}/status", s.handleDeploymentStatus)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	filter := deploy.ListFilter{
		Status: models.DeploymentStatus(r.URL.Query().Get("status")),
	}
	deployments := s.manager.ListDeployments(filter)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"deployments": deployments,
		"count":       len(deployments),
	})
}

func (s *Server) handleDeploymentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.manager.GetDeploymentStatus(id)
	if err != nil {
		if errors.Is(err, deploy.ErrDeploymentNotFound) {
			s.writeError(w, http.StatusNotFound, "deployment not found")
			return
		}
		s.logger.Error().Err(err).Str("deployment_id", id).Msg("Failed to load deployment status")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
