// Package server hosts one device profile's HTTP dialect. The profile's
// routes are mounted at the URL root (integrations dial the bare host, the
// way they would a real device); audit, health, and metrics wrap around.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mocknet/virtualmodems/internal/audit"
	"github.com/mocknet/virtualmodems/internal/profile"
	"github.com/mocknet/virtualmodems/internal/version"
)

// Server is one running device profile instance.
type Server struct {
	httpServer *http.Server
	profile    profile.Profile
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New builds a server for the given profile. auditLog wraps the whole mux;
// promReg backs the /metrics endpoint.
func New(addr string, p profile.Profile, auditLog *audit.Log, promReg *prometheus.Registry, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		profile: p,
		logger:  logger,
		mux:     mux,
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      auditLog.Middleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.registerCoreRoutes(auditLog, promReg)
	s.mountProfileRoutes()

	return s
}

// registerCoreRoutes sets up the operator-facing routes every profile
// server carries.
func (s *Server) registerCoreRoutes(auditLog *audit.Log, promReg *prometheus.Registry) {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	for pattern, handler := range auditLog.Routes() {
		s.mux.HandleFunc(pattern, handler)
	}
}

// mountProfileRoutes registers the device dialect at the URL root.
func (s *Server) mountProfileRoutes() {
	for _, route := range s.profile.Routes() {
		pattern := fmt.Sprintf("%s %s", route.Method, route.Path)
		s.mux.HandleFunc(pattern, route.Handler)
		s.logger.Debug("mounted route",
			zap.String("profile", s.profile.Name()),
			zap.String("pattern", pattern),
		)
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.httpServer.Addr),
		zap.String("profile", s.profile.Name()),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the full middleware-wrapped handler, for tests that
// drive the server through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleHealth reports liveness plus the active profile.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-VirtualModems-Version", version.Short())
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"service": "virtualmodems",
		"profile": s.profile.Name(),
		"version": version.Map(),
	})
}
