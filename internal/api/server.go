package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/radio-control/wifid/internal/auth"
	"github.com/radio-control/wifid/internal/config"
)

var log = logging.Logger("api")

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP API server.
type Server struct {
	httpServer     *http.Server
	wifi           WiFiPort
	diagnostics    DiagnosticsPort
	telemetryHub   TelemetryPort
	authMiddleware *auth.Middleware
	cfg            config.HTTPConfig
	startTime      time.Time
	version        string
}

// NewServer creates a new API server. A nil authMiddleware serves every route without
// authentication.
func NewServer(wifi WiFiPort, diagnostics DiagnosticsPort, telemetryHub TelemetryPort, authMiddleware *auth.Middleware, cfg config.HTTPConfig, version string) *Server {
	if authMiddleware == nil {
		authMiddleware = auth.NewMiddleware(nil)
	}
	return &Server{
		wifi:           wifi,
		diagnostics:    diagnostics,
		telemetryHub:   telemetryHub,
		authMiddleware: authMiddleware,
		cfg:            cfg,
		startTime:      time.Now(),
		version:        version,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start serves on addr until Stop. An empty addr uses the configured one.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.cfg.Addr
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	log.Infof("HTTP API listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
