package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-marks/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP control surface
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	controller driving.Controller
	auth       *BearerAuth

	// backends checked by /ready, keyed by component name
	backends map[string]Pinger
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// ControlTokenHash is the bcrypt hash of the bearer token the API requires.
	// Empty disables authentication (loopback use).
	ControlTokenHash string
	// AllowedOrigins enables CORS for browser front ends
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "127.0.0.1",
		Port:    8380,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server. verifier may be nil when no control
// token is configured.
func NewServer(cfg Config, controller driving.Controller, verifier TokenVerifier, backends map[string]Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:     http.NewServeMux(),
		version:    cfg.Version,
		logger:     logger,
		controller: controller,
		auth:       NewBearerAuth(cfg.ControlTokenHash, verifier),
		backends:   backends,
	}

	var handler http.Handler = s.router
	if len(cfg.AllowedOrigins) > 0 {
		handler = NewCORSMiddleware(cfg.AllowedOrigins).Handler(handler)
	}
	handler = NewLoggingMiddleware(logger).Handler(handler)
	handler = NewRecoveryMiddleware(logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// a sweep may run for a while before the reply is written
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Generic message envelope
	s.router.Handle("POST /api/v1/messages", s.auth.Authenticate(http.HandlerFunc(s.handleMessage)))

	// Sync endpoints
	s.router.Handle("POST /api/v1/sync", s.auth.Authenticate(http.HandlerFunc(s.handleSyncAll)))
	s.router.Handle("POST /api/v1/sync/{providerId}", s.auth.Authenticate(http.HandlerFunc(s.handleSyncProvider)))
	s.router.Handle("GET /api/v1/sync/status", s.auth.Authenticate(http.HandlerFunc(s.handleSyncStatus)))

	// Settings endpoints
	s.router.Handle("PUT /api/v1/settings/sync-interval", s.auth.Authenticate(http.HandlerFunc(s.handleUpdateInterval)))

	// Provider endpoints
	s.router.Handle("GET /api/v1/providers", s.auth.Authenticate(http.HandlerFunc(s.handleListProviders)))
	s.router.Handle("GET /api/v1/providers/{providerId}", s.auth.Authenticate(http.HandlerFunc(s.handleGetProvider)))
	s.router.Handle("PATCH /api/v1/providers/{providerId}/config", s.auth.Authenticate(http.HandlerFunc(s.handleSetProviderConfig)))
	s.router.Handle("POST /api/v1/providers/{providerId}/authenticate", s.auth.Authenticate(http.HandlerFunc(s.handleAuthenticate)))
	s.router.Handle("DELETE /api/v1/providers/{providerId}/auth", s.auth.Authenticate(http.HandlerFunc(s.handleDisconnect)))
}

// Handler returns the fully wrapped handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting control server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down control server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("control server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
