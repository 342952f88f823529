package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/auth"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server is the HTTP API server.
type Server struct {
	httpServer     *http.Server
	telemetryHub   TelemetryPort
	orchestrator   OrchestratorPort
	authMiddleware *auth.Middleware
	transport      adapter.Info
	log            *zap.Logger
	startTime      time.Time
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

// NewServer creates a server without authentication.
func NewServer(telemetryHub TelemetryPort, orchestrator OrchestratorPort, readTimeout, writeTimeout, idleTimeout time.Duration) *Server {
	return &Server{
		telemetryHub: telemetryHub,
		orchestrator: orchestrator,
		log:          zap.NewNop(),
		startTime:    time.Now(),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		idleTimeout:  idleTimeout,
	}
}

// NewServerWithAuth creates a server whose routes require bearer tokens.
func NewServerWithAuth(telemetryHub TelemetryPort, orchestrator OrchestratorPort, authMiddleware *auth.Middleware, readTimeout, writeTimeout, idleTimeout time.Duration) *Server {
	s := NewServer(telemetryHub, orchestrator, readTimeout, writeTimeout, idleTimeout)
	s.authMiddleware = authMiddleware
	return s
}

// SetTransportInfo sets the link description reported by /health.
func (s *Server) SetTransportInfo(info adapter.Info) { s.transport = info }

// SetLogger sets the request logger.
func (s *Server) SetLogger(l *zap.Logger) { s.log = l }

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start listens on addr and serves until Stop. It returns nil after a
// graceful shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
