package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Server provides HTTP endpoints for metrics and health
type Server struct {
	httpServer *http.Server
	health     *HealthChecker
	port       int
}

// NewServer creates a new observability server. A nil checker serves an
// always-healthy report.
func NewServer(port int, health *HealthChecker) *Server {
	if health == nil {
		health = NewHealthChecker()
	}
	return &Server{
		health: health,
		port:   port,
	}
}

// Handler returns the server's request multiplexer
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.health.HealthHandler())
	mux.HandleFunc("/health/live", LivenessHandler())
	mux.HandleFunc("/health/ready", s.health.ReadinessHandler())
	mux.Handle("/metrics", MetricsHandler())

	return mux
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
