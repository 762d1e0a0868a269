// Package metrics owns the Prometheus registry every service reports into
// and serves it over HTTP next to a liveness probe.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cyberinferno/protohackers/logger"
)

// Namespace prefixes every metric exported by this module.
const Namespace = "protohackers"

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// NewRouter builds the HTTP routes: GET /metrics and GET /healthz.
//
// Parameters:
//   - gatherer: Source of the exposed metrics
//
// Returns:
//   - A chi router ready to be mounted or served
func NewRouter(gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// Server exposes a registry over HTTP until its context is cancelled.
type Server struct {
	Logger   logger.Logger
	Addr     string
	Gatherer prometheus.Gatherer

	listener net.Listener
}

// Listen binds Addr. Run calls it when it has not been called yet; tests
// call it first to learn the bound port.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("metrics server failed to listen on %s: %w", s.Addr, err)
	}

	s.listener = ln
	return nil
}

// ListenAddr returns the bound address, or nil before Listen.
func (s *Server) ListenAddr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Run serves until ctx is done, then shuts down gracefully.
//
// Returns:
//   - nil after a clean shutdown, or the listen/serve error
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Handler:           NewRouter(s.Gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(s.listener)
	}()
	s.Logger.Info("metrics server started", logger.Field{Key: "addr", Value: s.listener.Addr().String()})

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}

	s.Logger.Info("metrics server stopped")
	return nil
}
