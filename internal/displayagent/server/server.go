package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cloupeer.io/displayagent/internal/pkg/metrics"
	"cloupeer.io/displayagent/pkg/log"
	"cloupeer.io/displayagent/pkg/options"
)

const shutdownTimeout = 5 * time.Second

// ReadinessFunc reports whether the agent currently holds a broker connection.
type ReadinessFunc func() bool

// Server exposes liveness, readiness and metrics over HTTP.
type Server struct {
	server *http.Server
	logger log.Logger
}

func NewServer(opts *options.HttpOptions, ready ReadinessFunc) *Server {
	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(ready),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log.WithName("http"),
	}
}

// NewRouter builds the handler tree of the endpoint.
func NewRouter(ready ReadinessFunc) http.Handler {
	r := mux.NewRouter()

	// Liveness: the process is up.
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Readiness: the broker connection is established.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready == nil || !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not connected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(shutdownCtx)
	}
}
