// Package web provides the read-only status server for import runs.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/graphload/internal/metrics"
	"github.com/JonMunkholm/graphload/internal/progress"
	"github.com/JonMunkholm/graphload/internal/web/middleware"
)

// ProgressSource returns the checkpoint to report. A running import passes
// its live store; the standalone server reopens the checkpoint per request.
type ProgressSource func() (*progress.Store, error)

// Server is the HTTP status server.
type Server struct {
	progress ProgressSource
	kinds    []string
	dataset  string
	metrics  *metrics.Metrics
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a status server for dataset. kinds fixes the listing
// order; nil lists every recorded kind.
func NewServer(src ProgressSource, dataset string, kinds []string, m *metrics.Metrics) *Server {
	s := &Server{
		progress: src,
		kinds:    kinds,
		dataset:  dataset,
		metrics:  m,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// LiveProgress serves an already open store.
func LiveProgress(ps *progress.Store) ProgressSource {
	return func() (*progress.Store, error) { return ps, nil }
}

// ReloadingProgress reopens the checkpoint on every call.
func ReloadingProgress(backend progress.Backend) ProgressSource {
	return func() (*progress.Store, error) { return progress.Open(backend) }
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(30 * time.Second))
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleStatusPage)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/progress", s.handleProgressJSON)
	s.router.Get("/progress.txt", s.handleProgressText)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server listening", "addr", ln.Addr().String())
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
