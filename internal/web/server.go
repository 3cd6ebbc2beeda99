// Package web serves the HTTP trigger for pipeline runs.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/JonMunkholm/regingest/internal/config"
	"github.com/JonMunkholm/regingest/internal/core"
	"github.com/JonMunkholm/regingest/internal/source"
	mw "github.com/JonMunkholm/regingest/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP trigger.
type Server struct {
	service  *core.Service
	reader   *source.Reader
	cfg      config.ServerConfig
	security config.SecurityConfig
	router   *chi.Mux
	server   *http.Server
}

// NewServer wires routes around a pipeline service. reader resolves
// {"source": "s3://..."} bodies; it may be nil to disable them.
func NewServer(service *core.Service, reader *source.Reader, cfg config.ServerConfig, security config.SecurityConfig) *Server {
	s := &Server{
		service:  service,
		reader:   reader,
		cfg:      cfg,
		security: security,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.security))

		r.Post("/runs", s.handleRun)
		r.Get("/runs/status", s.handleRunStatus)
		r.Post("/validate", s.handleValidate)
	})
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("server listening", "addr", ln.Addr().String(), "entity", s.service.Entity())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running pipelines.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if drainErr := s.service.Limiter().WaitForDrain(ctx); drainErr != nil && err == nil {
		err = drainErr
	}
	return err
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
