// Package server exposes conversion, validation and history over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/cwl2nf/internal/config"
	"github.com/me/cwl2nf/internal/convert"
	"github.com/me/cwl2nf/internal/store"
)

const version = "0.1.0"

// maxBodyBytes bounds request bodies; CWL documents and pipelines are text.
const maxBodyBytes = 8 << 20

// Server is the cwl2nf REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	converter *convert.Converter
	history   store.Store // optional; nil disables the history endpoints
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore enables the history endpoints.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.history = st
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, conv *convert.Converter, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		converter: conv,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.Addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/tiers", s.handleListTiers)

		r.Post("/convert", s.handleConvert)
		r.Post("/validate", s.handleValidate)

		// History
		r.Route("/conversions", func(r chi.Router) {
			r.Get("/", s.handleListConversions)
			r.Get("/{id}", s.handleGetConversion)
		})
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", s.handleListBatches)
			r.Get("/{id}", s.handleGetBatch)
		})
	})
}
