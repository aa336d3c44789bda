// Package api serves stored prices over HTTP and exposes the sync triggers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"PriceSync/internal/metrics"
	"PriceSync/internal/model"
	"PriceSync/internal/store"
	"PriceSync/internal/symbol"
)

// Syncer runs the on-demand catch-up before a read.
type Syncer interface {
	EnsureUpToDate(ctx context.Context, raw string) (model.SyncResult, error)
}

// Trigger starts background bulk runs.
type Trigger interface {
	Trigger() error
	Last() *model.RunSummary
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Store   store.Store
	Syncer  Syncer
	Aliases symbol.Aliases
	Trigger Trigger
	Metrics *metrics.Registry
}

// Server is the HTTP front of the sync engine.
type Server struct {
	router *mux.Router
	server *http.Server
	deps   Deps
	log    zerolog.Logger
}

// NewServer builds the router and the underlying http.Server.
func NewServer(addr string, deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		log:    log.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/prices", s.prices).Methods(http.MethodGet)
	api.HandleFunc("/sync", s.triggerSync).Methods(http.MethodPost)
	api.HandleFunc("/sync/last", s.lastRun).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}

type ctxKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		id, _ := r.Context().Value(ctxKey{}).(string)
		s.log.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
