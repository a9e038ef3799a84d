// Package web provides the HTTP API for registry synchronization.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/repsync/internal/core"
	"github.com/JonMunkholm/repsync/internal/web/middleware"
)

// DefaultMaxUploadSize caps one multipart sync request (two exports).
const DefaultMaxUploadSize = 2*50*1024*1024 + 1<<20

// HealthCheck is a named dependency probe reported by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options configure a Server. Zero values disable the matching feature.
type Options struct {
	Limiter        *core.SyncLimiter
	MaxUploadSize  int64
	RequireAPIKey  bool
	KeyActors      map[string]string
	TrustedProxies []string
	Metrics        http.Handler
	HealthChecks   []HealthCheck
}

// Server is the HTTP server.
type Server struct {
	service *core.Service
	opts    Options
	router  *chi.Mux
	server  *http.Server
}

// NewServer wires routes for service.
func NewServer(service *core.Service, opts Options) *Server {
	if opts.Limiter == nil {
		opts.Limiter = core.NewSyncLimiter(0, 0)
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	s := &Server{
		service: service,
		opts:    opts,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.opts.TrustedProxies))
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.opts.RequireAPIKey, s.opts.KeyActors))
		r.Use(middleware.Logger)

		r.Get("/shapes", s.handleListShapes)
		r.Get("/organizations", s.handleListOrganizations)

		r.Route("/organizations/{code}", func(r chi.Router) {
			r.Put("/", s.handlePutOrganization)
			r.Post("/sync", s.handleSync)
			r.Get("/diagnose", s.handleDiagnose)
			r.Get("/alerts", s.handleAlerts)
			r.Post("/alerts", s.handleRegenerateAlerts)
			r.Get("/runs", s.handleListRuns)
			r.Get("/backups", s.handleListBackups)
			r.Post("/restore/{backupID}", s.handleRestore)
		})
	})
}

// ServerTimeouts are applied to the underlying http.Server.
type ServerTimeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// Start listens on addr until Shutdown. It returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start(addr string, t ServerTimeouts) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       t.Read,
		WriteTimeout:      t.Write,
		IdleTimeout:       t.Idle,
	}
	slog.Info("http server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds headers appropriate for a JSON API.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
