// Package server wires the gate into an HTTP pipeline: every mutating
// request passes origin validation, CSRF token verification, API-key
// admission, and permission checks before any handler runs.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trustgate/trustgate/internal/audit"
	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/csrf"
	"github.com/trustgate/trustgate/internal/handler"
	"github.com/trustgate/trustgate/internal/model"
	"github.com/trustgate/trustgate/internal/openapi"
	"github.com/trustgate/trustgate/internal/server/middleware"
	"github.com/trustgate/trustgate/internal/service"
)

// Server is the top-level HTTP server. It owns the router and the wiring of
// both gates; the store, auth service, and audit sink are injected.
type Server struct {
	cfg        config.Config
	router     chi.Router
	store      *config.Store
	authSvc    *service.AuthService
	tokens     *csrf.TokenService
	origins    *csrf.OriginPolicy
	sink       audit.Sink
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes and middleware wired, ready for
// ListenAndServe.
func New(cfg config.Config, store *config.Store, authSvc *service.AuthService, tokens *csrf.TokenService, origins *csrf.OriginPolicy, sink audit.Sink, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		authSvc: authSvc,
		tokens:  tokens,
		origins: origins,
		sink:    sink,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Admin-Key", "X-CSRF-Token", "X-XSRF-Token", "X-Requested-With"},
		ExposedHeaders:   []string{"X-CSRF-Token", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.RateLimitPerMinute > 0 {
		r.Use(middleware.RateLimitByIP(s.cfg.RateLimitPerMinute))
	}

	// --- Unauthenticated operational endpoints ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.json", handler.NewOpenAPIHandler(openapi.Generate("/")).ServeSpec)

	// --- API routes: every mutating request passes the CSRF gate first ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CSRFGate(s.tokens, s.origins, s.logger))

		csrfHandler := handler.NewCSRFHandler(s.tokens, s.cfg.Production())
		r.Get("/csrf-token", csrfHandler.IssueToken)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Authenticate(s.authSvc))
			if s.cfg.RateLimitPerMinute > 0 {
				r.Use(middleware.RateLimitByKey(s.cfg.RateLimitPerMinute))
			}

			keyHandler := handler.NewKeyHandler(s.store, s.sink)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(s.authSvc, model.PermManageAPIKeys))
				r.Get("/keys", keyHandler.ListKeys)
				r.Post("/keys", keyHandler.CreateKey)
				r.Delete("/keys/{prefix}", keyHandler.RevokeKey)
				r.Post("/keys/{prefix}/rotate", keyHandler.RotateKey)
			})

			auditHandler := handler.NewAuditHandler(s.store, s.sink)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(s.authSvc, model.PermViewAuditLog))
				r.Get("/audit", auditHandler.ListEntries)
				r.Get("/audit/stats", auditHandler.Stats)
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(s.authSvc, model.PermExportData))
				r.Get("/audit/export", auditHandler.Export)
			})
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz reports readiness: the key/audit store must be reachable.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","store":"unreachable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// ListenAndServe starts the server and blocks until SIGINT/SIGTERM, then
// drains in-flight requests before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "environment", s.cfg.Environment)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
