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

	"fieldmap/internal/config"
	"fieldmap/internal/fetch"
	"fieldmap/internal/history"
	"fieldmap/internal/middleware"
)

// Server is the serve-mode HTTP server. It owns the chi router, the
// workspace, the run history store, and the revalidation scheduler.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	httpServer *http.Server
	workspace  *Workspace
	history    *history.Store
	scheduler  *Scheduler
	logger     *slog.Logger
}

// New creates a Server, wires up all routes and middleware, and returns it
// ready to listen. The context is used for OIDC provider discovery.
func New(ctx context.Context, cfg *config.Config, hist *history.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	validator, err := middleware.NewValidator(ctx, cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth validator: %w", err)
	}

	ws := NewWorkspace(cfg.WorkspaceDir, cfg.RulesDir, fetch.NewSource(cfg), logger)
	s := &Server{
		cfg:       cfg,
		workspace: ws,
		history:   hist,
		scheduler: NewScheduler(ws, hist, cfg.RevalidateCron, logger),
		logger:    logger,
	}
	s.setupRouter(validator)
	return s, nil
}

func (s *Server) setupRouter(validator middleware.JWTValidator) {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", s.cfg.Auth.APIKeyHeader},
		ExposedHeaders: []string{"X-Request-Id", "X-Run-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))

	// Liveness probe, no auth required.
	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(s.cfg.Auth, validator))
		r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: s.cfg.RateLimitRPS,
			Burst:             s.cfg.RateLimitBurst,
		}))

		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents/{name}/validate", s.handleValidateDocument)
		r.Get("/documents/{name}/graph", s.handleDocumentGraph)
		r.Get("/documents/{name}/view", s.handleDocumentView)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	s.router = r
}

// ListenAndServe starts the scheduler and the HTTP server, then blocks
// until SIGINT or SIGTERM. It drains in-flight requests before returning.
func (s *Server) ListenAndServe() error {
	if err := s.scheduler.Start(); err != nil {
		return err
	}
	defer s.scheduler.Stop()

	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.cfg.ListenAddr, "workspace", s.cfg.WorkspaceDir)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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
