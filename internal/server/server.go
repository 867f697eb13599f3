// Package server wires the user directory together and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	sqlite.DB → UserService → UserHandler → chi routes
//
// Everything is assembled in New (the composition root), so no other package
// constructs its own dependencies.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/user-directory/internal/config"
	"github.com/sakif/user-directory/internal/handler"
	"github.com/sakif/user-directory/internal/metrics"
	"github.com/sakif/user-directory/internal/middleware"
	sqliteRepo "github.com/sakif/user-directory/internal/repository/sqlite"
	"github.com/sakif/user-directory/internal/service"
	"github.com/sakif/user-directory/internal/validation"
)

// Server owns the router and every resource that must be released on
// shutdown: the database and the rate limiter's cleanup goroutine.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	limiter *middleware.RateLimiter // nil when rate limiting is disabled
}

// New opens the database, applies migrations and builds the router.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if cfg.RateLimitPerMinute > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitPerMinute))
	}

	s.setupRoutes()

	return s, nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
//	GET    /healthz                → liveness + database ping
//	GET    /metrics                → Prometheus scrape endpoint
//	POST   /api/users              → create
//	GET    /api/users              → list (page, size, sortBy, order)
//	GET    /api/users/aggregate    → group by city and/or age
//	GET    /api/users/{id}         → get
//	PUT    /api/users/{id}         → partial update
//	DELETE /api/users/{id}         → delete
//
// Middleware order: request ID and real IP first so the access log and the
// rate limiter see them; the recoverer innermost of the global chain so a panic
// still answers with the error envelope and a logged 500.
func (s *Server) setupRoutes() {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(collector))
	s.router.Use(handler.Recoverer(s.logger))

	health := handler.NewHealthHandler(s.db, s.logger)
	s.router.Get("/healthz", health.HandleHealth)
	s.router.Handle("/metrics", metrics.Handler(registry))

	v := validation.New()
	userService := service.NewUserService(s.db, v, collector, s.logger)
	userHandler := handler.NewUserHandler(userService, v, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware())
		}
		r.Mount("/users", userHandler.Routes())
	})
}

// Start runs the server until SIGINT or SIGTERM, then drains in-flight
// requests for up to ShutdownTimeout and releases the database.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.Int("rate_limit_per_minute", s.config.RateLimitPerMinute),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close stops the rate limiter and closes the database.
func (s *Server) Close() error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.db.Close()
}
