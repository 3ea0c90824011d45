package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/sdplabs/ingest/internal/metrics"
)

type Server struct {
	log     *slog.Logger
	cfg     *Config
	router  *chi.Mux
	httpSrv *http.Server
}

func New(cfg *Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Set MaxHeaderBytes to prevent abuse
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)

	allowedOrigins := s.cfg.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Origin"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok\n")); err != nil {
			s.log.Error("failed to write healthz response", "error", err)
		}
	})
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.Handler())

	// Uploads re-encode whole files in memory; bound how fast one client can
	// push them. Log queries hit ClickHouse behind a short-lived cache, so
	// they get a higher allowance.
	uploadLimiter := NewRateLimiter(rate.Every(time.Minute/30), 10)
	logsLimiter := NewRateLimiter(rate.Every(time.Second), 30)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/environments", s.handleEnvironments)
		r.Get("/products", s.handleListProducts)
		r.Get("/folders/*", s.handleListFolders)
		r.Get("/products/*", s.handleProductSubresource)
		r.Post("/products/save-data", s.handleSaveData)
		r.Post("/initiate-resumable-upload", s.handleInitiateResumableUpload)
		r.Post("/analyze", s.handleAnalyze)
		r.With(uploadLimiter.Middleware).Post("/upload", s.handleUpload)
		r.Post("/warehouse/load", s.handleWarehouseLoad)
		r.Post("/pipeline/run-product", s.handleRunProductPipeline)
		r.With(logsLimiter.Middleware).Get("/logs/user/{user}", s.handleLogsByUser)
		r.With(logsLimiter.Middleware).Get("/logs/product/{product}", s.handleLogsByProduct)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		s.log.Error("server: http server error causing shutdown", "error", err, "address", s.cfg.ListenAddr)
		return err
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.VersionInfo)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

// captureServerError reports a server-side failure to the error tracker.
// Without a configured DSN the sentry call is a no-op.
var captureServerError = func(message string) {
	sentry.CaptureMessage(message)
}

// writeError writes an error response. Client errors are the caller's
// problem; 500-class responses are ours and get reported.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		captureServerError(message)
	}
	s.writeJSON(w, status, map[string]string{"error": message})
}
