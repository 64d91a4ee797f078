// Package api exposes the share engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TobyX424242/ZeroShare/internal/config"
	"github.com/TobyX424242/ZeroShare/internal/metrics"
	"github.com/TobyX424242/ZeroShare/internal/shares"
	"github.com/TobyX424242/ZeroShare/internal/signing"
	"github.com/TobyX424242/ZeroShare/internal/sweeper"
)

const shutdownTimeout = 5 * time.Second

// Server exposes HTTP endpoints for uploading, probing and fetching shares.
type Server struct {
	cfg      *config.Config
	shares   *shares.Service
	sweeper  *sweeper.Sweeper
	signer   *signing.Signer
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	log      *zap.SugaredLogger

	once    sync.Once
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics into m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// New constructs a Server.
func New(cfg *config.Config, svc *shares.Service, sw *sweeper.Sweeper, signer *signing.Signer, log *zap.SugaredLogger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		shares:   svc,
		sweeper:  sw,
		signer:   signer,
		gatherer: prometheus.DefaultGatherer,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		s.handler = s.routes()
	})
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", s.handleConfig)
		r.Post("/upload", s.handleUpload)
		r.Get("/share/{shareId}", s.handleShare)
	})
	r.Get("/share/{shareId}", s.handleShare)
	r.Post("/internal/sweep", s.handleSweep)
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Infow("api listening", "address", s.cfg.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	limits := s.shares.Limits()
	respondJSON(w, http.StatusOK, map[string]any{
		"maxFileSize":           s.cfg.MaxFileSize,
		"maxRetentionHours":     limits.MaxRetentionHours,
		"defaultRetentionHours": limits.DefaultRetentionHours,
		"maxViewsLimit":         limits.MaxViews,
		"maxPasswordLength":     limits.MaxPasswordLength,
		"maxMetadataLength":     limits.MaxMetadataLength,
	})
}
