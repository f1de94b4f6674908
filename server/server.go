// Package server exposes the scrape and crawl pipelines over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"

	"github.com/joeychilson/docsurf/crawl"
	"github.com/joeychilson/docsurf/logger"
	"github.com/joeychilson/docsurf/scrape"
)

// Config holds configuration for the API server.
type Config struct {
	// RedisURL enables distributed rate limiting (optional, in-memory if empty).
	RedisURL string
	// RateLimitRequests is the number of requests allowed per window (default: 100).
	RateLimitRequests int
	// RateLimitWindow is the time window for rate limiting (default: 1 minute).
	RateLimitWindow time.Duration
	// ExposeErrorDetails includes underlying error text in failure responses.
	ExposeErrorDetails bool
	// ExposeErrorStack includes a stack trace in panic responses.
	ExposeErrorStack bool
}

// Server is the HTTP server for the API.
type Server struct {
	scraper     *scrape.Scraper
	crawler     *crawl.Crawler
	logger      logger.Logger
	router      *chi.Mux
	rateLimiter *RateLimiter
	cfg         *Config
}

// New creates the API server with the chi router and middleware stack.
func New(scraper *scrape.Scraper, crawler *crawl.Crawler, log logger.Logger, cfg *Config) (*Server, error) {
	if log == nil {
		log = logger.Noop()
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.RateLimitRequests == 0 {
		cfg.RateLimitRequests = 100
	}
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = time.Minute
	}

	s := &Server{
		scraper: scraper,
		crawler: crawler,
		logger:  log,
		cfg:     cfg,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(s.recoverer)

	rateLimiter, err := RateLimit(RateLimitConfig{
		RequestLimit:   cfg.RateLimitRequests,
		WindowDuration: cfg.RateLimitWindow,
		RedisURL:       cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	s.rateLimiter = rateLimiter
	r.Use(rateLimiter.Handler)

	r.Post("/scrape", s.handleScrape)
	r.Post("/crawl", s.handleCrawl)
	r.Get("/health", s.handleHealth)

	s.router = r
	return s, nil
}

// requestLogger wires httplog when the logger exposes its slog backend,
// otherwise request logging is skipped (e.g. the noop logger in tests).
func requestLogger(log logger.Logger) func(next http.Handler) http.Handler {
	type slogSource interface {
		Slog() *slog.Logger
	}
	if src, ok := log.(slogSource); ok {
		return httplog.RequestLogger(src.Slog(), &httplog.Options{
			Level: slog.LevelInfo,
		})
	}
	return func(next http.Handler) http.Handler { return next }
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting API server", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// StartWithShutdown starts the HTTP server and shuts it down gracefully when
// the context is canceled.
func (s *Server) StartWithShutdown(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases resources held by the server (e.g., Redis connections).
func (s *Server) Close() error {
	if s.rateLimiter != nil {
		return s.rateLimiter.Close()
	}
	return nil
}
