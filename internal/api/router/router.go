package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/chatrelay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/chatrelay/internal/http/middleware"
	"github.com/wolfman30/chatrelay/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Status         *handlers.StatusHandler
	MetricsHandler http.Handler
	// RateLimiter guards /status; nil disables limiting.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates the ops router: health, Prometheus metrics and live run status.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	status := cfg.Status
	if status == nil {
		status = handlers.NewStatusHandler(nil, nil, cfg.Logger)
	}

	r.Get("/health", status.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	r.Route("/status", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		sr.Use(middleware.Compress(5))
		sr.Get("/", status.Status)
		sr.Get("/messages", status.Messages)
		sr.Get("/runs/{id}", status.Run)
	})

	return r
}
