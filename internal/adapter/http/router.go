package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sovrhq/clearing/internal/adapter/http/handler"
	"github.com/sovrhq/clearing/internal/adapter/http/middleware"
	"github.com/sovrhq/clearing/internal/infrastructure/metrics"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	ClearingHandler    *handler.ClearingHandler
	AccountHandler     *handler.AccountHandler
	NarrativeHandler   *handler.NarrativeHandler
	ConsistencyHandler *handler.ConsistencyHandler
	HealthHandler      *handler.HealthHandler

	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
	MetricsEnabled     bool
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(cfg.Metrics).Wrap)
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.Metrics).Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Clearings
		r.Route("/clearings", func(r chi.Router) {
			r.Post("/", cfg.ClearingHandler.Submit)
			r.Post("/batch", cfg.ClearingHandler.SubmitBatch)
			r.Get("/{intentID}", cfg.ClearingHandler.Get)
		})

		// Accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", cfg.AccountHandler.Provision)
			r.Get("/", cfg.AccountHandler.List)
			r.Get("/{id}", cfg.AccountHandler.Get)
			r.Get("/{id}/balance", cfg.AccountHandler.Balance)
			r.Patch("/{id}/active", cfg.AccountHandler.SetActive)
		})

		// Narrative mirror
		r.Route("/narratives", func(r chi.Router) {
			r.Get("/", cfg.NarrativeHandler.Query)
			r.Get("/{intentID}", cfg.NarrativeHandler.Get)
		})

		// Mirror consistency
		r.Route("/consistency", func(r chi.Router) {
			r.Get("/", cfg.ConsistencyHandler.Report)
			r.Get("/{intentID}", cfg.ConsistencyHandler.CheckIntent)
		})
	})

	return r
}
