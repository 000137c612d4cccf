package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/jibledger/internal/adapter/http/handler"
	"github.com/iho/jibledger/internal/adapter/http/middleware"
	"github.com/iho/jibledger/internal/infrastructure/metrics"
	"github.com/iho/jibledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	LedgerHandler         *handler.LedgerHandler
	ReconciliationHandler *handler.ReconciliationHandler
	AuditHandler          *handler.AuditHandler
	HealthHandler         *handler.HealthHandler

	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
	RateLimiter      *middleware.RateLimiter
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Actor)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
		}

		r.Post("/cash-calls", cfg.LedgerHandler.CreateCashCall)
		r.Post("/jib-statements", cfg.LedgerHandler.CreateJIBStatement)

		r.Route("/ledgers", func(r chi.Router) {
			r.Get("/", cfg.LedgerHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.LedgerHandler.Get)
				r.Post("/send", cfg.LedgerHandler.Send)
				r.Get("/status", cfg.LedgerHandler.Status)
				r.Get("/verify", cfg.LedgerHandler.Verify)

				r.Route("/obligations/{party}", func(r chi.Router) {
					r.Post("/funding", cfg.ReconciliationHandler.Fund)
					r.Post("/payments", cfg.ReconciliationHandler.Pay)
					r.Post("/dispute", cfg.ReconciliationHandler.Dispute)
					r.Post("/resolve", cfg.ReconciliationHandler.Resolve)
					r.Post("/default", cfg.ReconciliationHandler.Default)
				})
			})
		})

		r.Get("/audit", cfg.AuditHandler.ListAudit)
		r.Get("/events", cfg.AuditHandler.ListEvents)
	})

	return r
}
