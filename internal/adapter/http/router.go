package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/microloan/internal/adapter/http/handler"
	"github.com/iho/microloan/internal/adapter/http/middleware"
	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/infrastructure/metrics"
	"github.com/iho/microloan/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	LoanHandler        *handler.LoanHandler
	PaymentHandler     *handler.PaymentHandler
	ProofHandler       *handler.ProofHandler
	MaintenanceHandler *handler.MaintenanceHandler
	HealthHandler      *handler.HealthHandler

	IdempotencyStore usecase.IdempotencyStore
	RateLimiter      *middleware.RateLimiter
	// Authenticator enables bearer-token auth and role checks on /api/v1.
	// Nil disables both.
	Authenticator middleware.Authenticator
	Metrics       *metrics.Metrics
	// MetricsHandler serves /metrics; defaults to the global registry.
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(cfg.Metrics).Wrap)
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

	require := func(allowed func(domain.Role) bool) func(http.Handler) http.Handler {
		if cfg.Authenticator == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RequireCapability(allowed)
	}
	anyone := func(domain.Role) bool { return true }
	canEdit := require(domain.Role.CanEdit)
	canView := require(domain.Role.CanViewPayments)
	canProve := require(domain.Role.CanSubmitProof)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Authenticator != nil {
			r.Use(middleware.AuthMiddleware(cfg.Authenticator))
		}
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.Logger).Wrap)
		}

		r.With(require(anyone)).Post("/quotes", cfg.LoanHandler.Quote)
		r.With(require(anyone)).Post("/schedules", cfg.LoanHandler.Schedule)

		r.Route("/loans", func(r chi.Router) {
			r.With(canEdit).Post("/", cfg.LoanHandler.Create)
			r.With(canView).Get("/", cfg.LoanHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.With(canView).Get("/", cfg.LoanHandler.Get)
				r.With(canView).Get("/reconciliation", cfg.MaintenanceHandler.ReconcileLoan)
				r.With(canEdit).Post("/refresh", cfg.MaintenanceHandler.RefreshLoan)

				r.With(canEdit).Post("/cancel", cfg.PaymentHandler.Cancel)
				r.With(require(domain.Role.CanReschedule)).Post("/reschedule", cfg.PaymentHandler.Reschedule)
				r.With(canEdit).Post("/settlement", cfg.PaymentHandler.Settle)

				r.Route("/installments/{number}", func(r chi.Router) {
					r.With(canEdit).Post("/payments", cfg.PaymentHandler.Pay)
					r.With(canProve).Post("/prepayments", cfg.PaymentHandler.SubmitPrepayment)
					r.With(canEdit).Post("/prepayments/confirm", cfg.PaymentHandler.ConfirmPrepayment)
					r.With(canEdit).Post("/prepayments/reject", cfg.PaymentHandler.RejectPrepayment)
					r.With(canEdit).Post("/mora-reduction", cfg.PaymentHandler.ReduceMora)
					r.With(canEdit).Put("/observations", cfg.PaymentHandler.UpdateObservations)
				})
			})
		})

		r.Route("/loan-groups", func(r chi.Router) {
			r.With(canEdit).Post("/", cfg.LoanHandler.CreateGroup)
			r.With(canView).Get("/{id}", cfg.LoanHandler.GetGroup)
		})

		r.With(canProve).Post("/proofs", cfg.ProofHandler.Upload)

		r.With(canEdit).Post("/overdue/refresh", cfg.MaintenanceHandler.RefreshOverdue)
		r.With(canView).Get("/reconciliation", cfg.MaintenanceHandler.Report)
	})

	return r
}
