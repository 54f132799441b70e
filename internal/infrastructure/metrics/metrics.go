package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Loan metrics
	LoansOriginated   prometheus.Counter
	LoanGroupsCreated prometheus.Counter
	LoansClosed       *prometheus.CounterVec
	PrincipalAmount   prometheus.Histogram

	// Installment metrics
	InstallmentsPaid    prometheus.Counter
	PaymentAmount       prometheus.Histogram
	Prepayments         *prometheus.CounterVec
	MoraReductions      prometheus.Counter
	Reschedules         prometheus.Counter
	OverdueInstallments prometheus.Gauge

	// Ledger operation metrics
	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec

	// Sweep metrics
	SweepRuns         *prometheus.CounterVec
	SweepLoansTouched prometheus.Counter

	// Outbox metrics
	EventsPublished *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Audit metrics
	AuditLogsCreated *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Loan metrics
		LoansOriginated: f.NewCounter(prometheus.CounterOpts{
			Name: "microloan_loans_originated_total",
			Help: "Total number of loans originated",
		}),
		LoanGroupsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "microloan_loan_groups_created_total",
			Help: "Total number of loan groups created",
		}),
		LoansClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microloan_loans_closed_total",
				Help: "Total number of loans closed by final status",
			},
			[]string{"status"},
		),
		PrincipalAmount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "microloan_principal_amount",
			Help:    "Originated principal amounts",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 50000},
		}),

		// Installment metrics
		InstallmentsPaid: f.NewCounter(prometheus.CounterOpts{
			Name: "microloan_installments_paid_total",
			Help: "Total number of installments paid",
		}),
		PaymentAmount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "microloan_payment_amount",
			Help:    "Installment payment amounts",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000},
		}),
		Prepayments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microloan_prepayments_total",
				Help: "Prepayment proofs by outcome",
			},
			[]string{"outcome"},
		),
		MoraReductions: f.NewCounter(prometheus.CounterOpts{
			Name: "microloan_mora_reductions_total",
			Help: "Total number of mora reductions granted",
		}),
		Reschedules: f.NewCounter(prometheus.CounterOpts{
			Name: "microloan_reschedules_total",
			Help: "Total number of loans rescheduled",
		}),
		OverdueInstallments: f.NewGauge(prometheus.GaugeOpts{
			Name: "microloan_overdue_installments",
			Help: "Overdue installments seen by the last sweep",
		}),

		// Ledger operation metrics
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "microloan_operation_duration_seconds",
				Help:    "Duration of ledger operations including persistence",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		OperationErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microloan_operation_errors_total",
				Help: "Rejected ledger operations by operation and error kind",
			},
			[]string{"operation", "error_type"},
		),

		// Sweep metrics
		SweepRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microloan_sweep_runs_total",
				Help: "Overdue sweep runs by result",
			},
			[]string{"result"},
		),
		SweepLoansTouched: f.NewCounter(prometheus.CounterOpts{
			Name: "microloan_sweep_loans_updated_total",
			Help: "Loans whose derived state changed during a sweep",
		}),

		// Outbox metrics
		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microloan_events_published_total",
				Help: "Outbox events published by type and result",
			},
			[]string{"event_type", "result"},
		),

		// API metrics
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microloan_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "microloan_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Rate limiting metrics
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microloan_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),

		// Audit metrics
		AuditLogsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microloan_audit_logs_total",
				Help: "Total audit logs created",
			},
			[]string{"action", "status"},
		),
	}
}
