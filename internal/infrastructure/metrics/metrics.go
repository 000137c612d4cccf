package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	LedgersCreated *prometheus.CounterVec
	LedgersSent    *prometheus.CounterVec
	LedgerAmount   *prometheus.HistogramVec
	LedgerStatus   *prometheus.CounterVec

	// Reconciliation metrics
	Settlements          *prometheus.CounterVec
	SettlementAmount     *prometheus.HistogramVec
	DuplicateReferences  prometheus.Counter
	Disputes             *prometheus.CounterVec
	Defaults             *prometheus.CounterVec
	TransitionErrors     *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	ConcurrentRetries    prometheus.Counter
	StatusDriftsDetected prometheus.Counter

	// Outbox metrics
	EventsPublished   *prometheus.CounterVec
	EventPublishError *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so they can build more than one Metrics.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LedgersCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_ledgers_created_total",
				Help: "Total number of cash calls and JIB statements created",
			},
			[]string{"kind"},
		),
		LedgersSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_ledgers_sent_total",
				Help: "Total number of ledgers sent to partners",
			},
			[]string{"kind"},
		),
		LedgerAmount: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jibledger_ledger_amount",
				Help:    "Ledger total amounts",
				Buckets: []float64{1000, 10000, 100000, 1000000, 10000000, 100000000},
			},
			[]string{"kind"},
		),
		LedgerStatus: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_ledger_status_changes_total",
				Help: "Aggregate ledger status changes by resulting status",
			},
			[]string{"status"},
		),

		Settlements: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_settlements_total",
				Help: "Total fundings and payments applied",
			},
			[]string{"kind"},
		),
		SettlementAmount: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jibledger_settlement_amount",
				Help:    "Funding and payment amounts",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"kind"},
		),
		DuplicateReferences: f.NewCounter(prometheus.CounterOpts{
			Name: "jibledger_duplicate_external_references_total",
			Help: "Settlements ignored because their external reference was already applied",
		}),
		Disputes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_disputes_total",
				Help: "Disputes opened and resolved",
			},
			[]string{"action"},
		),
		Defaults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_defaults_total",
				Help: "Obligations marked as defaulted",
			},
			[]string{"kind"},
		),
		TransitionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_transition_errors_total",
				Help: "Rejected obligation transitions by operation and error type",
			},
			[]string{"operation", "error_type"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jibledger_operation_duration_seconds",
				Help:    "Duration of ledger and reconciliation operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ConcurrentRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "jibledger_concurrent_modification_retries_total",
			Help: "Operations retried after a concurrent modification",
		}),
		StatusDriftsDetected: f.NewCounter(prometheus.CounterOpts{
			Name: "jibledger_status_drifts_total",
			Help: "Ledgers whose cached status did not match the derived status",
		}),

		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_events_published_total",
				Help: "Outbox events published by type",
			},
			[]string{"event_type"},
		),
		EventPublishError: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_event_publish_errors_total",
				Help: "Outbox events that failed to publish",
			},
			[]string{"event_type"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jibledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "jibledger_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jibledger_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),
	}
}
