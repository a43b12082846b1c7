package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Clearing metrics
	ClearingsFinalized prometheus.Counter
	ClearingsRejected  prometheus.Counter
	ClearingsFailed    prometheus.Counter
	ClearingReplays    prometheus.Counter
	ClearingDuration   prometheus.Histogram
	CommitDuration     prometheus.Histogram
	ClearingAmount     prometheus.Histogram
	ValidationIssues   *prometheus.CounterVec

	// Batch metrics
	BatchesExecuted      *prometheus.CounterVec
	BatchSize            prometheus.Histogram
	ReservationConflicts prometheus.Counter

	// Mirror metrics
	MirrorPublished       prometheus.Counter
	MirrorPublishFailures prometheus.Counter
	MirrorBacklog         prometheus.Gauge

	// Account metrics
	AccountsProvisioned prometheus.Counter

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	// Database metrics
	DBConnections prometheus.Gauge

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates metrics against a specific registerer so tests
// can use an isolated registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Clearing metrics
		ClearingsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "sovclear_clearings_finalized_total",
			Help: "Total number of clearings that reached CLEARED_FINALIZED",
		}),
		ClearingsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "sovclear_clearings_rejected_total",
			Help: "Total number of clearings rejected by validation",
		}),
		ClearingsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sovclear_clearings_failed_total",
			Help: "Total number of clearing attempts that failed at the ledger authority",
		}),
		ClearingReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "sovclear_clearing_replays_total",
			Help: "Total number of idempotent replays served from the finality tracker",
		}),
		ClearingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sovclear_clearing_duration_seconds",
			Help:    "Duration of clearing attempts end to end",
			Buckets: prometheus.DefBuckets,
		}),
		CommitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sovclear_commit_duration_seconds",
			Help:    "Duration of ledger authority commit calls",
			Buckets: prometheus.DefBuckets,
		}),
		ClearingAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sovclear_clearing_amount_minor_units",
			Help:    "Cleared entry amounts in minor units",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000},
		}),
		ValidationIssues: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sovclear_validation_issues_total",
				Help: "Total validation issues by code",
			},
			[]string{"code"},
		),

		// Batch metrics
		BatchesExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sovclear_batches_executed_total",
				Help: "Total atomic batches by outcome",
			},
			[]string{"outcome"},
		),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sovclear_batch_size_entries",
			Help:    "Number of entries per atomic batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		ReservationConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "sovclear_reservation_conflicts_total",
			Help: "Total account reservation conflicts between batches",
		}),

		// Mirror metrics
		MirrorPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "sovclear_mirror_published_total",
			Help: "Total narrative records published to the mirror store",
		}),
		MirrorPublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sovclear_mirror_publish_failures_total",
			Help: "Total narrative record publish attempts that failed",
		}),
		MirrorBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sovclear_mirror_backlog",
			Help: "Narrative records waiting in the mirror outbox",
		}),

		// Account metrics
		AccountsProvisioned: factory.NewCounter(prometheus.CounterOpts{
			Name: "sovclear_accounts_provisioned_total",
			Help: "Total accounts provisioned",
		}),

		// API metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sovclear_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sovclear_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sovclear_http_requests_in_flight",
			Help: "HTTP requests currently being processed",
		}),

		// Database metrics
		DBConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sovclear_db_connections",
			Help: "Current number of database connections",
		}),

		// Rate limiting metrics
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sovclear_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),
	}
}
