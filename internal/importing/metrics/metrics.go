package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderAttemptsTotal tracks provider call attempts per outcome
	ProviderAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_provider_attempts_total",
			Help: "Total number of provider call attempts",
		},
		[]string{"chain", "provider", "outcome"},
	)

	// ProviderLatency tracks provider call latency
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "importer_provider_latency_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "provider"},
	)

	// CircuitTransitionsTotal tracks circuit breaker state transitions
	CircuitTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_circuit_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"provider", "from", "to"},
	)

	// RateLimitWaitSeconds tracks time spent waiting on rate limits
	RateLimitWaitSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_rate_limit_wait_seconds_total",
			Help: "Total time spent waiting for rate limit tokens",
		},
		[]string{"provider"},
	)

	// BatchesFetched tracks pages fetched per operation
	BatchesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_batches_fetched_total",
			Help: "Total number of transaction batches fetched",
		},
		[]string{"chain", "operation"},
	)

	// TransactionsImported tracks transactions written to storage
	TransactionsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_transactions_imported_total",
			Help: "Total number of transactions written to storage",
		},
		[]string{"chain", "operation"},
	)

	// DuplicatesDropped tracks transactions dropped by run-local dedup
	DuplicatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_duplicates_dropped_total",
			Help: "Total number of duplicate transactions dropped within a run",
		},
		[]string{"chain", "operation"},
	)

	// CursorAdvances tracks checkpoint saves per stream
	CursorAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_cursor_advances_total",
			Help: "Total number of cursor checkpoints persisted",
		},
		[]string{"chain", "operation"},
	)

	// ProviderHealthy reports whether a provider is currently healthy
	ProviderHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "importer_provider_healthy",
			Help: "Whether the provider is currently considered healthy (1 or 0)",
		},
		[]string{"chain", "provider"},
	)

	// RunsTotal tracks import runs per result
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_runs_total",
			Help: "Total number of import runs",
		},
		[]string{"chain", "result"},
	)

	// RunDuration tracks end to end import run duration
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "importer_run_duration_seconds",
			Help:    "Import run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"chain"},
	)
)
