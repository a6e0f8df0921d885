package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptstore_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Store Metrics
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptstore_store_operations_total",
			Help: "Total number of store operations",
		},
		[]string{"operation", "status"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptstore_store_operation_duration_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptstore_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptstore_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// Backup Metrics
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptstore_backups_total",
			Help: "Total number of backup attempts",
		},
		[]string{"status"},
	)

	BackupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptstore_backup_duration_seconds",
			Help:    "Backup duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptstore_restores_total",
			Help: "Total number of restore attempts",
		},
		[]string{"status"},
	)

	// Data Metrics
	UsersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "promptstore_users_total",
			Help: "Number of user records on disk",
		},
	)

	DataSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "promptstore_data_size_bytes",
			Help: "Total size of the data directory in bytes",
		},
	)

	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptstore_lock_wait_duration_seconds",
			Help:    "Time spent waiting for per-file write locks",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	LockTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptstore_lock_timeouts_total",
			Help: "Total number of lock acquisition timeouts",
		},
	)
)

// RecordOperation tracks one store operation outcome
func RecordOperation(operation string, err error, seconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(seconds)
}
