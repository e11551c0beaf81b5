package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kinship_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// RelationToggles counts toggle outcomes by relation kind and resulting state.
	RelationToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_relation_toggles_total",
		Help: "Total number of relation toggles by kind and resulting state",
	}, []string{"kind", "state"})

	// RelationConflictsCollapsed counts concurrent inserts that resolved to an existing row.
	RelationConflictsCollapsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_relation_conflicts_collapsed_total",
		Help: "Total number of concurrent relation inserts collapsed into an existing row",
	}, []string{"kind"})

	// BlobOperations counts image blob store operations by backend, operation and outcome.
	BlobOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_blob_operations_total",
		Help: "Total number of image blob store operations",
	}, []string{"backend", "operation", "outcome"})

	// CacheLookups counts read-through cache lookups by result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinship_cache_lookups_total",
		Help: "Total number of cache lookups by result",
	}, []string{"result"})
)

// DatabaseMetrics records query latency.
type DatabaseMetrics struct{}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics() *DatabaseMetrics {
	return &DatabaseMetrics{}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}

// RecordBlobOperation increments the blob operation counter.
func RecordBlobOperation(backend, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	BlobOperations.WithLabelValues(backend, operation, outcome).Inc()
}
