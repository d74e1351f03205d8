package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Retrieval outcomes.
const (
	OutcomeHit  = "hit"
	OutcomeMiss = "miss"
)

// Delete outcomes.
const (
	OutcomeDeleted  = "deleted"
	OutcomeNotFound = "not_found"
	OutcomeDenied   = "denied"
)

// Metrics holds the vault's Prometheus metrics.
type Metrics struct {
	ArtifactsStored    *prometheus.CounterVec
	ArtifactRetrievals *prometheus.CounterVec
	ArtifactDeletes    *prometheus.CounterVec
	ArtifactsExpired   prometheus.Counter
	LegalHoldsApplied  prometheus.Counter
	SearchResults      prometheus.Histogram
	OperationLatency   *prometheus.HistogramVec
	AuditLogSize       prometheus.Gauge
}

// New registers the metrics on the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics on reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ArtifactsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptvault_artifacts_stored_total",
			Help: "Total number of artifacts stored, labeled by artifact type",
		}, []string{"artifact_type"}),
		ArtifactRetrievals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptvault_artifact_retrievals_total",
			Help: "Total number of retrievals, labeled by outcome (hit, miss)",
		}, []string{"outcome"}),
		ArtifactDeletes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptvault_artifact_deletes_total",
			Help: "Total number of delete requests, labeled by outcome",
		}, []string{"outcome"}),
		ArtifactsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "receiptvault_artifacts_expired_total",
			Help: "Total number of artifacts removed by retention expiry",
		}),
		LegalHoldsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "receiptvault_legal_holds_applied_total",
			Help: "Total number of legal holds applied",
		}),
		SearchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "receiptvault_search_results",
			Help:    "Number of artifacts returned per search",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "receiptvault_operation_latency_seconds",
			Help:    "Latency of vault operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		AuditLogSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "receiptvault_audit_log_events",
			Help: "Current number of events in the in-process access log",
		}),
	}
}

// IncrementStored increments the stored counter for an artifact type.
func (m *Metrics) IncrementStored(artifactType string) {
	m.ArtifactsStored.WithLabelValues(artifactType).Inc()
}

func (m *Metrics) IncrementRetrieval(outcome string) {
	m.ArtifactRetrievals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementDelete(outcome string) {
	m.ArtifactDeletes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddExpired(count int) {
	m.ArtifactsExpired.Add(float64(count))
}

func (m *Metrics) IncrementLegalHolds() {
	m.LegalHoldsApplied.Inc()
}

func (m *Metrics) ObserveSearchResults(count int) {
	m.SearchResults.Observe(float64(count))
}

// ObserveOperationLatency records the latency for a vault operation.
func (m *Metrics) ObserveOperationLatency(operation string, durationSeconds float64) {
	m.OperationLatency.WithLabelValues(operation).Observe(durationSeconds)
}

func (m *Metrics) SetAuditLogSize(n int) {
	m.AuditLogSize.Set(float64(n))
}
