package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncrementStored("unsent_message")
	m.IncrementStored("unsent_message")
	m.IncrementRetrieval(OutcomeHit)
	m.IncrementRetrieval(OutcomeMiss)
	m.IncrementDelete(OutcomeDenied)
	m.AddExpired(3)
	m.IncrementLegalHolds()
	m.SetAuditLogSize(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArtifactsStored.WithLabelValues("unsent_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactRetrievals.WithLabelValues(OutcomeMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactDeletes.WithLabelValues(OutcomeDenied)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ArtifactsExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LegalHoldsApplied))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.AuditLogSize))
}

func TestNewWithRegistry_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}

func TestMetrics_Histograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.ObserveOperationLatency("store", 0.002)
	m.ObserveSearchResults(4)

	assert.Equal(t, 2, testutil.CollectAndCount(reg,
		"receiptvault_operation_latency_seconds", "receiptvault_search_results"))
}
