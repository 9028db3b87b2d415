package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSyncMetrics_ObserveImport(t *testing.T) {
	// Arrange
	m := NewSyncMetrics(prometheus.NewRegistry())

	// Act
	m.ObserveImport("imported", 120*time.Millisecond)
	m.ObserveImport("imported", 80*time.Millisecond)
	m.ObserveImport("error", time.Second)

	// Assert
	assert.Equal(t, 2.0, testutil.ToFloat64(m.imports.WithLabelValues("imported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imports.WithLabelValues("error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.importDurations))
}

func TestSyncMetrics_Counters(t *testing.T) {
	m := NewSyncMetrics(prometheus.NewRegistry())

	m.IncRemoteError("get_detail")
	m.IncRemoteError("get_detail")
	m.IncPriceDeviation()
	m.AddSkippedRecords(3)
	m.AddSkippedRecords(0)
	m.AddSkippedRecords(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.remoteErrors.WithLabelValues("get_detail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.priceDeviations))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.skippedRecords))
}

func TestSyncMetrics_ObserveBatch(t *testing.T) {
	m := NewSyncMetrics(prometheus.NewRegistry())

	m.ObserveBatch(4, 1, 2)
	m.ObserveBatch(1, 0, 0)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.batchItems.WithLabelValues("imported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchItems.WithLabelValues("skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.batchItems.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lastBatchSize))
}

func TestHTTPMetrics(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	m.Started()
	m.Started()
	m.Finished("/api/v1/products/{id}", "GET", 200, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/products/{id}", "GET", "200")))
}

func TestWorkerMetrics(t *testing.T) {
	m := NewWorkerMetrics(prometheus.NewRegistry())

	m.Observe("catalog.jobs", "success", time.Second)
	m.Observe("catalog.jobs", "error", time.Second)
	m.Observe("catalog.jobs", "success", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.processed.WithLabelValues("catalog.jobs", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.durations))
}
