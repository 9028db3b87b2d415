package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics - метрики синхронизации каталога в Prometheus
type SyncMetrics struct {
	imports         *prometheus.CounterVec
	importDurations *prometheus.HistogramVec
	remoteErrors    *prometheus.CounterVec
	priceDeviations prometheus.Counter
	skippedRecords  prometheus.Counter
	batchItems      *prometheus.CounterVec
	lastBatchSize   prometheus.Gauge
}

// NewSyncMetrics регистрирует метрики в reg. Если reg == nil, используется
// prometheus.DefaultRegisterer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &SyncMetrics{
		imports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_sync_imports_total",
			Help: "Количество импортов товаров по исходу",
		}, []string{"outcome"}),

		importDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_sync_import_duration_seconds",
			Help:    "Длительность импорта одного товара",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),

		remoteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_sync_remote_errors_total",
			Help: "Количество ошибок API поставщика",
		}, []string{"operation"}),

		priceDeviations: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalog_sync_price_deviations_total",
			Help: "Количество отклоненных цен поставщика",
		}),

		skippedRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalog_sync_skipped_records_total",
			Help: "Количество пропущенных записей листинга",
		}),

		batchItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_sync_batch_items_total",
			Help: "Количество товаров в пакетных импортах по исходу",
		}, []string{"outcome"}),

		lastBatchSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_sync_last_batch_size",
			Help: "Размер последнего пакетного импорта",
		}),
	}
}

func (m *SyncMetrics) ObserveImport(outcome string, duration time.Duration) {
	m.imports.WithLabelValues(outcome).Inc()
	m.importDurations.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *SyncMetrics) IncRemoteError(operation string) {
	m.remoteErrors.WithLabelValues(operation).Inc()
}

func (m *SyncMetrics) IncPriceDeviation() {
	m.priceDeviations.Inc()
}

func (m *SyncMetrics) AddSkippedRecords(n int) {
	if n > 0 {
		m.skippedRecords.Add(float64(n))
	}
}

// ObserveBatch учитывает итог пакетного импорта
func (m *SyncMetrics) ObserveBatch(imported, skipped, errors int) {
	m.batchItems.WithLabelValues("imported").Add(float64(imported))
	m.batchItems.WithLabelValues("skipped").Add(float64(skipped))
	m.batchItems.WithLabelValues("error").Add(float64(errors))
	m.lastBatchSize.Set(float64(imported + skipped + errors))
}
