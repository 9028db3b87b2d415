package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics - метрики HTTP запросов админского API
type HTTPMetrics struct {
	durations      *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	activeRequests prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &HTTPMetrics{
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_durations_seconds",
			Help:    "Длительность HTTP запросов",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),

		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		}, []string{"path", "method", "status"}),

		activeRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Количество активных HTTP запросов",
		}),
	}
}

func (m *HTTPMetrics) Started() {
	m.activeRequests.Inc()
}

// Finished учитывает завершенный запрос. path - шаблон маршрута, а не сырой URL,
// иначе число серий растет с каждым идентификатором.
func (m *HTTPMetrics) Finished(path, method string, status int, duration time.Duration) {
	m.activeRequests.Dec()
	code := strconv.Itoa(status)
	m.durations.WithLabelValues(path, method, code).Observe(duration.Seconds())
	m.requests.WithLabelValues(path, method, code).Inc()
}

// WorkerMetrics - метрики обработки команд воркером
type WorkerMetrics struct {
	processed *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &WorkerMetrics{
		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_messages_processed_total",
			Help: "Общее количество обработанных сообщений",
		}, []string{"topic", "status"}),

		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_message_processing_duration_seconds",
			Help:    "Длительность обработки сообщений",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

// Observe подходит как worker.Observer
func (m *WorkerMetrics) Observe(topic, status string, duration time.Duration) {
	m.processed.WithLabelValues(topic, status).Inc()
	m.durations.WithLabelValues(topic).Observe(duration.Seconds())
}
