package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "receiptflow"

// PipelineMetrics instruments analyze batches in the worker.
type PipelineMetrics struct {
	registry *prometheus.Registry

	batchesTotal  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	filesTotal    *prometheus.CounterVec
	inFlight      prometheus.Gauge
	queueLag      prometheus.Histogram
}

func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()

	m := &PipelineMetrics{
		registry: registry,
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyze_batches_total",
			Help:      "Completed analyze batches by outcome.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyze_batch_duration_seconds",
			Help:      "Wall time of analyze batches by outcome.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_files_total",
			Help:      "Processed receipt files by outcome.",
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analyze_batches_in_flight",
			Help:      "Analyze batches currently running.",
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyze_queue_lag_seconds",
			Help:      "Delay between request publication and worker pickup.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}

	registry.MustRegister(
		m.batchesTotal, m.batchDuration, m.filesTotal, m.inFlight, m.queueLag,
	)
	return m
}

// StartBatch marks a batch as running and returns its finisher. The finisher
// records outcome and per-file counts exactly once.
func (m *PipelineMetrics) StartBatch() func(status string, succeeded, failed int) {
	start := time.Now()
	m.inFlight.Inc()
	return func(status string, succeeded, failed int) {
		m.inFlight.Dec()
		m.batchesTotal.WithLabelValues(status).Inc()
		m.batchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		m.filesTotal.WithLabelValues("succeeded").Add(float64(succeeded))
		m.filesTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	m.queueLag.Observe(lag.Seconds())
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
