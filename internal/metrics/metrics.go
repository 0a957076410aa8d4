// Package metrics holds the prometheus collectors shared by the server and
// the worker.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docchat"

type Metrics struct {
	TasksProcessed *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec

	DocumentsLoaded prometheus.Counter
	ChunksIndexed   prometheus.Counter

	RetrievalDuration  prometheus.Histogram
	GenerationDuration *prometheus.HistogramVec

	SSEClients prometheus.Gauge
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// Get returns the process wide collectors, registering them on first use.
func Get() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return metricsInstance
}

// New builds collectors registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		TasksProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_processed_total",
				Help:      "Total number of processed tasks",
			},
			[]string{"type", "status"},
		),
		TaskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Task duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"type"},
		),
		DocumentsLoaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_loaded_total",
			Help:      "Total number of documents read from buckets",
		}),
		ChunksIndexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks embedded and stored",
		}),
		RetrievalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Query embedding plus vector search duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		GenerationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Duration of a streamed completion in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"operator"},
		),
		SSEClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_clients",
			Help:      "Number of open event streams",
		}),
	}
}

// ObserveTask records one finished task.
func (m *Metrics) ObserveTask(taskType string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.TasksProcessed.WithLabelValues(taskType, status).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(time.Since(started).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	Get()
	return promhttp.Handler()
}
