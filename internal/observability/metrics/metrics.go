package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes the orchestrator's Prometheus metrics. All methods are
// nil-safe so components can run without metrics wired in tests.
type Collector struct {
	registry *prometheus.Registry

	deploymentsTotal *prometheus.CounterVec
	rollbacksTotal   prometheus.Counter
	deployDuration   prometheus.Histogram
	tasksTotal       *prometheus.CounterVec
	taskDuration     prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	catalogTools     prometheus.Gauge
}

// NewCollector registers the collectors on a dedicated registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		deploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcraft_deployments_total",
				Help: "Total number of deployment attempts by outcome",
			},
			[]string{"status"},
		),
		rollbacksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agentcraft_rollbacks_total",
				Help: "Total number of deployment rollbacks",
			},
		),
		deployDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentcraft_deploy_duration_seconds",
				Help:    "Deployment duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcraft_tasks_total",
				Help: "Total number of processed tasks by outcome",
			},
			[]string{"status"},
		),
		taskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentcraft_task_duration_seconds",
				Help:    "Task processing duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcraft_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcraft_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
		catalogTools: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcraft_catalog_tools",
				Help: "Number of tools in the current capability catalog",
			},
		),
	}
}

// Handler returns an http.Handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveDeployment records a deployment attempt.
func (c *Collector) ObserveDeployment(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.deploymentsTotal.WithLabelValues(status).Inc()
	c.deployDuration.Observe(duration.Seconds())
}

// IncRollback records a rollback pass.
func (c *Collector) IncRollback() {
	if c == nil {
		return
	}
	c.rollbacksTotal.Inc()
}

// ObserveTask records a processed task.
func (c *Collector) ObserveTask(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues(status).Inc()
	c.taskDuration.Observe(duration.Seconds())
}

// ObserveHTTP records an HTTP request lifecycle.
func (c *Collector) ObserveHTTP(handler, method string, code int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(handler, method, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// SetCatalogTools records the size of the current capability catalog.
func (c *Collector) SetCatalogTools(count int) {
	if c == nil {
		return
	}
	c.catalogTools.Set(float64(count))
}
