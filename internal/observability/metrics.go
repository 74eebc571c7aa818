package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	exceptionsIngestedTotal *prometheus.CounterVec
	mutationsTotal          *prometheus.CounterVec
	retriesExecutedTotal    *prometheus.CounterVec
	retryExecutionDuration  *prometheus.HistogramVec
	workerInflight          *prometheus.GaugeVec
	alertsEmittedTotal      *prometheus.CounterVec
	hubSubscribers          prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "exception_collector",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "exception_collector",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		exceptionsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "exception_collector",
				Name:      "exceptions_ingested_total",
				Help:      "Total number of exceptions registered, by interface and severity.",
			},
			[]string{"interface", "severity"},
		),
		mutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "exception_collector",
				Name:      "mutations_total",
				Help:      "Total number of attempted mutations, by operation and result.",
			},
			[]string{"operation", "result"},
		),
		retriesExecutedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "exception_collector",
				Name:      "retries_executed_total",
				Help:      "Total number of retry attempts executed, by interface and outcome.",
			},
			[]string{"interface", "outcome"},
		),
		retryExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "exception_collector",
				Name:      "retry_execution_duration_seconds",
				Help:      "Upstream retry execution duration in seconds grouped by interface.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"interface"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "exception_collector",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight retry executions grouped by interface.",
			},
			[]string{"interface"},
		),
		alertsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "exception_collector",
				Name:      "alerts_emitted_total",
				Help:      "Total number of alert events emitted, by level and reason.",
			},
			[]string{"level", "reason"},
		),
		hubSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "exception_collector",
				Name:      "hub_subscribers",
				Help:      "Current number of live event stream subscribers.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.exceptionsIngestedTotal,
		m.mutationsTotal,
		m.retriesExecutedTotal,
		m.retryExecutionDuration,
		m.workerInflight,
		m.alertsEmittedTotal,
		m.hubSubscribers,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncExceptionIngested(interfaceName, severity string) {
	if m == nil {
		return
	}
	m.exceptionsIngestedTotal.WithLabelValues(normalizeLabel(interfaceName), normalizeLabel(severity)).Inc()
}

func (m *Metrics) IncMutation(operation, result string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

func (m *Metrics) IncRetryExecuted(interfaceName, outcome string) {
	if m == nil {
		return
	}
	m.retriesExecutedTotal.WithLabelValues(normalizeLabel(interfaceName), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveRetryExecutionDuration(interfaceName string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.retryExecutionDuration.WithLabelValues(normalizeLabel(interfaceName)).Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight(interfaceName string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(interfaceName)).Inc()
}

func (m *Metrics) DecWorkerInFlight(interfaceName string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(interfaceName)).Dec()
}

func (m *Metrics) IncAlertEmitted(level, reason string) {
	if m == nil {
		return
	}
	m.alertsEmittedTotal.WithLabelValues(normalizeLabel(level), normalizeLabel(reason)).Inc()
}

func (m *Metrics) SetHubSubscribers(count int) {
	if m == nil {
		return
	}
	m.hubSubscribers.Set(float64(count))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
