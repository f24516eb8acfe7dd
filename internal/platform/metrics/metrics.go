// Package metrics owns the Prometheus registry and the collectors the HTTP
// layer, cache and queue report into.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "careadmin"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec

	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec
}

// New creates the collectors on a private registry alongside the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Time taken for HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by namespace and result (hit, miss, error)",
	}, []string{"namespace", "result"})

	m.jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_jobs_total",
		Help:      "Jobs processed by queue, type and outcome",
	}, []string{"queue", "type", "outcome"})

	m.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "queue_job_duration_seconds",
		Help:      "Time spent in job handlers",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"queue", "type"})

	m.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Jobs per queue and state (pending, processing, failed)",
	}, []string{"queue", "state"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.cacheLookups,
		m.jobsTotal, m.jobDuration, m.queueDepth,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency keyed by route template.
// It renders handler errors itself, so it must sit outside the logger.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				// render now so the committed status is the one recorded
				c.Error(err)
			}

			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func (m *Metrics) CacheLookup(ns, result string) {
	m.cacheLookups.WithLabelValues(ns, result).Inc()
}

func (m *Metrics) JobFinished(queue, jobType, outcome string, d time.Duration) {
	m.jobsTotal.WithLabelValues(queue, jobType, outcome).Inc()
	m.jobDuration.WithLabelValues(queue, jobType).Observe(d.Seconds())
}

func (m *Metrics) QueueDepth(queue string, pending, processing, failed int64) {
	m.queueDepth.WithLabelValues(queue, "pending").Set(float64(pending))
	m.queueDepth.WithLabelValues(queue, "processing").Set(float64(processing))
	m.queueDepth.WithLabelValues(queue, "failed").Set(float64(failed))
}
