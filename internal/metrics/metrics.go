package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tally"

// Batch outcomes recorded in the status label.
const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Collector owns the service's Prometheus registry and metrics.
type Collector struct {
	registry *prometheus.Registry

	batchesTotal  *prometheus.CounterVec
	batchRows     *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	retriesTotal  *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a collector on a fresh registry, so several collectors can
// live in one process (tests).
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_batches_total",
			Help:      "Change batches received, by table, op and outcome",
		},
		[]string{"table", "op", "status"},
	)

	c.batchRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_rows_total",
			Help:      "Row images in applied change batches",
		},
		[]string{"table"},
	)

	c.batchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "change_batch_duration_seconds",
			Help:      "Time to apply one change batch, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	c.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_batch_retries_total",
			Help:      "Transactions re-run after a serialization failure",
		},
		[]string{"table"},
	)

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	c.registry.MustRegister(
		c.batchesTotal,
		c.batchRows,
		c.batchDuration,
		c.retriesTotal,
		c.httpRequestsTotal,
		c.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveBatch records one batch outcome. Rows are only counted for applied
// batches.
func (c *Collector) ObserveBatch(table, op, status string, rows int, took time.Duration) {
	c.batchesTotal.WithLabelValues(table, op, status).Inc()
	if status == StatusApplied {
		c.batchRows.WithLabelValues(table).Add(float64(rows))
	}
	c.batchDuration.WithLabelValues(table).Observe(took.Seconds())
}

// ObserveRetry counts one transaction retry.
func (c *Collector) ObserveRetry(table string) {
	c.retriesTotal.WithLabelValues(table).Inc()
}

// Middleware returns gin middleware that records HTTP metrics.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		c.httpRequestsTotal.WithLabelValues(ctx.Request.Method, endpoint, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpRequestDuration.WithLabelValues(ctx.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
	return func(ctx *gin.Context) {
		h.ServeHTTP(ctx.Writer, ctx.Request)
	}
}
