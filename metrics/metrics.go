package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "plugin_store"

// Collector owns a private registry with the service metrics.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	Submissions         *prometheus.CounterVec
	Installs            *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_submissions_total",
			Help:      "Plugin submissions by outcome",
		}, []string{"outcome"}),
		Installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_installs_total",
			Help:      "Recorded plugin installs by kind and outcome",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
		c.Submissions,
		c.Installs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by the matched
// route template, or "unmatched" for 404s.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method

		c.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func (c *Collector) RecordSubmission(outcome string) {
	c.Submissions.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordInstall(isUpdate bool, outcome string) {
	kind := "download"
	if isUpdate {
		kind = "update"
	}
	c.Installs.WithLabelValues(kind, outcome).Inc()
}
