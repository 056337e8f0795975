package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service metrics. All methods are safe on a nil *Collector,
// so components can run without metrics wired in.
type Collector struct {
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	records      *prometheus.CounterVec
	violations   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of reconciliation runs per profile and outcome",
			},
			[]string{"profile", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of reconciliation runs",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"profile"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_bucketed_total",
				Help:      "Total number of records placed in each bucket",
			},
			[]string{"bucket"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consistency_violations_total",
				Help:      "Total number of runs whose buckets did not account for every record",
			},
			[]string{"profile"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.runs.Describe(ch)
	c.runDuration.Describe(ch)
	c.records.Describe(ch)
	c.violations.Describe(ch)
	c.httpRequests.Describe(ch)
	c.httpLatency.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.runs.Collect(ch)
	c.runDuration.Collect(ch)
	c.records.Collect(ch)
	c.violations.Collect(ch)
	c.httpRequests.Collect(ch)
	c.httpLatency.Collect(ch)
}

// RecordRun counts one finished run.
func (c *Collector) RecordRun(profile, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(profile, status).Inc()
	c.runDuration.WithLabelValues(profile).Observe(d.Seconds())
}

// RecordBuckets adds bucket sizes, keyed by bucket name.
func (c *Collector) RecordBuckets(counts map[string]int) {
	if c == nil {
		return
	}
	for bucket, n := range counts {
		c.records.WithLabelValues(bucket).Add(float64(n))
	}
}

// RecordViolation counts a failed conservation check.
func (c *Collector) RecordViolation(profile string) {
	if c == nil {
		return
	}
	c.violations.WithLabelValues(profile).Inc()
}

// RecordHTTP counts one served request.
func (c *Collector) RecordHTTP(method, path string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler serves c together with Go runtime and process metrics.
func (c *Collector) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

var _ prometheus.Collector = (*Collector)(nil)
