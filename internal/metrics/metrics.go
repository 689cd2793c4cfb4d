package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	toolReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minitools",
			Name:      "tool_requests_total",
			Help:      "Total tool runs by tool and result",
		},
		[]string{"tool", "result"},
	)

	toolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "minitools",
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool runs by tool",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minitools",
			Name:      "pages_processed_total",
			Help:      "Total pages written or rendered by tool",
		},
		[]string{"tool"},
	)

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minitools",
			Name:      "jobs_processed_total",
			Help:      "Total async jobs processed by result (success, failed, dlq, cancelled)",
		},
		[]string{"result"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minitools",
			Name:      "job_retries_total",
			Help:      "Total number of job retries",
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "minitools",
			Name:      "queue_depth",
			Help:      "Queue depth gauges for stream, delayed and dlq",
		},
		[]string{"type"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minitools",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter",
		},
	)

	initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(toolReqs, toolLatency, pagesProcessed, jobsProcessed, retriesTotal, queueDepth, rateLimited)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveTool(tool, result string, dur time.Duration) {
	toolReqs.WithLabelValues(tool, result).Inc()
	toolLatency.WithLabelValues(tool).Observe(dur.Seconds())
}

func AddPages(tool string, n int) { pagesProcessed.WithLabelValues(tool).Add(float64(n)) }

func IncJob(result string) { jobsProcessed.WithLabelValues(result).Inc() }
func IncRetry()            { retriesTotal.Inc() }
func IncRateLimited()      { rateLimited.Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
