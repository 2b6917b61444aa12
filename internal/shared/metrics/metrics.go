package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contracts"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// Analysis job metrics
var (
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_enqueued_total",
			Help:      "Total number of analysis jobs enqueued",
		},
		[]string{"type", "priority"},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_completed_total",
			Help:      "Total number of analysis jobs completed",
		},
		[]string{"type"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_failed_total",
			Help:      "Total number of analysis jobs that terminally failed",
		},
		[]string{"type"},
	)

	JobsRequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_requeued_total",
			Help:      "Total number of analysis job retry attempts",
		},
		[]string{"type"},
	)

	JobsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_swept_total",
			Help:      "Total number of stuck jobs force-failed by the sweeper",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_job_duration_seconds",
			Help:      "Analysis job execution time distribution",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	JobsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_cleaned_total",
			Help:      "Total number of old jobs removed by cleanup",
		},
	)
)

// Business metrics
var (
	ContractsUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contracts_uploaded_total",
			Help:      "Total number of contracts uploaded",
		},
	)

	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Total number of LLM API calls",
		},
		[]string{"status"},
	)

	ExportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_generated_total",
			Help:      "Total number of data exports generated",
		},
		[]string{"format"},
	)
)

// Handler exposes the Prometheus registry over gin.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
