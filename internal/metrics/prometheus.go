// Package metrics exports Prometheus metrics for the analysis service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint", "method"},
	)

	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_jobs_submitted_total",
			Help: "Total number of analysis jobs accepted",
		},
		[]string{"kind"},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_jobs_finished_total",
			Help: "Total number of analysis jobs reaching a terminal status",
		},
		[]string{"kind", "status"},
	)

	JobsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_jobs_deduplicated_total",
			Help: "Total number of submissions coalesced onto an existing job",
		},
	)

	JobsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_jobs_rejected_total",
			Help: "Total number of submissions rejected because the queue was full",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_job_duration_seconds",
			Help:    "Analysis job run duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analytics_job_queue_depth",
			Help: "Number of jobs waiting in the queue",
		},
	)

	RunningJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analytics_jobs_running",
			Help: "Number of jobs currently executing",
		},
	)

	ResultsOffloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_results_offloaded_total",
			Help: "Total number of result payloads offloaded to object storage",
		},
	)
)
