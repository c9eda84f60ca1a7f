// Package metrics provides Prometheus metrics for the emissions core and HIAP jobs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HiapJobsSubmitted tracks accepted job submissions by mode (single or bulk)
	HiapJobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citycatalyst",
			Subsystem: "hiap",
			Name:      "jobs_submitted_total",
			Help:      "Total number of HIAP jobs accepted",
		},
		[]string{"mode"},
	)

	// HiapJobsRejected tracks rejected submissions by reason
	HiapJobsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citycatalyst",
			Subsystem: "hiap",
			Name:      "jobs_rejected_total",
			Help:      "Total number of HIAP job submissions rejected",
		},
		[]string{"reason"},
	)

	// HiapJobsFinished tracks jobs reaching a terminal state
	HiapJobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citycatalyst",
			Subsystem: "hiap",
			Name:      "jobs_finished_total",
			Help:      "Total number of HIAP jobs finished by status and error kind",
		},
		[]string{"status", "kind"},
	)

	// HiapJobDuration tracks running time of jobs in seconds
	HiapJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "citycatalyst",
			Subsystem: "hiap",
			Name:      "job_duration_seconds",
			Help:      "Duration of HIAP job execution in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"mode"},
	)

	// HiapJobsInFlight tracks jobs currently running
	HiapJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "citycatalyst",
			Subsystem: "hiap",
			Name:      "jobs_in_flight",
			Help:      "Number of HIAP jobs currently running",
		},
	)

	// ActivitiesProcessed tracks per-activity calculation outcomes
	ActivitiesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citycatalyst",
			Subsystem: "calculator",
			Name:      "activities_total",
			Help:      "Total number of activities processed by outcome",
		},
		[]string{"outcome"},
	)

	// AggregationDuration tracks inventory aggregation time in seconds
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "citycatalyst",
			Subsystem: "calculator",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of inventory aggregations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// CatalogVersion exposes the currently published emissions factor catalog version
	CatalogVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "citycatalyst",
			Subsystem: "catalog",
			Name:      "version",
			Help:      "Currently published emissions factor catalog version",
		},
	)

	// HTTPRequests tracks inbound API requests
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citycatalyst",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)
)
