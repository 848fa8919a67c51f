// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_total",
			Help: "Recommendation requests by outcome (eligible, no_match, catalog_empty, error)",
		},
		[]string{"outcome", "country"},
	)

	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_duration_seconds",
			Help:    "Time spent filtering, scoring and grouping a catalog",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	EligibleProducts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_eligible_products",
			Help:    "Number of eligible products returned per request",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	CatalogFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_fetch_total",
			Help: "Catalog fetches from upstream sources by result",
		},
		[]string{"source", "result"},
	)

	CatalogCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_total",
			Help: "Catalog cache lookups (fresh, stale, miss, error)",
		},
		[]string{"result"},
	)

	CatalogProducts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_products",
			Help: "Number of products in the last loaded catalog snapshot",
		},
	)

	APIRequestsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_requests_rate_limited_total",
			Help: "REST requests rejected by the per-client rate limiter",
		},
	)
)
