package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonserve_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "addonserve_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// compatibility verdicts per client app and reason ("compatible" when none)
	CompatCheckCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonserve_compat_checks_total",
			Help: "Total compatibility checks by client app and verdict reason",
		},
		[]string{"app", "reason"},
	)

	// number of analytics events recorded, labelled by type
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonserve_events_total",
			Help: "Total events recorded",
		},
		[]string{"type"},
	)

	// addons currently served, per addon type
	CatalogSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "addonserve_catalog_addons",
			Help: "Number of addons in the active catalog",
		},
		[]string{"type"},
	)

	// number of failed catalog reloads
	CatalogReloadErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "addonserve_catalog_reload_errors_total",
			Help: "Total catalog reload failures",
		},
	)

	// rate limit hits per endpoint
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonserve_ratelimit_hits_total",
			Help: "Total rate limit hits per endpoint",
		},
		[]string{"endpoint"},
	)

	// rate limit requests per endpoint
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonserve_ratelimit_requests_total",
			Help: "Total rate limit requests per endpoint",
		},
		[]string{"endpoint"},
	)

	// number of abuse reports submitted
	AbuseReportCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "addonserve_abuse_reports_total",
			Help: "Total abuse reports submitted",
		},
	)

	// recommendation requests labelled by outcome
	RecommendationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonserve_recommendation_total",
			Help: "Total recommendation requests",
		},
		[]string{"outcome"},
	)

	// Latency of recommendation service calls
	RecommendationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "addonserve_recommendation_duration_seconds",
			Help:    "Duration of recommendation requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Distribution of recommendation result counts
	RecommendationResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "addonserve_recommendation_results",
			Help:    "Histogram of recommendation result counts",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		CompatCheckCount,
		EventCount,
		CatalogSize,
		CatalogReloadErrors,
		RateLimitHits,
		RateLimitRequests,
		AbuseReportCount,
		RecommendationRequests,
		RecommendationLatency,
		RecommendationResults,
	)
}
