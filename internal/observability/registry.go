package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// This replaces direct access to global Prometheus metrics with dependency injection
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Compatibility verdict metrics
	IncrementCompatChecks(app, reason string)

	// Event tracking metrics
	IncrementEvent(eventType string)

	// Catalog metrics
	SetCatalogSize(addonType string, count float64)
	IncrementCatalogReloadErrors()

	// Rate limiting metrics
	IncrementRateLimitRequests(endpoint string)
	IncrementRateLimitHits(endpoint string)

	// Abuse report metrics
	IncrementAbuseReports()

	// Recommendation metrics
	IncrementRecommendationRequests(outcome string)
	RecordRecommendationLatency(duration time.Duration)
	RecordRecommendationResults(count float64)
}

// PrometheusRegistry implements MetricsRegistry using the existing global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Compatibility verdict metrics
func (r *PrometheusRegistry) IncrementCompatChecks(app, reason string) {
	CompatCheckCount.WithLabelValues(app, reason).Inc()
}

// Event tracking metrics
func (r *PrometheusRegistry) IncrementEvent(eventType string) {
	EventCount.WithLabelValues(eventType).Inc()
}

// Catalog metrics
func (r *PrometheusRegistry) SetCatalogSize(addonType string, count float64) {
	CatalogSize.WithLabelValues(addonType).Set(count)
}

func (r *PrometheusRegistry) IncrementCatalogReloadErrors() {
	CatalogReloadErrors.Inc()
}

// Rate limiting metrics
func (r *PrometheusRegistry) IncrementRateLimitRequests(endpoint string) {
	RateLimitRequests.WithLabelValues(endpoint).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(endpoint string) {
	RateLimitHits.WithLabelValues(endpoint).Inc()
}

// Abuse report metrics
func (r *PrometheusRegistry) IncrementAbuseReports() {
	AbuseReportCount.Inc()
}

// Recommendation metrics
func (r *PrometheusRegistry) IncrementRecommendationRequests(outcome string) {
	RecommendationRequests.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordRecommendationLatency(duration time.Duration) {
	RecommendationLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) RecordRecommendationResults(count float64) {
	RecommendationResults.Observe(count)
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

// HTTP Request metrics
func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Compatibility verdict metrics
func (r *NoOpRegistry) IncrementCompatChecks(app, reason string) {}

// Event tracking metrics
func (r *NoOpRegistry) IncrementEvent(eventType string) {}

// Catalog metrics
func (r *NoOpRegistry) SetCatalogSize(addonType string, count float64) {}
func (r *NoOpRegistry) IncrementCatalogReloadErrors()                  {}

// Rate limiting metrics
func (r *NoOpRegistry) IncrementRateLimitRequests(endpoint string) {}
func (r *NoOpRegistry) IncrementRateLimitHits(endpoint string)     {}

// Abuse report metrics
func (r *NoOpRegistry) IncrementAbuseReports() {}

// Recommendation metrics
func (r *NoOpRegistry) IncrementRecommendationRequests(outcome string)     {}
func (r *NoOpRegistry) RecordRecommendationLatency(duration time.Duration) {}
func (r *NoOpRegistry) RecordRecommendationResults(count float64)          {}
