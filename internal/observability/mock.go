package observability

import "time"

// MockMetricsRegistry is a mock implementation of MetricsRegistry for testing
type MockMetricsRegistry struct{}

// HTTP Request metrics
func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Compatibility verdict metrics
func (m *MockMetricsRegistry) IncrementCompatChecks(app, reason string) {}

// Event tracking metrics
func (m *MockMetricsRegistry) IncrementEvent(eventType string) {}

// Catalog metrics
func (m *MockMetricsRegistry) SetCatalogSize(addonType string, count float64) {}
func (m *MockMetricsRegistry) IncrementCatalogReloadErrors()                  {}

// Rate limiting metrics
func (m *MockMetricsRegistry) IncrementRateLimitRequests(endpoint string) {}
func (m *MockMetricsRegistry) IncrementRateLimitHits(endpoint string)     {}

// Abuse report metrics
func (m *MockMetricsRegistry) IncrementAbuseReports() {}

// Recommendation metrics
func (m *MockMetricsRegistry) IncrementRecommendationRequests(outcome string)     {}
func (m *MockMetricsRegistry) RecordRecommendationLatency(duration time.Duration) {}
func (m *MockMetricsRegistry) RecordRecommendationResults(count float64)          {}
