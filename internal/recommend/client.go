// Package recommend provides a client for the external related-add-ons
// service. Recommendations are advisory: when the service is slow or down
// the client falls back to an empty result set rather than failing the
// calling request.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/openaddons/addonserve/internal/observability"
	"go.uber.org/zap"
)

// Client provides access to the related-add-ons recommendation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      map[string]*cachedResult
	cacheMu    sync.RWMutex
	cacheTTL   time.Duration
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

// RelatedRequest represents the request to the recommendation service.
type RelatedRequest struct {
	Slug    string `json:"slug"`
	App     string `json:"app"`
	Country string `json:"country,omitempty"`
	Limit   int    `json:"limit"`
}

// Recommendation is a single related add-on with its relevance score.
type Recommendation struct {
	Slug  string  `json:"slug"`
	Score float64 `json:"score"`
}

// RelatedResponse represents the response from the recommendation service.
type RelatedResponse struct {
	Slug    string           `json:"slug"`
	Results []Recommendation `json:"results"`
}

// cachedResult wraps a service response with caching metadata.
type cachedResult struct {
	Response  *RelatedResponse
	Timestamp time.Time
	TTL       time.Duration
}

// isExpired checks if the cached result has expired.
func (c *cachedResult) isExpired() bool {
	return time.Since(c.Timestamp) > c.TTL
}

// NewClient creates a new recommendation service client.
func NewClient(baseURL string, timeout, cacheTTL time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    make(map[string]*cachedResult),
		cacheTTL: cacheTTL,
		logger:   logger,
		metrics:  metrics,
	}
}

// cacheKey generates a cache key for a related-add-ons request.
func (c *Client) cacheKey(req *RelatedRequest) string {
	return fmt.Sprintf("slug:%s:app:%s:country:%s:n:%d",
		req.Slug, req.App, req.Country, req.Limit)
}

// Related retrieves related add-ons for the given request.
// It returns an empty result set if the service is unavailable.
func (c *Client) Related(ctx context.Context, req *RelatedRequest) (*RelatedResponse, error) {
	// Check cache first
	cacheKey := c.cacheKey(req)
	c.cacheMu.RLock()
	cached, exists := c.cache[cacheKey]
	c.cacheMu.RUnlock()

	if exists && !cached.isExpired() {
		return cached.Response, nil
	}

	related, err := c.callService(ctx, req)
	if err != nil {
		c.logger.Warn("recommendation service unavailable, returning no results",
			zap.Error(err),
			zap.String("addon_slug", req.Slug))

		// Recommendations are best effort, so the caller sees an empty
		// list rather than an error
		return &RelatedResponse{Slug: req.Slug}, nil
	}

	// Cache the response
	c.cacheMu.Lock()
	c.cache[cacheKey] = &cachedResult{
		Response:  related,
		Timestamp: time.Now(),
		TTL:       c.cacheTTL,
	}
	c.cacheMu.Unlock()

	return related, nil
}

// callService makes the actual HTTP call to the recommendation service.
func (c *Client) callService(ctx context.Context, req *RelatedRequest) (*RelatedResponse, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordRecommendationLatency(time.Since(start))
		c.metrics.IncrementRecommendationRequests(outcome)
	}()

	reqBody, err := json.Marshal(req)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/related", bytes.NewReader(reqBody))
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && c.logger != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		outcome = "failure"
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var related RelatedResponse
	if err := json.NewDecoder(resp.Body).Decode(&related); err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.metrics.RecordRecommendationResults(float64(len(related.Results)))

	return &related, nil
}

// HealthCheck checks if the recommendation service is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && c.logger != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	return nil
}

// ClearCache clears the recommendation cache.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]*cachedResult)
}

// CacheStats returns statistics about the cache.
func (c *Client) CacheStats() map[string]interface{} {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	expired := 0
	for _, cached := range c.cache {
		if cached.isExpired() {
			expired++
		}
	}

	return map[string]interface{}{
		"total_entries":   len(c.cache),
		"expired_entries": expired,
		"active_entries":  len(c.cache) - expired,
	}
}

// CleanupExpiredCache removes expired entries from the cache.
func (c *Client) CleanupExpiredCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	for key, cached := range c.cache {
		if cached.isExpired() {
			delete(c.cache, key)
		}
	}
}

// StartCacheCleanup starts a goroutine that periodically cleans up expired cache entries.
func (c *Client) StartCacheCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			c.CleanupExpiredCache()
		}
	}()
}

// SetBaseURL sets the base URL for the recommendation service (for testing).
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}
