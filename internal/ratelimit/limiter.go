package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openaddons/addonserve/internal/observability"
)

// ClientLimiter manages rate limiting for API clients keyed by IP address.
//
// Each client IP gets its own token bucket, created lazily on first access.
// The limiter integrates with an injected metrics registry to track rate
// limiting activity per endpoint.
//
// Example usage:
//
//	config := Config{Capacity: 100, RefillRate: 10, Enabled: true}
//	metrics := observability.NewPrometheusRegistry()
//	limiter := NewClientLimiter(config, metrics)
//
//	if limiter.Allow("compat", "203.0.113.7") {
//	    // Process compatibility check
//	} else {
//	    // Client is rate limited
//	}
type ClientLimiter struct {
	buckets map[string]*TokenBucket       // Map of client IP to token bucket
	mu      sync.RWMutex                  // Protects the buckets map
	config  Config                        // Rate limiting configuration
	metrics observability.MetricsRegistry // Metrics registry for tracking rate limiting activity
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// NewClientLimiter creates a new per-client rate limiter with the given configuration.
func NewClientLimiter(config Config, metrics observability.MetricsRegistry) *ClientLimiter {
	return &ClientLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
	}
}

// Allow checks if a request from the given client should be allowed.
//
// Parameters:
//   - endpoint: Name of the endpoint handling the request, used as the metric label
//   - clientIP: Remote client address the bucket is keyed on
//
// Returns:
//   - true if the request should be allowed (token available)
//   - false if the request should be rate limited (no tokens available)
//
// If rate limiting is disabled via config, this method always returns true.
// The method automatically creates token buckets for new clients and
// updates metrics via the injected registry for monitoring.
func (cl *ClientLimiter) Allow(endpoint, clientIP string) bool {
	if !cl.config.Enabled {
		return true
	}

	cl.metrics.IncrementRateLimitRequests(endpoint)

	// Get or create token bucket for this client
	cl.mu.RLock()
	bucket, exists := cl.buckets[clientIP]
	cl.mu.RUnlock()

	if !exists {
		// Double-checked locking pattern to avoid race conditions
		cl.mu.Lock()
		bucket, exists = cl.buckets[clientIP]
		if !exists {
			bucket = NewTokenBucket(cl.config.Capacity, cl.config.RefillRate)
			cl.buckets[clientIP] = bucket
		}
		cl.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		cl.metrics.IncrementRateLimitHits(endpoint)
	}

	return allowed
}

// ShouldRateLimit reports whether the given request path is subject to
// rate limiting.
//
// Only the public compatibility endpoints are limited. Catalog reads,
// redirects, and operational endpoints (health, metrics, version) are
// excluded since they are either cheap or already bounded elsewhere.
func (cl *ClientLimiter) ShouldRateLimit(path string) bool {
	return strings.HasPrefix(path, "/compat")
}

// GetStats returns rate limiting statistics for all tracked clients.
//
// Returns a map where keys are client IPs and values contain
// statistics about rate limiting activity for that client.
//
// This method is thread-safe and provides a snapshot of current statistics.
func (cl *ClientLimiter) GetStats() map[string]RateLimitStats {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	stats := make(map[string]RateLimitStats)
	for clientIP, bucket := range cl.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[clientIP] = RateLimitStats{
			ClientIP: clientIP,
			Hits:     hits,
			Total:    total,
			HitRate:  hitRate,
		}
	}

	return stats
}

// CleanupIdle removes buckets for clients that have not sent a request
// within maxIdle. The client IP space is unbounded, so idle buckets must
// be evicted to cap memory.
func (cl *ClientLimiter) CleanupIdle(maxIdle time.Duration) {
	now := time.Now()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	for clientIP, bucket := range cl.buckets {
		if bucket.idleFor(now) > maxIdle {
			delete(cl.buckets, clientIP)
		}
	}
}

// StartCleanup starts a goroutine that periodically evicts idle client buckets.
func (cl *ClientLimiter) StartCleanup(interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			cl.CleanupIdle(maxIdle)
		}
	}()
}

// RateLimitStats contains statistics about rate limiting for a single client.
type RateLimitStats struct {
	ClientIP string  `json:"ClientIP"` // Client IP address
	Hits     int64   `json:"Hits"`     // Number of rate limited requests
	Total    int64   `json:"Total"`    // Total number of requests processed
	HitRate  float64 `json:"HitRate"`  // Percentage of requests rate limited (0.0-1.0)
}

// String returns a human-readable representation of the rate limit statistics.
func (rls RateLimitStats) String() string {
	return fmt.Sprintf("Client %s: %d/%d hits (%.2f%%)",
		rls.ClientIP, rls.Hits, rls.Total, rls.HitRate*100)
}
