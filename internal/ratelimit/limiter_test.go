package ratelimit

import (
	"testing"
	"time"

	"github.com/openaddons/addonserve/internal/observability"
)

func TestClientLimiter_Allow(t *testing.T) {
	config := Config{Capacity: 2, RefillRate: 1, Enabled: true}
	limiter := NewClientLimiter(config, observability.NewNoOpRegistry())

	// First client exhausts its bucket
	if !limiter.Allow("compat", "203.0.113.7") {
		t.Error("Expected first request to be allowed")
	}
	if !limiter.Allow("compat", "203.0.113.7") {
		t.Error("Expected second request to be allowed")
	}
	if limiter.Allow("compat", "203.0.113.7") {
		t.Error("Expected third request to be blocked")
	}

	// A different client gets its own bucket
	if !limiter.Allow("compat", "198.51.100.4") {
		t.Error("Expected other client to be allowed")
	}
}

func TestClientLimiter_Disabled(t *testing.T) {
	config := Config{Capacity: 1, RefillRate: 1, Enabled: false}
	limiter := NewClientLimiter(config, observability.NewNoOpRegistry())

	// Disabled limiter never blocks, regardless of volume
	for i := 0; i < 10; i++ {
		if !limiter.Allow("compat", "203.0.113.7") {
			t.Errorf("Expected request %d to be allowed with limiting disabled", i+1)
		}
	}

	// No buckets should be created when disabled
	if len(limiter.GetStats()) != 0 {
		t.Errorf("Expected no buckets when disabled, got %d", len(limiter.GetStats()))
	}
}

func TestClientLimiter_GetStats(t *testing.T) {
	config := Config{Capacity: 1, RefillRate: 1, Enabled: true}
	limiter := NewClientLimiter(config, observability.NewNoOpRegistry())

	limiter.Allow("compat", "203.0.113.7") // allowed
	limiter.Allow("compat", "203.0.113.7") // blocked

	stats := limiter.GetStats()
	if len(stats) != 1 {
		t.Fatalf("Expected stats for 1 client, got %d", len(stats))
	}

	s, ok := stats["203.0.113.7"]
	if !ok {
		t.Fatal("Expected stats entry for 203.0.113.7")
	}
	if s.Total != 2 {
		t.Errorf("Expected 2 total requests, got %d", s.Total)
	}
	if s.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", s.Hits)
	}
	if s.HitRate != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %f", s.HitRate)
	}

	want := "Client 203.0.113.7: 1/2 hits (50.00%)"
	if s.String() != want {
		t.Errorf("Expected %q, got %q", want, s.String())
	}
}

func TestClientLimiter_ShouldRateLimit(t *testing.T) {
	limiter := NewClientLimiter(Config{Enabled: true}, observability.NewNoOpRegistry())

	limited := []string{"/compat/dark-mode-magic", "/compat/preview"}
	for _, path := range limited {
		if !limiter.ShouldRateLimit(path) {
			t.Errorf("Expected %s to be rate limited", path)
		}
	}

	exempt := []string{"/addons", "/addons/dark-mode-magic", "/health", "/metrics", "/__version__", "/install"}
	for _, path := range exempt {
		if limiter.ShouldRateLimit(path) {
			t.Errorf("Expected %s to be exempt from rate limiting", path)
		}
	}
}

func TestClientLimiter_CleanupIdle(t *testing.T) {
	config := Config{Capacity: 5, RefillRate: 1, Enabled: true}
	limiter := NewClientLimiter(config, observability.NewNoOpRegistry())

	limiter.Allow("compat", "203.0.113.7")
	if len(limiter.GetStats()) != 1 {
		t.Fatalf("Expected 1 bucket, got %d", len(limiter.GetStats()))
	}

	// Bucket is fresh, a generous idle window keeps it
	limiter.CleanupIdle(time.Minute)
	if len(limiter.GetStats()) != 1 {
		t.Errorf("Expected fresh bucket to survive cleanup, got %d", len(limiter.GetStats()))
	}

	// After going idle past the window the bucket is evicted
	time.Sleep(20 * time.Millisecond)
	limiter.CleanupIdle(10 * time.Millisecond)
	if len(limiter.GetStats()) != 0 {
		t.Errorf("Expected idle bucket to be evicted, got %d", len(limiter.GetStats()))
	}

	// A new request from the same client starts a fresh bucket
	if !limiter.Allow("compat", "203.0.113.7") {
		t.Error("Expected request after eviction to be allowed")
	}
}
