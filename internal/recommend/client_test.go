package recommend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openaddons/addonserve/internal/observability"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL, 200*time.Millisecond, 5*time.Minute, zap.NewNop(), observability.NewNoOpRegistry())
}

func TestClient_Related(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/related", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req RelatedRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		assert.NoError(t, err, "Request body should decode")
		assert.Equal(t, "dark-mode-magic", req.Slug)
		assert.Equal(t, "firefox", req.App)
		assert.Equal(t, 4, req.Limit)

		resp := RelatedResponse{
			Slug: "dark-mode-magic",
			Results: []Recommendation{
				{Slug: "midnight-tabs", Score: 0.91},
				{Slug: "contrast-keeper", Score: 0.74},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		err = json.NewEncoder(w).Encode(resp)
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	resp, err := client.Related(context.Background(), &RelatedRequest{
		Slug:    "dark-mode-magic",
		App:     "firefox",
		Country: "DE",
		Limit:   4,
	})
	assert.NoError(t, err)
	assert.Equal(t, "dark-mode-magic", resp.Slug)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, "midnight-tabs", resp.Results[0].Slug)
	assert.Equal(t, 0.91, resp.Results[0].Score)
}

func TestClient_Related_ServiceUnavailable(t *testing.T) {
	client := newTestClient("http://invalid-url:9999")

	// The caller gets an empty result set, never an error
	resp, err := client.Related(context.Background(), &RelatedRequest{
		Slug:  "dark-mode-magic",
		App:   "firefox",
		Limit: 4,
	})
	assert.NoError(t, err, "Related should not fail when the service is unavailable")
	assert.Equal(t, "dark-mode-magic", resp.Slug)
	assert.Empty(t, resp.Results)
}

func TestClient_Related_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	resp, err := client.Related(context.Background(), &RelatedRequest{Slug: "dark-mode-magic", App: "firefox", Limit: 4})
	assert.NoError(t, err, "Non-200 responses should fall back, not fail")
	assert.Empty(t, resp.Results)
}

func TestClient_Related_Cache(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		resp := RelatedResponse{
			Slug:    "dark-mode-magic",
			Results: []Recommendation{{Slug: "midnight-tabs", Score: 0.91}},
		}
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(resp)
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	req := &RelatedRequest{Slug: "dark-mode-magic", App: "firefox", Limit: 4}
	ctx := context.Background()

	resp1, err := client.Related(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "First call should hit the service")

	resp2, err := client.Related(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "Second call should be served from cache")
	assert.Equal(t, resp1.Results, resp2.Results)

	// A different app is a different cache entry
	_, err = client.Related(ctx, &RelatedRequest{Slug: "dark-mode-magic", App: "android", Limit: 4})
	assert.NoError(t, err)
	assert.Equal(t, 2, callCount, "Different request parameters should miss the cache")
}

func TestClient_Related_CacheExpiration(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(RelatedResponse{Slug: "dark-mode-magic"})
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	req := &RelatedRequest{Slug: "dark-mode-magic", App: "firefox", Limit: 4}
	ctx := context.Background()

	_, err := client.Related(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)

	// Manually expire the cached entry
	key := client.cacheKey(req)
	client.cacheMu.Lock()
	if cached, exists := client.cache[key]; exists {
		cached.Timestamp = time.Now().Add(-time.Hour)
	}
	client.cacheMu.Unlock()

	_, err = client.Related(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, 2, callCount, "Expired entry should trigger a fresh service call")
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.NoError(t, client.HealthCheck(context.Background()))

	client.SetBaseURL("http://invalid-url:9999")
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestClient_CacheMaintenance(t *testing.T) {
	client := newTestClient("http://localhost:8050")

	stats := client.CacheStats()
	assert.Equal(t, 0, stats["total_entries"])

	client.cacheMu.Lock()
	client.cache["active"] = &cachedResult{
		Response:  &RelatedResponse{},
		Timestamp: time.Now(),
		TTL:       5 * time.Minute,
	}
	client.cache["expired"] = &cachedResult{
		Response:  &RelatedResponse{},
		Timestamp: time.Now().Add(-10 * time.Minute),
		TTL:       5 * time.Minute,
	}
	client.cacheMu.Unlock()

	stats = client.CacheStats()
	assert.Equal(t, 2, stats["total_entries"])
	assert.Equal(t, 1, stats["expired_entries"])
	assert.Equal(t, 1, stats["active_entries"])

	client.CleanupExpiredCache()

	client.cacheMu.RLock()
	_, activeRemains := client.cache["active"]
	_, expiredRemains := client.cache["expired"]
	client.cacheMu.RUnlock()
	assert.True(t, activeRemains, "Active entry should survive cleanup")
	assert.False(t, expiredRemains, "Expired entry should be removed")

	client.ClearCache()
	assert.Equal(t, 0, client.CacheStats()["total_entries"])
}
