package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/compat"
	"github.com/openaddons/addonserve/internal/middleware"
	"github.com/openaddons/addonserve/internal/models"
	"github.com/openaddons/addonserve/internal/recommend"
)

const (
	defaultRecommendations = 4
	maxRecommendations     = 10
)

// RecommendedAddon is one catalog entry returned alongside the relevance
// score the recommendation service assigned to it.
type RecommendedAddon struct {
	Slug    string           `json:"slug"`
	Name    string           `json:"name"`
	Type    models.AddonType `json:"type"`
	IconURL string           `json:"icon_url,omitempty"`
	Score   float64          `json:"score"`
}

// RecommendationsResponse lists related add-ons for one catalog entry.
type RecommendationsResponse struct {
	Slug    string             `json:"slug"`
	App     models.ClientApp   `json:"app"`
	Results []RecommendedAddon `json:"results"`
}

// RecommendationsHandler handles GET /addons/{slug}/recommendations. It asks
// the recommendation service for add-ons related to the requested one and
// hydrates the returned slugs from the catalog, dropping anything no longer
// listed. When no recommender is configured the endpoint returns an empty
// result list so listing pages render without the related shelf.
//
// Query Parameters:
//   - app: Client application (firefox, android); inferred from the
//     User-Agent header when absent
//   - limit: Maximum results to return (default: 4, max: 10)
func (s *Server) RecommendationsHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "recommendations"
	const method = "GET"

	if s.Catalog == nil {
		logger.Error("catalog unavailable")
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}

	slug := mux.Vars(r)["slug"]
	addon := s.Catalog.GetBySlug(slug)
	if addon == nil {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "addon not found", http.StatusNotFound)
		return
	}

	ua := compat.ResolveUserAgent(r.UserAgent())
	app, err := resolveApp(r, ua)
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit := defaultRecommendations
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed <= 0 {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxRecommendations)
	}

	resp := RecommendationsResponse{
		Slug:    addon.Slug,
		App:     app,
		Results: []RecommendedAddon{},
	}

	// No recommender configured means no related shelf, not an error.
	if s.Recommender == nil {
		s.Metrics.IncrementRequests(endpoint, method, "200")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		writeJSON(w, resp)
		return
	}

	related, err := s.Recommender.Related(r.Context(), &recommend.RelatedRequest{
		Slug:    addon.Slug,
		App:     string(app),
		Country: s.lookupCountry(r),
		Limit:   limit,
	})
	if err != nil {
		logger.Error("recommendation lookup failed",
			zap.String("slug", addon.Slug),
			zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "recommendations unavailable", http.StatusInternalServerError)
		return
	}

	for _, rec := range related.Results {
		hydrated := s.Catalog.GetBySlug(rec.Slug)
		if hydrated == nil || hydrated.Slug == addon.Slug {
			continue
		}
		resp.Results = append(resp.Results, RecommendedAddon{
			Slug:    hydrated.Slug,
			Name:    hydrated.Name,
			Type:    hydrated.Type,
			IconURL: hydrated.IconURL,
			Score:   rec.Score,
		})
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, resp)
}
