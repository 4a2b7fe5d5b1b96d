package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/reporting"
)

// InsightsHandler handles GET /addons/{slug}/insights requests. It assembles
// the ClickHouse-backed decision breakdown for one add-on: daily decision
// and install volumes, refusal reasons and per-app splits.
//
// Query Parameters:
//   - days: Number of days to include (default: 7, max: 90)
//
// Response: JSON containing AddonInsights with all metrics and breakdowns
func (s *Server) InsightsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "insights"
	const method = "GET"

	// Check if ClickHouse is available
	if s.ClickHouseDB == nil {
		s.Logger.Error("clickhouse unavailable")
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics database unavailable", http.StatusInternalServerError)
		return
	}
	if s.Catalog == nil {
		s.Logger.Error("catalog unavailable")
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

	// Parse optional days query parameter (default: 7, max: 90)
	days := 7
	if daysParam := r.URL.Query().Get("days"); daysParam != "" {
		parsedDays, err := strconv.Atoi(daysParam)
		if err != nil || parsedDays <= 0 {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "invalid days parameter", http.StatusBadRequest)
			return
		}
		days = min(parsedDays, 90)
	}

	insights, err := reporting.GenerateAddonInsights(r.Context(), s.ClickHouseDB, addon.Slug, days)
	if err != nil {
		s.Logger.Error("failed to generate addon insights",
			zap.String("slug", addon.Slug),
			zap.Int("days", days),
			zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "failed to generate insights", http.StatusInternalServerError)
		return
	}

	s.Logger.Info("addon insights generated",
		zap.String("slug", addon.Slug),
		zap.Int("days", days),
		zap.Int64("decisions", insights.TotalMetrics.Decisions),
		zap.Int64("installs", insights.TotalMetrics.Installs))

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, insights)
}
