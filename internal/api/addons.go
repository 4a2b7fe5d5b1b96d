package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/middleware"
	"github.com/openaddons/addonserve/internal/models"
	"github.com/openaddons/addonserve/internal/token"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// AddonListResponse is one page of the public catalog listing.
type AddonListResponse struct {
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Count    int            `json:"count"`
	Results  []models.Addon `json:"results"`
}

// parsePagination reads page/page_size query parameters with clamped
// defaults. Out-of-range values clamp instead of erroring.
func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	pageSize = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 {
		pageSize = min(v, maxPageSize)
	}
	return page, pageSize
}

// ListAddonsHandler handles GET /addons requests: a paginated catalog
// listing, optionally filtered by add-on type.
func (s *Server) ListAddonsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "addons"
	const method = "GET"

	if s.Catalog == nil {
		s.Logger.Error("catalog unavailable")
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}

	addons := s.Catalog.GetAll()

	if rawType := r.URL.Query().Get("type"); rawType != "" {
		typ, ok := models.ParseAddonType(rawType)
		if !ok {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "unknown addon type", http.StatusBadRequest)
			return
		}
		filtered := addons[:0]
		for _, a := range addons {
			if a.Type == typ {
				filtered = append(filtered, a)
			}
		}
		addons = filtered
	}

	page, pageSize := parsePagination(r)
	count := len(addons)
	from := (page - 1) * pageSize
	if from > count {
		from = count
	}
	to := min(from+pageSize, count)

	resp := AddonListResponse{
		Page:     page,
		PageSize: pageSize,
		Count:    count,
		Results:  addons[from:to],
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, resp)
}

// InstallCounts is the install counter pair served on the detail view.
type InstallCounts struct {
	Total int64 `json:"total"`
	Today int64 `json:"today"`
}

// AddonDetailResponse is the catalog detail view. Homepage and support URLs
// are replaced with signed outgoing redirects so external clicks are
// observable.
type AddonDetailResponse struct {
	models.Addon
	Installs InstallCounts `json:"installs"`
}

// AddonDetailHandler handles GET /addons/{slug} requests.
func (s *Server) AddonDetailHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "addon_detail"
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

	resp := AddonDetailResponse{Addon: *addon}
	requestID := middleware.RequestIDFromRequest(r)
	resp.HomepageURL = s.outgoingURL(logger, requestID, addon, addon.HomepageURL)
	resp.SupportURL = s.outgoingURL(logger, requestID, addon, addon.SupportURL)

	if s.Store != nil && s.Store.Client != nil {
		total, today := s.Store.GetInstallCounts(addon.Slug)
		resp.Installs = InstallCounts{Total: total, Today: today}
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, resp)
}

// outgoingURL wraps an external destination in a signed outgoing redirect.
// Empty destinations stay empty; a signing failure falls back to the raw
// destination rather than dropping the link.
func (s *Server) outgoingURL(logger *zap.Logger, requestID string, addon *models.Addon, dest string) string {
	if dest == "" {
		return ""
	}
	tok, err := token.Generate(token.KindOutgoing, requestID, addon.Slug, addon.ID, "", dest, s.TokenSecret)
	if err != nil {
		logger.Warn("failed to sign outgoing link", zap.Error(err), zap.String("slug", addon.Slug))
		return dest
	}
	return s.absoluteURL("/outgoing?t=" + url.QueryEscape(tok))
}
