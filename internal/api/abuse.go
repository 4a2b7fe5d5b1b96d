package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/analytics"
	"github.com/openaddons/addonserve/internal/middleware"
	"github.com/openaddons/addonserve/internal/models"
)

// AbuseRequest is the payload for submitting an abuse report.
type AbuseRequest struct {
	Slug    string `json:"slug"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// AbuseHandler handles POST /abuse requests. Reports are accepted for any
// slug, including add-ons no longer listed; the catalog lookup only resolves
// the addon id when the listing still exists.
func (s *Server) AbuseHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "abuse"
	const method = "POST"

	if s.PG == nil {
		logger.Error("postgres unavailable")
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "db unavailable", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	defer func() {
		if closeErr := r.Body.Close(); closeErr != nil {
			logger.Warn("failed to close request body", zap.Error(closeErr))
		}
	}()

	var req AbuseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Slug == "" || req.Reason == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "slug and reason required", http.StatusBadRequest)
		return
	}
	if !models.ValidAbuseReason(req.Reason) {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unknown reason", http.StatusBadRequest)
		return
	}

	report := models.AbuseReport{
		Slug:       req.Slug,
		Reason:     req.Reason,
		Message:    req.Message,
		ReporterIP: clientIP(r),
		UserAgent:  r.UserAgent(),
		Status:     "pending",
	}
	if s.Catalog != nil {
		if addon := s.Catalog.GetBySlug(req.Slug); addon != nil {
			report.AddonID = addon.ID
		}
	}

	if err := s.PG.InsertAbuseReport(report); err != nil {
		logger.Error("insert abuse report", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Mirror the report into the analytics stream. Postgres is the system
	// of record for reports, so an analytics failure does not fail the
	// submission.
	if s.Analytics != nil {
		ev := s.newEvent(r, analytics.EventAbuse, req.Slug)
		ev.AddonID = report.AddonID
		ev.Reason = req.Reason
		if err := s.Analytics.RecordEvent(r.Context(), ev); err != nil {
			logger.Warn("abuse event not recorded", zap.Error(err))
		}
	}
	s.Metrics.IncrementEvent(analytics.EventAbuse)
	s.Metrics.IncrementAbuseReports()

	logger.Info("abuse report stored",
		zap.String("slug", req.Slug),
		zap.String("reason", req.Reason))

	s.Metrics.IncrementRequests(endpoint, method, "201")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	w.WriteHeader(http.StatusCreated)
}

// ListAbuseReports handles GET /api/abuse_reports for report triage.
// Reports are scoped to one add-on slug via the required slug parameter.
func (s *Server) ListAbuseReports(w http.ResponseWriter, r *http.Request) {
	if s.PG == nil {
		http.Error(w, "postgres unavailable", http.StatusInternalServerError)
		return
	}
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		http.Error(w, "slug parameter required", http.StatusBadRequest)
		return
	}
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = min(parsed, 200)
	}
	reports, err := s.PG.LoadAbuseReports(slug, limit)
	if err != nil {
		s.Logger.Error("load abuse reports", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []models.AbuseReport{}
	}
	writeJSON(w, reports)
}
