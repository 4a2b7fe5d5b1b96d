package api

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/analytics"
	"github.com/openaddons/addonserve/internal/middleware"
	"github.com/openaddons/addonserve/internal/observability"
	"github.com/openaddons/addonserve/internal/token"
)

// InstallHandler handles GET /install requests: it redeems a signed install
// token handed out by a compatible verdict and redirects to the add-on file.
func (s *Server) InstallHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "InstallHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/install"),
		))
	defer span.End()

	// Get trace-aware logger from middleware
	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "install"
	const method = "GET"

	if s.Analytics == nil || s.Catalog == nil {
		span.RecordError(fmt.Errorf("dependencies unavailable"))
		span.SetStatus(codes.Error, "dependencies unavailable")
		logger.Error("analytics or catalog unavailable")
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "service unavailable", http.StatusInternalServerError)
		return
	}

	tok := r.URL.Query().Get("t")
	if tok == "" {
		logger.Warn("missing token")
		s.Metrics.IncrementRequests(endpoint, method, "401")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	payload, err := token.Verify(tok, s.TokenSecret, s.TokenTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid token")
		logger.Warn("token verify", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "401")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if payload.Kind != token.KindInstall {
		logger.Warn("wrong token kind", zap.String("kind", payload.Kind))
		s.Metrics.IncrementRequests(endpoint, method, "401")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	span.SetAttributes(
		attribute.String("request_id", payload.RequestID),
		attribute.String("addon.slug", payload.Slug),
		attribute.Int("addon.id", payload.AddonID),
		attribute.String("client.app", payload.App),
	)

	// Install links are only handed out for catalog add-ons; a miss here
	// means the add-on was removed since the verdict.
	addon := s.Catalog.GetBySlug(payload.Slug)
	if addon == nil {
		logger.Error("addon not found", zap.String("slug", payload.Slug))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "addon not found", http.StatusBadRequest)
		return
	}

	_ = s.Stats.RecordInstall(addon.Slug)

	ev := s.newEvent(r, analytics.EventInstall, addon.Slug)
	ev.RequestID = payload.RequestID
	ev.AddonID = addon.ID
	ev.AddonType = string(addon.Type)
	ev.App = payload.App
	if err := s.Analytics.RecordEvent(ctx, ev); err != nil {
		logger.Error("analytics record", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics error", http.StatusInternalServerError)
		return
	}

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("install", zap.String("request_id", payload.RequestID), zap.String("slug", addon.Slug), zap.String("event_type", "install"))
	}
	s.Metrics.IncrementEvent(analytics.EventInstall)

	// The destination was validated at token generation, re-check the
	// scheme before redirecting anyway
	parsedURL, err := url.Parse(payload.URL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		logger.Warn("unsafe install destination",
			zap.String("url", payload.URL),
			zap.String("slug", addon.Slug))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid destination", http.StatusBadRequest)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "302")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	http.Redirect(w, r, payload.URL, http.StatusFound)
}
