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

// OutgoingHandler handles GET /outgoing requests: it redeems a signed
// outgoing-link token and redirects to the external destination. Unlike
// install links the redirect still works after the add-on leaves the
// catalog, since the destination lives in the token itself.
func (s *Server) OutgoingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "OutgoingHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/outgoing"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "outgoing"
	const method = "GET"

	if s.Analytics == nil {
		span.RecordError(fmt.Errorf("analytics unavailable"))
		span.SetStatus(codes.Error, "analytics unavailable")
		logger.Error("analytics unavailable")
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics unavailable", http.StatusInternalServerError)
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
	if payload.Kind != token.KindOutgoing {
		logger.Warn("wrong token kind", zap.String("kind", payload.Kind))
		s.Metrics.IncrementRequests(endpoint, method, "401")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	span.SetAttributes(
		attribute.String("request_id", payload.RequestID),
		attribute.String("addon.slug", payload.Slug),
		attribute.String("destination", payload.URL),
	)

	ev := s.newEvent(r, analytics.EventOutgoing, payload.Slug)
	ev.RequestID = payload.RequestID
	ev.AddonID = payload.AddonID
	if s.Catalog != nil {
		if addon := s.Catalog.GetBySlug(payload.Slug); addon != nil {
			ev.AddonType = string(addon.Type)
		}
	}
	if err := s.Analytics.RecordEvent(ctx, ev); err != nil {
		logger.Error("analytics record", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics error", http.StatusInternalServerError)
		return
	}

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("outgoing", zap.String("request_id", payload.RequestID), zap.String("slug", payload.Slug), zap.String("event_type", "outgoing"))
	}
	s.Metrics.IncrementEvent(analytics.EventOutgoing)

	parsedURL, err := url.Parse(payload.URL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		logger.Warn("unsafe outgoing destination",
			zap.String("url", payload.URL),
			zap.String("slug", payload.Slug))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid destination", http.StatusBadRequest)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "302")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	http.Redirect(w, r, payload.URL, http.StatusFound)
}
