package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gorilla/mux"

	"github.com/openaddons/addonserve/internal/analytics"
	"github.com/openaddons/addonserve/internal/compat"
	"github.com/openaddons/addonserve/internal/middleware"
	"github.com/openaddons/addonserve/internal/models"
	"github.com/openaddons/addonserve/internal/observability"
	"github.com/openaddons/addonserve/internal/stats"
	"github.com/openaddons/addonserve/internal/token"
)

var tracer = otel.Tracer("addonserve")

// CompatResponse is the JSON verdict returned by the compatibility endpoints.
// Reason is null exactly when Compatible is true.
type CompatResponse struct {
	Slug       string           `json:"slug"`
	App        models.ClientApp `json:"app"`
	Compatible bool             `json:"compatible"`
	Reason     *string          `json:"reason"`
	MinVersion *string          `json:"min_version"`
	MaxVersion *string          `json:"max_version"`
	Browser    models.Browser   `json:"browser"`
	OS         models.OS        `json:"os"`
	InstallURL string           `json:"install_url,omitempty"`
	Debug      interface{}      `json:"debug,omitempty"`
}

// reasonPtr maps the engine's empty-means-compatible reason to JSON null.
func reasonPtr(r compat.Reason) *string {
	if r == "" {
		return nil
	}
	s := string(r)
	return &s
}

// resolveApp picks the client application for a request: an explicit app
// query parameter wins, otherwise it is inferred from the parsed user agent.
func resolveApp(r *http.Request, ua models.UserAgentInfo) (models.ClientApp, error) {
	raw := r.URL.Query().Get("app")
	if raw == "" {
		return compat.InferClientApp(ua), nil
	}
	app, ok := models.ParseClientApp(raw)
	if !ok {
		return "", fmt.Errorf("unknown app %q", raw)
	}
	return app, nil
}

// CompatHandler handles GET /compat/{slug} requests: it decides whether the
// requesting client can install the named add-on.
func (s *Server) CompatHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "CompatHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/compat/{slug}"),
		))
	defer span.End()

	// Get trace-aware logger from middleware
	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "compat"
	const method = "GET"

	if s.Analytics == nil {
		logger.Error("analytics unavailable")
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics unavailable", http.StatusInternalServerError)
		return
	}
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
		logger.Warn("addon not found", zap.String("slug", slug))
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "addon not found", http.StatusNotFound)
		return
	}

	uaString := r.UserAgent()
	if uaString == "" {
		logger.Warn("missing user agent", zap.String("slug", slug))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "User-Agent header required", http.StatusBadRequest)
		return
	}
	ua := compat.ResolveUserAgent(uaString)

	app, err := resolveApp(r, ua)
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.String("addon.slug", addon.Slug),
		attribute.String("addon.type", string(addon.Type)),
		attribute.String("client.app", string(app)),
		attribute.String("client.browser", ua.Browser.Name),
		attribute.String("client.browser_version", ua.Browser.Version),
		attribute.String("client.os", ua.OS.Name),
	)

	debugEnabled := s.DebugTrace || r.URL.Query().Get("debug") == "1"
	var tr *compat.DecisionTrace
	if debugEnabled {
		tr = &compat.DecisionTrace{}
	}

	cc, err := s.Checker.ClientCompatibilityWithTrace(addon, app, &ua, tr)
	if err != nil {
		logger.Error("compatibility check", zap.Error(err), zap.String("slug", slug))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	verdict := stats.Verdict(compat.Result{Compatible: cc.Compatible, Reason: cc.Reason})
	span.SetAttributes(
		attribute.Bool("compat.compatible", cc.Compatible),
		attribute.String("compat.verdict", verdict),
	)
	s.Metrics.IncrementCompatChecks(string(app), verdict)

	// Counters are best effort, the verdict is served either way
	if err := s.Stats.RecordDecision(addon.Slug, compat.Result{Compatible: cc.Compatible, Reason: cc.Reason}); err != nil {
		logger.Warn("record decision counter", zap.Error(err), zap.String("slug", addon.Slug))
	}

	ev := analytics.Event{
		Type:           analytics.EventDecision,
		RequestID:      middleware.RequestIDFromRequest(r),
		AddonID:        addon.ID,
		AddonSlug:      addon.Slug,
		AddonType:      string(addon.Type),
		App:            string(app),
		Compatible:     cc.Compatible,
		Reason:         string(cc.Reason),
		Browser:        ua.Browser.Name,
		BrowserVersion: ua.Browser.Version,
		OS:             ua.OS.Name,
		Country:        s.lookupCountry(r),
		UserAgent:      uaString,
	}
	if err := s.Analytics.RecordEvent(ctx, ev); err != nil {
		logger.Error("analytics record", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics error", http.StatusInternalServerError)
		return
	}
	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("compat check",
			zap.String("slug", addon.Slug),
			zap.String("app", string(app)),
			zap.String("verdict", verdict),
			zap.String("event_type", "decision"))
	}
	s.Metrics.IncrementEvent(analytics.EventDecision)

	resp := CompatResponse{
		Slug:       addon.Slug,
		App:        app,
		Compatible: cc.Compatible,
		Reason:     reasonPtr(cc.Reason),
		MinVersion: cc.MinVersion,
		MaxVersion: cc.MaxVersion,
		Browser:    ua.Browser,
		OS:         ua.OS,
	}
	if debugEnabled {
		resp.Debug = map[string]interface{}{"trace": tr}
	}

	if cc.Compatible && addon.CurrentVersion != nil && addon.CurrentVersion.FileURL != "" {
		tok, err := token.Generate(token.KindInstall, ev.RequestID, addon.Slug, addon.ID, string(app), addon.CurrentVersion.FileURL, s.TokenSecret)
		if err != nil {
			logger.Error("failed to generate install token", zap.Error(err), zap.String("slug", addon.Slug))
			s.Metrics.IncrementRequests(endpoint, method, "500")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "internal server error (token generation)", http.StatusInternalServerError)
			return
		}
		resp.InstallURL = s.absoluteURL("/install?t=" + url.QueryEscape(tok))
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))

	writeJSON(w, resp)
}

// PreviewRequest is the payload for dry-run compatibility checks: an add-on
// document that need not exist in the catalog, plus the client identity to
// decide for.
type PreviewRequest struct {
	Addon     *models.Addon `json:"addon"`
	App       string        `json:"app,omitempty"`
	UserAgent string        `json:"user_agent"`
}

// CompatPreviewHandler handles POST /compat/preview requests. It runs the
// decision rules against a submitted add-on document without touching the
// catalog, counters or analytics, so developers can probe declared ranges
// before publishing.
func (s *Server) CompatPreviewHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "preview"
	const method = "POST"

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	var req PreviewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Addon == nil || req.UserAgent == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "addon and user_agent required", http.StatusBadRequest)
		return
	}
	if req.Addon.Type != "" {
		t, ok := models.ParseAddonType(string(req.Addon.Type))
		if !ok {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "unknown addon type", http.StatusBadRequest)
			return
		}
		req.Addon.Type = t
	}

	ua := compat.ResolveUserAgent(req.UserAgent)
	var app models.ClientApp
	if req.App == "" {
		app = compat.InferClientApp(ua)
	} else {
		parsed, ok := models.ParseClientApp(req.App)
		if !ok {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "unknown app", http.StatusBadRequest)
			return
		}
		app = parsed
	}

	// Previews always carry the rule walk; that is what the endpoint is for.
	tr := &compat.DecisionTrace{}
	cc, err := s.Checker.ClientCompatibilityWithTrace(req.Addon, app, &ua, tr)
	if err != nil {
		logger.Error("preview check", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := CompatResponse{
		Slug:       req.Addon.Slug,
		App:        app,
		Compatible: cc.Compatible,
		Reason:     reasonPtr(cc.Reason),
		MinVersion: cc.MinVersion,
		MaxVersion: cc.MaxVersion,
		Browser:    ua.Browser,
		OS:         ua.OS,
		Debug:      map[string]interface{}{"trace": tr},
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))

	writeJSON(w, resp)
}
