package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/analytics"
	"github.com/openaddons/addonserve/internal/compat"
	"github.com/openaddons/addonserve/internal/models"
	"github.com/openaddons/addonserve/internal/observability"
	"github.com/openaddons/addonserve/internal/ratelimit"
	"github.com/openaddons/addonserve/internal/recommend"
	"github.com/openaddons/addonserve/internal/token"
)

const (
	uaFirefoxLinux = "Mozilla/5.0 (X11; Linux x86_64; rv:115.0) Gecko/20100101 Firefox/115.0"
	uaFirefoxIOS   = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) FxiOS/116.0 Mobile/15E148 Safari/605.1.15"
	uaChrome       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36"
)

func newTestServer() *Server {
	catalog := models.NewTestAddonStore()
	dark := models.NewTestAddon(1, "dark-mode-magic", "58.0", "*")
	dark.HomepageURL = "https://darkmode.example.com"
	_ = catalog.SetAddons([]models.Addon{*dark})

	return &Server{
		Logger:      zap.NewNop(),
		Analytics:   analytics.NewMockAnalytics(),
		Checker:     compat.NewChecker(zap.NewNop()),
		TokenSecret: []byte("secret"),
		TokenTTL:    time.Hour,
		Catalog:     catalog,
		Metrics:     observability.NewNoOpRegistry(),
	}
}

func TestCompatHandler_Compatible(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/compat/dark-mode-magic", nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CompatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Compatible {
		t.Errorf("expected compatible verdict, got reason %v", resp.Reason)
	}
	if resp.Reason != nil {
		t.Errorf("expected null reason for compatible verdict, got %q", *resp.Reason)
	}
	if resp.App != models.ClientAppFirefox {
		t.Errorf("expected inferred app firefox, got %q", resp.App)
	}
	if !strings.Contains(resp.InstallURL, "/install?t=") {
		t.Errorf("expected signed install URL, got %q", resp.InstallURL)
	}
	if resp.Debug != nil {
		t.Errorf("expected no debug trace without debug flag")
	}

	events := srv.Analytics.(*analytics.MockAnalytics).Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 analytics event, got %d", len(events))
	}
	if events[0].Type != analytics.EventDecision || !events[0].Compatible {
		t.Errorf("unexpected decision event: %+v", events[0])
	}
}

func TestCompatHandler_FirefoxForIOS(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/compat/dark-mode-magic", nil)
	req.Header.Set("User-Agent", uaFirefoxIOS)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp CompatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Compatible {
		t.Fatal("expected incompatible verdict for Firefox on iOS")
	}
	if resp.Reason == nil || *resp.Reason != string(compat.ReasonFirefoxForIOS) {
		t.Errorf("expected reason %s, got %v", compat.ReasonFirefoxForIOS, resp.Reason)
	}
	if resp.InstallURL != "" {
		t.Errorf("expected no install URL on refusal, got %q", resp.InstallURL)
	}
}

func TestCompatHandler_NotFirefox(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/compat/dark-mode-magic", nil)
	req.Header.Set("User-Agent", uaChrome)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp CompatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reason == nil || *resp.Reason != string(compat.ReasonNotFirefox) {
		t.Errorf("expected reason %s, got %v", compat.ReasonNotFirefox, resp.Reason)
	}
}

func TestCompatHandler_UnknownSlug(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/compat/no-such-addon", nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCompatHandler_MissingUserAgent(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/compat/dark-mode-magic", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCompatHandler_UnknownApp(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/compat/dark-mode-magic?app=thunderbird", nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCompatHandler_DebugTrace(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/compat/dark-mode-magic?debug=1", nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp CompatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Debug == nil {
		t.Fatal("expected debug trace in response")
	}
	if !strings.Contains(rec.Body.String(), "verdict") {
		t.Errorf("expected trace stages in body: %s", rec.Body.String())
	}
}

func TestCompatHandler_NoAnalytics(t *testing.T) {
	srv := newTestServer()
	srv.Analytics = nil

	req := httptest.NewRequest(http.MethodGet, "/compat/dark-mode-magic", nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestCompatPreviewHandler(t *testing.T) {
	srv := newTestServer()

	// Firefox 115 is over the declared max, but the add-on is not strict,
	// so the check soft-fails into a compatible verdict.
	draft := models.NewTestAddon(9, "draft-addon", "60.0", "100.0")
	body, _ := json.Marshal(PreviewRequest{Addon: draft, UserAgent: uaFirefoxLinux})

	req := httptest.NewRequest(http.MethodPost, "/compat/preview", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.CompatPreviewHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CompatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Compatible {
		t.Errorf("expected soft over-max to stay compatible, got reason %v", resp.Reason)
	}
	if resp.Debug == nil {
		t.Error("expected preview to always include the decision trace")
	}

	// Previews are dry runs and must not record analytics events
	if events := srv.Analytics.(*analytics.MockAnalytics).Events(); len(events) != 0 {
		t.Errorf("expected no analytics events from preview, got %d", len(events))
	}
}

func TestCompatPreviewHandler_StrictOverMax(t *testing.T) {
	srv := newTestServer()

	draft := models.NewTestAddon(9, "draft-addon", "60.0", "100.0")
	draft.CurrentVersion.IsStrictCompatibilityEnabled = true
	body, _ := json.Marshal(PreviewRequest{Addon: draft, UserAgent: uaFirefoxLinux})

	req := httptest.NewRequest(http.MethodPost, "/compat/preview", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.CompatPreviewHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp CompatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Compatible {
		t.Fatal("expected strict over-max to refuse")
	}
	if resp.Reason == nil || *resp.Reason != string(compat.ReasonOverMaxVersion) {
		t.Errorf("expected reason %s, got %v", compat.ReasonOverMaxVersion, resp.Reason)
	}
}

func TestCompatPreviewHandler_Validation(t *testing.T) {
	srv := newTestServer()

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"missing addon", `{"user_agent":"Mozilla/5.0"}`},
		{"missing user agent", `{"addon":{"slug":"x"}}`},
		{"unknown type", `{"addon":{"slug":"x","type":"gadget"},"user_agent":"Mozilla/5.0"}`},
		{"unknown app", `{"addon":{"slug":"x"},"app":"thunderbird","user_agent":"Mozilla/5.0"}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/compat/preview", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()

		srv.CompatPreviewHandler(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}
}

func TestInstallHandler_MissingToken(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/install", nil)
	rec := httptest.NewRecorder()

	srv.InstallHandler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestInstallHandler_InvalidToken(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/install?t=not-a-token", nil)
	rec := httptest.NewRecorder()

	srv.InstallHandler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestInstallHandler_ExpiredToken(t *testing.T) {
	srv := newTestServer()
	srv.TokenTTL = time.Millisecond

	tok, _ := token.Generate(token.KindInstall, "r1", "dark-mode-magic", 1, "firefox", "https://files.example.com/a.xpi", srv.TokenSecret)
	time.Sleep(10 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/install?t="+url.QueryEscape(tok), nil)
	rec := httptest.NewRecorder()

	srv.InstallHandler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestInstallHandler_WrongKind(t *testing.T) {
	srv := newTestServer()

	// An outgoing token must not redeem against the install endpoint
	tok, _ := token.Generate(token.KindOutgoing, "r1", "dark-mode-magic", 1, "", "https://example.org", srv.TokenSecret)

	req := httptest.NewRequest(http.MethodGet, "/install?t="+url.QueryEscape(tok), nil)
	rec := httptest.NewRecorder()

	srv.InstallHandler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestInstallHandler_Redirect(t *testing.T) {
	srv := newTestServer()

	fileURL := "https://files.example.com/dark-mode-magic-1.0.xpi"
	tok, err := token.Generate(token.KindInstall, "req-42", "dark-mode-magic", 1, "firefox", fileURL, srv.TokenSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/install?t="+url.QueryEscape(tok), nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec := httptest.NewRecorder()

	srv.InstallHandler(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != fileURL {
		t.Errorf("expected redirect to %q, got %q", fileURL, loc)
	}

	events := srv.Analytics.(*analytics.MockAnalytics).Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 analytics event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != analytics.EventInstall || ev.AddonSlug != "dark-mode-magic" || ev.RequestID != "req-42" {
		t.Errorf("unexpected install event: %+v", ev)
	}
}

func TestInstallHandler_AddonRemoved(t *testing.T) {
	srv := newTestServer()

	tok, _ := token.Generate(token.KindInstall, "r1", "gone-addon", 7, "firefox", "https://files.example.com/gone.xpi", srv.TokenSecret)

	req := httptest.NewRequest(http.MethodGet, "/install?t="+url.QueryEscape(tok), nil)
	rec := httptest.NewRecorder()

	srv.InstallHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOutgoingHandler_Redirect(t *testing.T) {
	srv := newTestServer()

	// The destination lives in the token, so the redirect works even for
	// add-ons that have left the catalog.
	dest := "https://example.org/support"
	tok, _ := token.Generate(token.KindOutgoing, "req-7", "gone-addon", 7, "", dest, srv.TokenSecret)

	req := httptest.NewRequest(http.MethodGet, "/outgoing?t="+url.QueryEscape(tok), nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec := httptest.NewRecorder()

	srv.OutgoingHandler(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != dest {
		t.Errorf("expected redirect to %q, got %q", dest, loc)
	}

	events := srv.Analytics.(*analytics.MockAnalytics).Events()
	if len(events) != 1 || events[0].Type != analytics.EventOutgoing {
		t.Fatalf("expected 1 outgoing event, got %+v", events)
	}
}

func TestOutgoingHandler_UnsafeDestination(t *testing.T) {
	srv := newTestServer()

	tok, _ := token.Generate(token.KindOutgoing, "r1", "dark-mode-magic", 1, "", "javascript:alert(1)", srv.TokenSecret)

	req := httptest.NewRequest(http.MethodGet, "/outgoing?t="+url.QueryEscape(tok), nil)
	rec := httptest.NewRecorder()

	srv.OutgoingHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListAddonsHandler_Pagination(t *testing.T) {
	srv := newTestServer()
	_ = srv.Catalog.SetAddons([]models.Addon{
		*models.NewTestAddon(1, "alpha-notes", "58.0", "*"),
		*models.NewTestAddon(2, "beta-blocker", "58.0", "*"),
		*models.NewTestAddon(3, "gamma-ray", "58.0", "*"),
	})

	req := httptest.NewRequest(http.MethodGet, "/addons?page=2&page_size=2", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp AddonListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 3 {
		t.Errorf("expected count 3, got %d", resp.Count)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result on page 2, got %d", len(resp.Results))
	}
	if resp.Results[0].Slug != "gamma-ray" {
		t.Errorf("expected gamma-ray on page 2, got %q", resp.Results[0].Slug)
	}
}

func TestListAddonsHandler_TypeFilter(t *testing.T) {
	srv := newTestServer()
	theme := models.NewTestAddon(2, "neon-nights", "58.0", "*")
	theme.Type = models.AddonTypeTheme
	_ = srv.Catalog.SetAddons([]models.Addon{
		*models.NewTestAddon(1, "alpha-notes", "58.0", "*"),
		*theme,
	})

	// "theme" is a historical alias for statictheme
	req := httptest.NewRequest(http.MethodGet, "/addons?type=theme", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp AddonListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Results) != 1 || resp.Results[0].Slug != "neon-nights" {
		t.Errorf("expected only neon-nights, got %+v", resp.Results)
	}
}

func TestListAddonsHandler_UnknownType(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/addons?type=gadget", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAddonDetailHandler(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/addons/dark-mode-magic", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp AddonDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Slug != "dark-mode-magic" {
		t.Errorf("expected slug dark-mode-magic, got %q", resp.Slug)
	}
	// The homepage link is replaced with a signed outgoing redirect
	if !strings.HasPrefix(resp.HomepageURL, "/outgoing?t=") {
		t.Errorf("expected outgoing-wrapped homepage, got %q", resp.HomepageURL)
	}
	if resp.SupportURL != "" {
		t.Errorf("expected empty support URL to stay empty, got %q", resp.SupportURL)
	}
	if resp.Installs.Total != 0 || resp.Installs.Today != 0 {
		t.Errorf("expected zero install counts without a store, got %+v", resp.Installs)
	}
}

func TestAddonDetailHandler_NotFound(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/addons/no-such-addon", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStatsHandler_InvalidDays(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/addons/dark-mode-magic/stats?days=banana", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatsHandler_NoStore(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/addons/dark-mode-magic/stats", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestInsightsHandler_NoClickHouse(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/addons/dark-mode-magic/insights", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRecommendationsHandler_NoRecommender(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/addons/dark-mode-magic/recommendations", nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp RecommendationsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected empty results without a recommender, got %d", len(resp.Results))
	}
}

func TestRecommendationsHandler_HydratesResults(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(recommend.RelatedResponse{
			Slug: "dark-mode-magic",
			Results: []recommend.Recommendation{
				{Slug: "midnight-tabs", Score: 0.91},
				{Slug: "not-in-catalog", Score: 0.5},
			},
		})
	}))
	defer fake.Close()

	srv := newTestServer()
	_ = srv.Catalog.SetAddons([]models.Addon{
		*models.NewTestAddon(1, "dark-mode-magic", "58.0", "*"),
		*models.NewTestAddon(2, "midnight-tabs", "60.0", "*"),
	})
	srv.Recommender = recommend.NewClient(fake.URL, time.Second, time.Minute, zap.NewNop(), observability.NewNoOpRegistry())

	req := httptest.NewRequest(http.MethodGet, "/addons/dark-mode-magic/recommendations?limit=5", nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp RecommendationsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Slugs unknown to the catalog are dropped during hydration
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 hydrated result, got %d", len(resp.Results))
	}
	got := resp.Results[0]
	if got.Slug != "midnight-tabs" || got.Name != "midnight-tabs" || got.Score != 0.91 {
		t.Errorf("unexpected recommendation: %+v", got)
	}
}

func TestRecommendationsHandler_NotFound(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/addons/no-such-addon/recommendations", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthHandler_NoStores(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.HealthHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected ok status, got %q", resp.Status)
	}
	for _, dep := range []string{"postgres", "redis", "clickhouse"} {
		if resp.Checks[dep] != "skipped" {
			t.Errorf("expected %s check skipped, got %q", dep, resp.Checks[dep])
		}
	}
}

func TestVersionHandler_Fallback(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/__version__", nil)
	rec := httptest.NewRecorder()

	srv.VersionHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.Source != "https://github.com/openaddons/addonserve" {
		t.Errorf("unexpected source: %q", info.Source)
	}
}

func TestVersionHandler_File(t *testing.T) {
	srv := newTestServer()

	path := filepath.Join(t.TempDir(), "version.json")
	if err := os.WriteFile(path, []byte(`{"version":"2025.8.0","commit":"abc123"}`), 0o644); err != nil {
		t.Fatalf("write version file: %v", err)
	}
	srv.Config.VersionFile = path

	req := httptest.NewRequest(http.MethodGet, "/__version__", nil)
	rec := httptest.NewRecorder()

	srv.VersionHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var served map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &served); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if served["version"] != "2025.8.0" || served["commit"] != "abc123" {
		t.Errorf("expected version file served verbatim, got %v", served)
	}
}

func TestReloadHandler_NoPostgres(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	rec := httptest.NewRecorder()

	srv.ReloadHandler(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	srv := newTestServer()
	srv.Limiter = ratelimit.NewClientLimiter(ratelimit.Config{
		Capacity:   1,
		RefillRate: 1,
		Enabled:    true,
	}, observability.NewNoOpRegistry())
	router := srv.Router()

	// First request from the client passes
	req := httptest.NewRequest(http.MethodGet, "/compat/dark-mode-magic", nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on first request, got %d", rec.Code)
	}

	// Second request from the same IP exceeds the bucket
	req = httptest.NewRequest(http.MethodGet, "/compat/dark-mode-magic", nil)
	req.Header.Set("User-Agent", uaFirefoxLinux)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rec.Code)
	}

	// Listing endpoints are exempt from the limiter
	req = httptest.NewRequest(http.MethodGet, "/addons", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on exempt endpoint, got %d", rec.Code)
	}
}
