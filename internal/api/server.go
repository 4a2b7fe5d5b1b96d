package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/analytics"
	"github.com/openaddons/addonserve/internal/compat"
	"github.com/openaddons/addonserve/internal/config"
	"github.com/openaddons/addonserve/internal/db"
	"github.com/openaddons/addonserve/internal/geoip"
	"github.com/openaddons/addonserve/internal/middleware"
	"github.com/openaddons/addonserve/internal/models"
	"github.com/openaddons/addonserve/internal/observability"
	"github.com/openaddons/addonserve/internal/ratelimit"
	"github.com/openaddons/addonserve/internal/recommend"
	"github.com/openaddons/addonserve/internal/stats"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger       *zap.Logger
	Store        *db.RedisStore
	PG           *db.Postgres
	ClickHouseDB *sql.DB
	Analytics    analytics.Service
	GeoIP        *geoip.GeoIP
	Checker      *compat.Checker
	Stats        *stats.Service
	Recommender  *recommend.Client
	Limiter      *ratelimit.ClientLimiter
	DebugTrace   bool
	TokenSecret  []byte
	TokenTTL     time.Duration
	reloadMu     sync.Mutex
	Catalog      models.AddonStore
	Metrics      observability.MetricsRegistry
	Config       config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, store *db.RedisStore, pg *db.Postgres, ch *sql.DB, analyticsSvc analytics.Service, geo *geoip.GeoIP, checker *compat.Checker, debug bool, secret []byte, ttl time.Duration, catalog models.AddonStore, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if checker == nil {
		checker = compat.NewChecker(logger)
	}

	limiter := ratelimit.NewClientLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}, metrics)

	return &Server{
		Logger:       logger,
		Store:        store,
		PG:           pg,
		ClickHouseDB: ch,
		Analytics:    analyticsSvc,
		GeoIP:        geo,
		Checker:      checker,
		Stats:        stats.New(store, cfg.StatsTTL),
		Limiter:      limiter,
		DebugTrace:   debug,
		TokenSecret:  secret,
		TokenTTL:     ttl,
		Catalog:      catalog,
		Metrics:      metrics,
		Config:       cfg,
	}
}

// Router builds the route table. The caller wraps the result with the
// request-id, trace-logger and otelhttp middleware before serving.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.rateLimitMiddleware)

	r.HandleFunc("/compat/preview", s.CompatPreviewHandler).Methods("POST")
	r.HandleFunc("/compat/{slug}", s.CompatHandler).Methods("GET")
	r.HandleFunc("/addons", s.ListAddonsHandler).Methods("GET")
	r.HandleFunc("/addons/{slug}", s.AddonDetailHandler).Methods("GET")
	r.HandleFunc("/addons/{slug}/stats", s.StatsHandler).Methods("GET")
	r.HandleFunc("/addons/{slug}/insights", s.InsightsHandler).Methods("GET")
	r.HandleFunc("/addons/{slug}/recommendations", s.RecommendationsHandler).Methods("GET")
	r.HandleFunc("/install", s.InstallHandler).Methods("GET")
	r.HandleFunc("/outgoing", s.OutgoingHandler).Methods("GET")
	r.HandleFunc("/abuse", s.AbuseHandler).Methods("POST")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.HandleFunc("/reload", s.ReloadHandler).Methods("POST")
	r.HandleFunc("/__version__", s.VersionHandler).Methods("GET")

	// CRUD routes for catalog administration
	crud := r.PathPrefix("/api").Subrouter()
	crud.HandleFunc("/addons", s.ListAddonsAdmin).Methods("GET")
	crud.HandleFunc("/addons", s.CreateAddon).Methods("POST")
	crud.HandleFunc("/addons/{slug}", s.UpdateAddon).Methods("PUT")
	crud.HandleFunc("/addons/{slug}", s.DeleteAddon).Methods("DELETE")
	crud.HandleFunc("/addons/{slug}/versions", s.CreateVersion).Methods("POST")
	crud.HandleFunc("/abuse_reports", s.ListAbuseReports).Methods("GET")

	// metrics endpoint (includes rate limiting metrics)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// rateLimitMiddleware applies the per-client token bucket to the paths the
// limiter covers. Everything else passes through untouched.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Limiter == nil || !s.Limiter.ShouldRateLimit(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !s.Limiter.Allow("compat", clientIP(r)) {
			s.Metrics.IncrementRequests("compat", r.Method, "429")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const CatalogUpdateChannel = "catalog-updates"

type UpdateMessage struct {
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     any    `json:"id"`
}

func (s *Server) notifyUpdate(entity string, action string, id any) {
	if s.Store == nil || s.Store.Client == nil {
		s.Logger.Warn("redis store not available, skipping update notification")
		return
	}
	msg := UpdateMessage{Entity: entity, Action: action, ID: id}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.Logger.Error("failed to marshal update message", zap.Error(err))
		return
	}

	ctx := context.Background()
	if err := s.Store.Client.Publish(ctx, CatalogUpdateChannel, payload).Err(); err != nil {
		s.Logger.Error("failed to publish update message", zap.Error(err))
	}
}

// Reload replaces the in-memory catalog snapshot from Postgres.
func (s *Server) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}

	addons, err := db.RefreshCatalog(s.PG, s.Catalog)
	if err != nil {
		s.Metrics.IncrementCatalogReloadErrors()
		return fmt.Errorf("refresh catalog: %w", err)
	}

	counts := db.CountByType(addons)
	for _, t := range models.AllAddonTypes() {
		s.Metrics.SetCatalogSize(string(t), float64(counts[t]))
	}

	s.Logger.Info("catalog reloaded", zap.Int("addons", len(addons)))
	return nil
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP extracts the requesting client's IP, preferring the first entry
// of X-Forwarded-For over the socket peer.
func clientIP(r *http.Request) string {
	ipStr := r.Header.Get("X-Forwarded-For")
	if ipStr == "" {
		ipStr = r.RemoteAddr
		if host, _, err := net.SplitHostPort(ipStr); err == nil {
			ipStr = host
		}
		return ipStr
	}
	// X-Forwarded-For can be comma-separated, take first IP
	if idx := strings.Index(ipStr, ","); idx != -1 {
		ipStr = ipStr[:idx]
	}
	return strings.TrimSpace(ipStr)
}

// lookupCountry resolves the request's country for analytics enrichment.
func (s *Server) lookupCountry(r *http.Request) string {
	if s.GeoIP == nil {
		return ""
	}
	ip := net.ParseIP(clientIP(r))
	if ip == nil {
		return ""
	}
	return s.GeoIP.Country(ip)
}

// newEvent builds the analytics row skeleton shared by the follow-up action
// handlers, enriched with the acting client's parsed identity.
func (s *Server) newEvent(r *http.Request, evType, slug string) analytics.Event {
	uaString := r.UserAgent()
	parsed := compat.ResolveUserAgent(uaString)
	return analytics.Event{
		Type:           evType,
		RequestID:      middleware.RequestIDFromRequest(r),
		AddonSlug:      slug,
		Browser:        parsed.Browser.Name,
		BrowserVersion: parsed.Browser.Version,
		OS:             parsed.OS.Name,
		Country:        s.lookupCountry(r),
		UserAgent:      uaString,
	}
}

// absoluteURL prefixes path with the configured public base URL. With no
// base configured the path stays relative.
func (s *Server) absoluteURL(path string) string {
	return strings.TrimRight(s.Config.PublicBaseURL, "/") + path
}
