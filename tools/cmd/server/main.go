package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openaddons/addonserve/internal/analytics"
	"github.com/openaddons/addonserve/internal/api"
	"github.com/openaddons/addonserve/internal/config"
	"github.com/openaddons/addonserve/internal/db"
	"github.com/openaddons/addonserve/internal/geoip"
	"github.com/openaddons/addonserve/internal/middleware"
	"github.com/openaddons/addonserve/internal/models"
	"github.com/openaddons/addonserve/internal/observability"
	"github.com/openaddons/addonserve/internal/recommend"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdownTracing, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdownTracing()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer store.Close()

	// Initialize metrics registry
	metricsRegistry := observability.NewPrometheusRegistry()

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns, cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime, metricsRegistry)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer analyticsSvc.Close()

	geoSvc, err := geoip.Init(cfg.GeoIPDB)
	if err != nil {
		return fmt.Errorf("failed to load geoip db: %w", err)
	}
	defer func() { _ = geoSvc.Close() }()

	catalog := models.NewInMemoryAddonStore()

	srv := api.NewServer(logger, store, pg, analyticsSvc.DB, analyticsSvc, geoSvc, nil, cfg.DebugTrace, []byte(cfg.TokenSecret), cfg.TokenTTL, catalog, metricsRegistry, cfg)

	// Initial catalog load goes through the same path the reload endpoint
	// uses, so a broken snapshot fails startup instead of serving empty.
	if err := srv.Reload(); err != nil {
		return fmt.Errorf("initial catalog load: %w", err)
	}

	if cfg.RecommenderEnabled {
		recClient := recommend.NewClient(
			cfg.RecommenderURL,
			cfg.RecommenderTimeout,
			cfg.RecommenderCacheTTL,
			logger,
			metricsRegistry,
		)

		// Start cache cleanup to prevent memory leaks
		recClient.StartCacheCleanup(10 * time.Minute)

		srv.Recommender = recClient
		logger.Info("recommender enabled",
			zap.String("url", cfg.RecommenderURL),
			zap.Duration("timeout", cfg.RecommenderTimeout),
			zap.Duration("cache_ttl", cfg.RecommenderCacheTTL))
	}

	if cfg.RateLimitEnabled {
		srv.Limiter.StartCleanup(10*time.Minute, 30*time.Minute)
	}

	// otelhttp sits outermost so the span exists before the trace logger
	// middleware captures it into the request logger.
	handler := otelhttp.NewHandler(
		middleware.WithRequestID(
			middleware.WithTraceLogger(logger)(srv.Router()),
		), "addonserve")

	addr := ":" + cfg.Port

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("addonserve running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srv.Reload(); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
