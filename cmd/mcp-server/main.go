package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/openaddons/addonserve/internal/compat"
	"github.com/openaddons/addonserve/internal/db"
	"github.com/openaddons/addonserve/internal/models"
	"github.com/openaddons/addonserve/internal/reporting"
	"go.uber.org/zap"
)

// MCP tool request/response types
type GetAddonInput struct {
	Slug string `json:"slug"`
}

type GetAddonOutput struct {
	Addon         *models.Addon `json:"addon"`
	TotalInstalls int64         `json:"total_installs"`
	InstallsToday int64         `json:"installs_today"`
}

type CheckCompatibilityInput struct {
	Slug      string `json:"slug"`
	UserAgent string `json:"user_agent"`
	App       string `json:"app,omitempty"`
}

type CheckCompatibilityOutput struct {
	Slug           string  `json:"slug"`
	App            string  `json:"app"`
	Compatible     bool    `json:"compatible"`
	Reason         string  `json:"reason,omitempty"`
	MinVersion     *string `json:"min_version,omitempty"`
	MaxVersion     *string `json:"max_version,omitempty"`
	Browser        string  `json:"browser"`
	BrowserVersion string  `json:"browser_version"`
	OS             string  `json:"os"`
}

type AddonInsightsInput struct {
	Slug string `json:"slug"`
	Days int    `json:"days,omitempty"`
}

// CatalogServer holds the tool dependencies
type CatalogServer struct {
	catalog    models.AddonStore
	store      *db.RedisStore
	clickhouse *sql.DB
	checker    *compat.Checker
	logger     *zap.Logger
}

// GetAddon implements the get_addon tool: the full catalog document for one
// add-on, plus its install counters when Redis is available.
func (s *CatalogServer) GetAddon(ctx context.Context, req *mcp.CallToolRequest, input GetAddonInput) (*mcp.CallToolResult, GetAddonOutput, error) {
	if input.Slug == "" {
		return nil, GetAddonOutput{}, fmt.Errorf("slug is required")
	}
	addon := s.catalog.GetBySlug(input.Slug)
	if addon == nil {
		return nil, GetAddonOutput{}, fmt.Errorf("addon %q not found", input.Slug)
	}

	out := GetAddonOutput{Addon: addon}
	if s.store != nil && s.store.Client != nil {
		out.TotalInstalls, out.InstallsToday = s.store.GetInstallCounts(addon.Slug)
	}

	s.logger.Info("get_addon served",
		zap.String("slug", addon.Slug),
		zap.String("type", string(addon.Type)))
	return nil, out, nil
}

// CheckCompatibility implements the check_compatibility tool: the same
// decision rules the public /compat endpoint runs, exposed for agents.
func (s *CatalogServer) CheckCompatibility(ctx context.Context, req *mcp.CallToolRequest, input CheckCompatibilityInput) (*mcp.CallToolResult, CheckCompatibilityOutput, error) {
	if input.Slug == "" || input.UserAgent == "" {
		return nil, CheckCompatibilityOutput{}, fmt.Errorf("slug and user_agent are required")
	}
	addon := s.catalog.GetBySlug(input.Slug)
	if addon == nil {
		return nil, CheckCompatibilityOutput{}, fmt.Errorf("addon %q not found", input.Slug)
	}

	ua := compat.ResolveUserAgent(input.UserAgent)
	var app models.ClientApp
	if input.App == "" {
		app = compat.InferClientApp(ua)
	} else {
		parsed, ok := models.ParseClientApp(input.App)
		if !ok {
			return nil, CheckCompatibilityOutput{}, fmt.Errorf("unknown app %q", input.App)
		}
		app = parsed
	}

	cc, err := s.checker.ClientCompatibility(addon, app, &ua)
	if err != nil {
		return nil, CheckCompatibilityOutput{}, fmt.Errorf("compatibility check failed: %w", err)
	}

	s.logger.Info("check_compatibility served",
		zap.String("slug", addon.Slug),
		zap.String("app", string(app)),
		zap.Bool("compatible", cc.Compatible))

	return nil, CheckCompatibilityOutput{
		Slug:           addon.Slug,
		App:            string(app),
		Compatible:     cc.Compatible,
		Reason:         string(cc.Reason),
		MinVersion:     cc.MinVersion,
		MaxVersion:     cc.MaxVersion,
		Browser:        ua.Browser.Name,
		BrowserVersion: ua.Browser.Version,
		OS:             ua.OS.Name,
	}, nil
}

// AddonInsights implements the addon_insights tool over the ClickHouse
// event stream. Requires a ClickHouse connection.
func (s *CatalogServer) AddonInsights(ctx context.Context, req *mcp.CallToolRequest, input AddonInsightsInput) (*mcp.CallToolResult, *reporting.AddonInsights, error) {
	if s.clickhouse == nil {
		return nil, nil, fmt.Errorf("analytics database not configured")
	}
	if input.Slug == "" {
		return nil, nil, fmt.Errorf("slug is required")
	}
	if s.catalog.GetBySlug(input.Slug) == nil {
		return nil, nil, fmt.Errorf("addon %q not found", input.Slug)
	}

	days := input.Days
	if days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	insights, err := reporting.GenerateAddonInsights(ctx, s.clickhouse, input.Slug, days)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate insights: %w", err)
	}
	return nil, insights, nil
}

func main() {
	// Initialize logger for MCP server - use stderr to avoid stdio conflicts
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.OutputPaths = []string{"stderr"}      // Force stderr output
	cfg.ErrorOutputPaths = []string{"stderr"} // Force stderr for errors

	// Use same encoder config as observability package for consistency
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Add service name as a permanent field for consistency
	logger = logger.Named("addonserve-mcp").With(zap.String("service", "addonserve-mcp"))

	logger.Info("Starting addonserve MCP server")

	postgresURL := os.Getenv("POSTGRES_DSN")
	if postgresURL == "" {
		logger.Fatal("POSTGRES_DSN environment variable is required")
	}

	pg, err := db.InitPostgres(postgresURL, 10, 5, 30*time.Minute, 5*time.Minute)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()
	logger.Info("Connected to PostgreSQL")

	// Redis only feeds the install counters, so a missing instance is not fatal
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	store, err := db.InitRedis(redisAddr)
	if err != nil {
		logger.Warn("Redis unavailable, install counters will be zero", zap.Error(err))
		store = nil
	} else {
		defer store.Close()
	}

	// ClickHouse only feeds the insights tool, so it degrades the same way
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	if clickhouseDSN == "" {
		clickhouseDSN = "clickhouse://default:@localhost:9000/default"
	}
	clickhouseDB, err := sql.Open("clickhouse", clickhouseDSN)
	if err != nil {
		logger.Warn("Failed to connect to ClickHouse, insights unavailable", zap.Error(err))
		clickhouseDB = nil
	} else {
		clickhouseDB.SetMaxOpenConns(25)
		if err := clickhouseDB.PingContext(context.Background()); err != nil {
			logger.Warn("ClickHouse ping failed, insights unavailable", zap.Error(err))
			clickhouseDB.Close()
			clickhouseDB = nil
		} else {
			logger.Info("ClickHouse connected")
			defer clickhouseDB.Close()
		}
	}

	// Hydrate the catalog snapshot from Postgres
	catalog := models.NewInMemoryAddonStore()
	addons, err := db.RefreshCatalog(pg, catalog)
	if err != nil {
		logger.Fatal("Failed to load catalog", zap.Error(err))
	}
	logger.Info("Catalog loaded", zap.Int("addons", len(addons)))

	catalogServer := &CatalogServer{
		catalog:    catalog,
		store:      store,
		clickhouse: clickhouseDB,
		checker:    compat.NewChecker(logger),
		logger:     logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "addonserve",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_addon",
		Description: "Look up an add-on listing by slug, including its current version and install counters",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"slug": map[string]interface{}{
					"type":        "string",
					"description": "Add-on slug, e.g. dark-mode-magic",
				},
			},
			"required": []string{"slug"},
		},
	}, catalogServer.GetAddon)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_compatibility",
		Description: "Decide whether a client identified by its user agent can install an add-on",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"slug": map[string]interface{}{
					"type":        "string",
					"description": "Add-on slug to check",
				},
				"user_agent": map[string]interface{}{
					"type":        "string",
					"description": "Full User-Agent header of the client",
				},
				"app": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"firefox", "android"},
					"description": "Client application (optional, inferred from the user agent when omitted)",
				},
			},
			"required": []string{"slug", "user_agent"},
		},
	}, catalogServer.CheckCompatibility)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "addon_insights",
		Description: "Summarize decision, install and outgoing-click analytics for an add-on",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"slug": map[string]interface{}{
					"type":        "string",
					"description": "Add-on slug to report on",
				},
				"days": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     90,
					"description": "Reporting window in days (optional, defaults to 7)",
				},
			},
			"required": []string{"slug"},
		},
	}, catalogServer.AddonInsights)

	// Run the MCP server with logging transport for debugging
	stdioTransport := &mcp.StdioTransport{}

	var logBuffer bytes.Buffer
	loggingTransport := &mcp.LoggingTransport{
		Transport: stdioTransport,
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")

	if err := server.Run(context.Background(), loggingTransport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
