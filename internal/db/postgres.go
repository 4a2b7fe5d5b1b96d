package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS addons (
    id SERIAL PRIMARY KEY,
    slug TEXT NOT NULL UNIQUE,
    guid TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    addon_type TEXT NOT NULL,
    summary TEXT,
    homepage_url TEXT,
    support_url TEXT,
    icon_url TEXT,
    promoted_category TEXT,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS addon_versions (
    id SERIAL PRIMARY KEY,
    addon_id INT NOT NULL REFERENCES addons(id) ON DELETE CASCADE,
    version TEXT NOT NULL,
    strict_compatibility BOOLEAN NOT NULL DEFAULT FALSE,
    file_url TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS version_compat (
    version_id INT NOT NULL REFERENCES addon_versions(id) ON DELETE CASCADE,
    app TEXT NOT NULL,
    min_version TEXT NOT NULL,
    max_version TEXT NOT NULL,
    PRIMARY KEY (version_id, app)
);

CREATE TABLE IF NOT EXISTS abuse_reasons (
    code VARCHAR(50) PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL
);

CREATE TABLE IF NOT EXISTS abuse_reports (
    id SERIAL PRIMARY KEY,
    addon_id INT REFERENCES addons(id) ON DELETE SET NULL,
    addon_slug TEXT NOT NULL,
    reason VARCHAR(50) NOT NULL REFERENCES abuse_reasons(code),
    message TEXT,
    ip_address INET,
    user_agent TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    status VARCHAR(20) DEFAULT 'pending'
);

-- Performance indexes for catalog loading and report triage
CREATE INDEX IF NOT EXISTS idx_addons_active ON addons (active) WHERE active = true;
CREATE INDEX IF NOT EXISTS idx_addon_versions_addon_id ON addon_versions (addon_id);
CREATE INDEX IF NOT EXISTS idx_abuse_reports_addon_slug ON abuse_reports (addon_slug);
CREATE INDEX IF NOT EXISTS idx_abuse_reports_status ON abuse_reports (status);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.connection_string", dsn),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	// Configure connection pooling for production use
	db.SetMaxOpenConns(maxOpenConns)       // Maximum number of open connections
	db.SetMaxIdleConns(maxIdleConns)       // Maximum number of idle connections
	db.SetConnMaxLifetime(connMaxLifetime) // Maximum lifetime of a connection
	db.SetConnMaxIdleTime(connMaxIdleTime) // Maximum idle time before closing connection

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	if err := p.ensureAbuseReasons(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	ctx := context.Background()
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ensureAbuseReasons inserts the accepted abuse reasons if none exist.
func (p *Postgres) ensureAbuseReasons() error {
	ctx := context.Background()
	var count int
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM abuse_reasons`).Scan(&count); err != nil {
		return fmt.Errorf("count abuse_reasons: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, r := range models.AbuseReasons {
		if _, err := p.DB.ExecContext(ctx, `INSERT INTO abuse_reasons (code, display_name) VALUES ($1,$2)`, r.Code, r.DisplayName); err != nil {
			return fmt.Errorf("insert abuse reason %s: %w", r.Code, err)
		}
	}
	return nil
}

// LoadAddons retrieves the active catalog: every active addon joined with its
// most recent version and that version's declared compatibility ranges.
func (p *Postgres) LoadAddons() ([]models.Addon, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT
            a.id, a.slug, a.guid, a.name, a.addon_type, a.summary,
            a.homepage_url, a.support_url, a.icon_url, a.promoted_category,
            a.active, a.created_at,
            v.id, v.version, v.strict_compatibility, v.file_url, v.created_at
        FROM addons a
        LEFT JOIN LATERAL (
            SELECT id, version, strict_compatibility, file_url, created_at
            FROM addon_versions WHERE addon_id = a.id ORDER BY id DESC LIMIT 1
        ) v ON TRUE
        WHERE a.active`)
	if err != nil {
		return nil, fmt.Errorf("query addons: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var addons []models.Addon
	var versionIDs []int64
	versionOwner := make(map[int64]int) // version id -> index into addons
	for rows.Next() {
		var a models.Addon
		var rawType string
		var summary, homepage, support, icon, promoted sql.NullString
		var vID sql.NullInt64
		var vVersion, vFileURL sql.NullString
		var vStrict sql.NullBool
		var vCreated sql.NullTime
		if err := rows.Scan(&a.ID, &a.Slug, &a.GUID, &a.Name, &rawType, &summary,
			&homepage, &support, &icon, &promoted, &a.Active, &a.CreatedAt,
			&vID, &vVersion, &vStrict, &vFileURL, &vCreated); err != nil {
			return nil, fmt.Errorf("scan addon: %w", err)
		}
		typ, ok := models.ParseAddonType(rawType)
		if !ok {
			zap.L().Warn("unknown addon type in catalog",
				zap.String("slug", a.Slug), zap.String("addon_type", rawType))
			continue
		}
		a.Type = typ
		if summary.Valid {
			a.Summary = summary.String
		}
		if homepage.Valid {
			a.HomepageURL = homepage.String
		}
		if support.Valid {
			a.SupportURL = support.String
		}
		if icon.Valid {
			a.IconURL = icon.String
		}
		if promoted.Valid {
			a.PromotedCategory = promoted.String
		}
		if vID.Valid {
			v := &models.AddonVersion{
				ID:                           int(vID.Int64),
				Version:                      vVersion.String,
				IsStrictCompatibilityEnabled: vStrict.Bool,
				Compatibility:                models.Compatibility{},
			}
			if vFileURL.Valid {
				v.FileURL = vFileURL.String
			}
			if vCreated.Valid {
				v.CreatedAt = vCreated.Time
			}
			a.CurrentVersion = v
			versionOwner[vID.Int64] = len(addons)
			versionIDs = append(versionIDs, vID.Int64)
		}
		addons = append(addons, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	if len(versionIDs) == 0 {
		return addons, nil
	}
	if err := p.loadCompatRanges(addons, versionIDs, versionOwner); err != nil {
		return nil, err
	}
	return addons, nil
}

// loadCompatRanges fills the Compatibility maps for the given version IDs.
func (p *Postgres) loadCompatRanges(addons []models.Addon, versionIDs []int64, versionOwner map[int64]int) error {
	rows, err := p.DB.QueryContext(context.Background(),
		`SELECT version_id, app, min_version, max_version FROM version_compat WHERE version_id = ANY($1)`,
		pq.Array(versionIDs))
	if err != nil {
		return fmt.Errorf("query version compat: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var versionID int64
		var rawApp, min, max string
		if err := rows.Scan(&versionID, &rawApp, &min, &max); err != nil {
			return fmt.Errorf("scan version compat: %w", err)
		}
		app, ok := models.ParseClientApp(rawApp)
		if !ok {
			zap.L().Warn("unknown client app in version compat",
				zap.Int64("version_id", versionID), zap.String("app", rawApp))
			continue
		}
		idx, ok := versionOwner[versionID]
		if !ok {
			continue
		}
		addons[idx].CurrentVersion.Compatibility[app] = models.VersionRange{Min: min, Max: max}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}

// InsertAddon inserts a new addon record and returns the generated ID. When
// the addon carries a current version, that version and its compatibility
// ranges are stored as well.
func (p *Postgres) InsertAddon(a *models.Addon) error {
	err := p.DB.QueryRowContext(context.Background(), `INSERT INTO addons (
            slug, guid, name, addon_type, summary, homepage_url, support_url,
            icon_url, promoted_category, active)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		a.Slug, a.GUID, a.Name, string(a.Type), a.Summary, a.HomepageURL,
		a.SupportURL, a.IconURL, a.PromotedCategory, a.Active).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert addon: %w", err)
	}
	if a.CurrentVersion != nil {
		if err := p.InsertVersion(a.ID, a.CurrentVersion); err != nil {
			return err
		}
	}
	return nil
}

// InsertVersion stores a new version for an addon and returns the generated
// ID. A new version becomes the addon's current version on the next catalog
// load.
func (p *Postgres) InsertVersion(addonID int, v *models.AddonVersion) error {
	err := p.DB.QueryRowContext(context.Background(), `INSERT INTO addon_versions (
            addon_id, version, strict_compatibility, file_url)
            VALUES ($1,$2,$3,$4) RETURNING id`,
		addonID, v.Version, v.IsStrictCompatibilityEnabled, v.FileURL).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("insert addon version: %w", err)
	}
	for app, r := range v.Compatibility {
		if _, err := p.DB.ExecContext(context.Background(),
			`INSERT INTO version_compat (version_id, app, min_version, max_version) VALUES ($1,$2,$3,$4)`,
			v.ID, string(app), r.Min, r.Max); err != nil {
			return fmt.Errorf("insert version compat %s: %w", app, err)
		}
	}
	return nil
}

// UpdateAddon updates an addon's listing metadata. Versions are immutable;
// publish a new one with InsertVersion instead.
func (p *Postgres) UpdateAddon(a models.Addon) error {
	_, err := p.DB.ExecContext(context.Background(), `UPDATE addons SET
            slug=$1, guid=$2, name=$3, addon_type=$4, summary=$5,
            homepage_url=$6, support_url=$7, icon_url=$8, promoted_category=$9,
            active=$10 WHERE id=$11`,
		a.Slug, a.GUID, a.Name, string(a.Type), a.Summary, a.HomepageURL,
		a.SupportURL, a.IconURL, a.PromotedCategory, a.Active, a.ID)
	if err != nil {
		return fmt.Errorf("update addon: %w", err)
	}
	return nil
}

// Ping verifies the Postgres connection is alive.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}

// DeleteAddon removes an addon by ID. Versions and compatibility rows cascade;
// abuse reports survive with their addon reference cleared.
func (p *Postgres) DeleteAddon(id int) error {
	_, err := p.DB.ExecContext(context.Background(), `DELETE FROM addons WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete addon: %w", err)
	}
	return nil
}

// InsertAbuseReport stores a new abuse report from a user.
func (p *Postgres) InsertAbuseReport(r models.AbuseReport) error {
	var addonID interface{}
	if r.AddonID != 0 {
		addonID = r.AddonID
	}
	_, err := p.DB.ExecContext(context.Background(), `INSERT INTO abuse_reports (
            addon_id, addon_slug, reason, message, ip_address, user_agent, status)
            VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		addonID, r.Slug, r.Reason, r.Message, r.ReporterIP, r.UserAgent, r.Status)
	if err != nil {
		return fmt.Errorf("insert abuse report: %w", err)
	}
	return nil
}

// LoadAbuseReports returns stored reports for one addon slug, newest first.
func (p *Postgres) LoadAbuseReports(slug string, limit int) ([]models.AbuseReport, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT
            id, COALESCE(addon_id, 0), addon_slug, reason, COALESCE(message, ''),
            COALESCE(ip_address::text, ''), COALESCE(user_agent, ''), created_at, status
            FROM abuse_reports WHERE addon_slug=$1 ORDER BY id DESC LIMIT $2`, slug, limit)
	if err != nil {
		return nil, fmt.Errorf("query abuse reports: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var reports []models.AbuseReport
	for rows.Next() {
		var r models.AbuseReport
		if err := rows.Scan(&r.ID, &r.AddonID, &r.Slug, &r.Reason, &r.Message,
			&r.ReporterIP, &r.UserAgent, &r.CreatedAt, &r.Status); err != nil {
			return nil, fmt.Errorf("scan abuse report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return reports, nil
}
