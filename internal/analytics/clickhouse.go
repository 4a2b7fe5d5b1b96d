package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/openaddons/addonserve/internal/observability"
)

// Event type names stored in the events table.
const (
	EventDecision = "decision"
	EventInstall  = "install"
	EventOutgoing = "outgoing"
	EventAbuse    = "abuse"
)

// Event is one analytics row: a compatibility decision or one of the
// follow-up actions (install click, outgoing click, abuse report).
type Event struct {
	Type           string
	RequestID      string
	AddonID        int
	AddonSlug      string
	AddonType      string
	App            string
	Compatible     bool
	Reason         string
	Browser        string
	BrowserVersion string
	OS             string
	Country        string
	UserAgent      string
}

// Service defines the interface for analytics operations.
// Implementations should handle cases where underlying storage is unavailable
// by returning ErrUnavailable.
type Service interface {
	// RecordEvent inserts a single event row.
	RecordEvent(ctx context.Context, ev Event) error
	// EventsByRequestID returns every event recorded for one request ID.
	EventsByRequestID(ctx context.Context, id string) ([]EventRecord, error)
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

// EventRecord mirrors a row in the events table.
type EventRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	EventType      string    `json:"event_type"`
	RequestID      string    `json:"request_id"`
	AddonID        *int32    `json:"addon_id"`
	AddonSlug      string    `json:"addon_slug"`
	AddonType      *string   `json:"addon_type"`
	App            *string   `json:"app"`
	Compatible     uint8     `json:"compatible"`
	Reason         *string   `json:"reason"`
	Browser        *string   `json:"browser"`
	BrowserVersion *string   `json:"browser_version"`
	OS             *string   `json:"os"`
	Country        *string   `json:"country"`
	UserAgent      *string   `json:"user_agent"`
}

// InitClickHouse connects to ClickHouse with the given pooling configuration
// and ensures the events table exists.
func InitClickHouse(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration, metrics observability.MetricsRegistry) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS events (
       timestamp       DateTime,
       event_type      String,
       request_id      String,
       addon_id        Nullable(Int32),
       addon_slug      String,
       addon_type      Nullable(String),
       app             Nullable(String),
       compatible      UInt8,
       reason          Nullable(String),
       browser         Nullable(String),
       browser_version Nullable(String),
       os              Nullable(String),
       country         Nullable(String),
       user_agent      Nullable(String)
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db, Metrics: metrics}, nil
}

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// RecordEvent inserts a single event row into the events table.
func (a *Analytics) RecordEvent(ctx context.Context, ev Event) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}

	var addonID sql.NullInt32
	if ev.AddonID > 0 {
		addonID.Int32 = int32(ev.AddonID)
		addonID.Valid = true
	}
	compatible := uint8(0)
	if ev.Compatible {
		compatible = 1
	}

	stmt := `INSERT INTO events (timestamp, event_type, request_id, addon_id, addon_slug, addon_type, app, compatible, reason, browser, browser_version, os, country, user_agent) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, time.Now(), ev.Type, ev.RequestID,
		addonID, ev.AddonSlug, nullStr(ev.AddonType), nullStr(ev.App), compatible,
		nullStr(ev.Reason), nullStr(ev.Browser), nullStr(ev.BrowserVersion),
		nullStr(ev.OS), nullStr(ev.Country), nullStr(ev.UserAgent)); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", ev.Type))
		return fmt.Errorf("insert %s event: %w", ev.Type, err)
	}
	if a.Metrics != nil {
		a.Metrics.IncrementEvent(ev.Type)
	}
	return nil
}

// nullStr maps the empty string to NULL.
func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

// EventsByRequestID returns all events for a given request ID ordered by timestamp.
func (a *Analytics) EventsByRequestID(ctx context.Context, id string) ([]EventRecord, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT timestamp, event_type, request_id, addon_id, addon_slug, addon_type, app, compatible, reason, browser, browser_version, os, country, user_agent FROM events WHERE request_id=? ORDER BY timestamp`
	rows, err := a.DB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []EventRecord
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(&ev.Timestamp, &ev.EventType, &ev.RequestID, &ev.AddonID,
			&ev.AddonSlug, &ev.AddonType, &ev.App, &ev.Compatible, &ev.Reason,
			&ev.Browser, &ev.BrowserVersion, &ev.OS, &ev.Country, &ev.UserAgent); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}
