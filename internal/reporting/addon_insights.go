// Package reporting generates add-on performance insights from ClickHouse
// analytics data: decision volumes, compatibility rates, install and outgoing
// click counts, with daily, per-reason, and per-app breakdowns.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsightsMetrics represents decision and click metrics for an add-on over a
// specific time period. Rates are expressed as percentages (0-100).
type InsightsMetrics struct {
	Slug        string    `json:"slug"`         // Add-on slug
	Date        time.Time `json:"date"`         // Date for daily metrics, current time for totals
	Decisions   int64     `json:"decisions"`    // Compatibility decisions served
	Compatible  int64     `json:"compatible"`   // Decisions with a positive verdict
	Installs    int64     `json:"installs"`     // Install clicks recorded
	Outgoing    int64     `json:"outgoing"`     // Outgoing link clicks recorded
	CompatRate  float64   `json:"compat_rate"`  // compatible / decisions * 100
	InstallRate float64   `json:"install_rate"` // installs / compatible * 100
}

// ReasonMetrics counts one refusal reason across the reporting period.
type ReasonMetrics struct {
	Reason string  `json:"reason"` // Refusal reason code
	Count  int64   `json:"count"`  // Refusals citing this reason
	Share  float64 `json:"share"`  // Percentage of all refusals
}

// AppMetrics breaks decisions down by client application.
type AppMetrics struct {
	App        string  `json:"app"`         // Client application (firefox, android)
	Decisions  int64   `json:"decisions"`   // Decisions served for this app
	Compatible int64   `json:"compatible"`  // Positive verdicts for this app
	Installs   int64   `json:"installs"`    // Install clicks for this app
	CompatRate float64 `json:"compat_rate"` // compatible / decisions * 100
}

// AddonInsights contains the full insights view for one add-on: overall
// totals, a day-by-day breakdown, refusal reasons ranked by volume, and a
// per-app breakdown.
type AddonInsights struct {
	Slug           string            `json:"slug"`
	TotalMetrics   InsightsMetrics   `json:"total_metrics"`
	DailyMetrics   []InsightsMetrics `json:"daily_metrics"`
	RefusalReasons []ReasonMetrics   `json:"refusal_reasons"`
	AppMetrics     []AppMetrics      `json:"app_metrics"`
}

// GenerateAddonInsights queries ClickHouse for one add-on's event history and
// assembles the insights report.
func GenerateAddonInsights(ctx context.Context, db *sql.DB, slug string, days int) (*AddonInsights, error) {
	insights := &AddonInsights{
		Slug: slug,
	}

	// Get daily metrics from ClickHouse
	dailyMetrics, err := getDailyMetrics(ctx, db, slug, days)
	if err != nil {
		return nil, fmt.Errorf("get daily metrics: %w", err)
	}
	insights.DailyMetrics = dailyMetrics

	// Calculate aggregated total metrics from daily data
	totalMetrics := InsightsMetrics{
		Slug: slug,
		Date: time.Now(),
	}

	for _, dm := range dailyMetrics {
		totalMetrics.Decisions += dm.Decisions
		totalMetrics.Compatible += dm.Compatible
		totalMetrics.Installs += dm.Installs
		totalMetrics.Outgoing += dm.Outgoing
	}

	// Calculate derived rates
	if totalMetrics.Decisions > 0 {
		totalMetrics.CompatRate = float64(totalMetrics.Compatible) / float64(totalMetrics.Decisions) * 100
	}
	if totalMetrics.Compatible > 0 {
		totalMetrics.InstallRate = float64(totalMetrics.Installs) / float64(totalMetrics.Compatible) * 100
	}
	insights.TotalMetrics = totalMetrics

	// Get refusal reasons ranked by volume
	reasons, err := getRefusalReasons(ctx, db, slug, days, 5)
	if err != nil {
		return nil, fmt.Errorf("get refusal reasons: %w", err)
	}
	insights.RefusalReasons = reasons

	// Get per-app metrics
	appMetrics, err := getAppMetrics(ctx, db, slug, days)
	if err != nil {
		return nil, fmt.Errorf("get app metrics: %w", err)
	}
	insights.AppMetrics = appMetrics

	return insights, nil
}

// getDailyMetrics queries ClickHouse for daily decision and click metrics for
// the specified add-on over the given number of days. Returns metrics grouped
// by date with calculated rates for each day.
func getDailyMetrics(ctx context.Context, db *sql.DB, slug string, days int) ([]InsightsMetrics, error) {
	query := `
		SELECT
			toDate(timestamp) as date,
			countIf(event_type = 'decision') as decisions,
			countIf(event_type = 'decision' AND compatible = 1) as compatible,
			countIf(event_type = 'install') as installs,
			countIf(event_type = 'outgoing') as outgoing,
			round(if(decisions > 0, compatible / decisions * 100, 0), 2) as compat_rate,
			round(if(compatible > 0, installs / compatible * 100, 0), 2) as install_rate
		FROM events
		WHERE addon_slug = ?
			AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY date
		ORDER BY date DESC`

	rows, err := db.QueryContext(ctx, query, slug, days)
	if err != nil {
		return nil, fmt.Errorf("query daily metrics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var metrics []InsightsMetrics
	for rows.Next() {
		var m InsightsMetrics
		m.Slug = slug // Set it directly since we're filtering by it
		err := rows.Scan(&m.Date, &m.Decisions, &m.Compatible,
			&m.Installs, &m.Outgoing, &m.CompatRate, &m.InstallRate)
		if err != nil {
			return nil, fmt.Errorf("scan daily metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// getRefusalReasons queries ClickHouse for the refusal reasons cited for an
// add-on, ranked by volume. Returns up to 'limit' results with each reason's
// share of all refusals.
func getRefusalReasons(ctx context.Context, db *sql.DB, slug string, days int, limit int) ([]ReasonMetrics, error) {
	query := `
		SELECT
			assumeNotNull(reason) as reason,
			count() as refusals,
			round(refusals / sum(refusals) OVER () * 100, 2) as share
		FROM events
		WHERE addon_slug = ?
			AND event_type = 'decision'
			AND compatible = 0
			AND reason IS NOT NULL
			AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY reason
		ORDER BY refusals DESC
		LIMIT ?`

	rows, err := db.QueryContext(ctx, query, slug, days, limit)
	if err != nil {
		return nil, fmt.Errorf("query refusal reasons: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var reasons []ReasonMetrics
	for rows.Next() {
		var r ReasonMetrics
		err := rows.Scan(&r.Reason, &r.Count, &r.Share)
		if err != nil {
			return nil, fmt.Errorf("scan reason metrics: %w", err)
		}
		reasons = append(reasons, r)
	}
	return reasons, rows.Err()
}

// getAppMetrics queries ClickHouse for decision metrics grouped by client
// application. Returns metrics with calculated compatibility rates.
func getAppMetrics(ctx context.Context, db *sql.DB, slug string, days int) ([]AppMetrics, error) {
	query := `
		SELECT
			assumeNotNull(app) as app,
			countIf(event_type = 'decision') as decisions,
			countIf(event_type = 'decision' AND compatible = 1) as compatible,
			countIf(event_type = 'install') as installs,
			round(if(decisions > 0, compatible / decisions * 100, 0), 2) as compat_rate
		FROM events
		WHERE addon_slug = ?
			AND app IS NOT NULL
			AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY app
		ORDER BY decisions DESC`

	rows, err := db.QueryContext(ctx, query, slug, days)
	if err != nil {
		return nil, fmt.Errorf("query app metrics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var apps []AppMetrics
	for rows.Next() {
		var a AppMetrics
		err := rows.Scan(&a.App, &a.Decisions, &a.Compatible, &a.Installs, &a.CompatRate)
		if err != nil {
			return nil, fmt.Errorf("scan app metrics: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}
