// Add-on Report Tool generates compatibility and engagement reports for add-ons.
//
// This tool connects directly to ClickHouse to query analytics data and generates
// formatted reports showing decision volumes, compatibility rates, install and
// outgoing click counts with automated insights.
//
// Usage:
//
//	go run ./tools/addon_report -slug=dark-mode-magic -days=30
//
// The tool outputs a formatted report including:
//   - Overall performance summary (decisions, compatibility rate, installs)
//   - Daily performance breakdown
//   - Refusal reasons ranked by volume
//   - Per-application breakdown and automated insights
//
// Configuration:
//
//	-slug: Required. The add-on slug to generate a report for
//	-days: Optional. Number of days to include in the report (default: 7)
//	-clickhouse-dsn: Optional. ClickHouse connection string (default: tcp://localhost:9000)
//
// Environment Variables:
//
//	CLICKHOUSE_DSN: ClickHouse connection string (overridden by -clickhouse-dsn flag)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/openaddons/addonserve/internal/compat"
	"github.com/openaddons/addonserve/internal/reporting"
)

// main is the entry point for the add-on report tool. It parses command line
// flags, establishes a connection to ClickHouse, generates the insights report,
// and outputs the formatted results to stdout.
func main() {
	var (
		slug = flag.String("slug", "", "Add-on slug to generate report for")
		days = flag.Int("days", 7, "Number of days to include in report")
		dsn  = flag.String("clickhouse-dsn", getEnv("CLICKHOUSE_DSN", "tcp://localhost:9000"), "ClickHouse DSN")
	)
	flag.Parse()

	if *slug == "" {
		fmt.Fprintf(os.Stderr, "Error: slug is required\n")
		flag.Usage()
		os.Exit(1)
	}

	// Connect to ClickHouse
	db, err := sql.Open("clickhouse", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", err)
		}
	}()

	if err := db.PingContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging ClickHouse: %v\n", err)
		os.Exit(1)
	}

	// Generate insights using shared package
	insights, err := reporting.GenerateAddonInsights(context.Background(), db, *slug, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	// Print formatted report
	printAddonReport(insights, *days)
}

// printAddonReport outputs a formatted compatibility report to stdout. The
// report includes overall metrics, daily breakdown tables, refusal reason and
// per-application analysis, and automated insights.
func printAddonReport(insights *reporting.AddonInsights, days int) {
	fmt.Printf("═══════════════════════════════════════════════════════════════════════════════════\n")
	fmt.Printf("                              ADD-ON COMPATIBILITY REPORT                          \n")
	fmt.Printf("═══════════════════════════════════════════════════════════════════════════════════\n")
	fmt.Printf("Add-on: %s\n", insights.Slug)
	fmt.Printf("Report Period: %d days (ending %s)\n", days, time.Now().Format("2006-01-02"))
	fmt.Printf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	// Overall Performance
	fmt.Printf("📊 OVERALL PERFORMANCE\n")
	fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")
	total := insights.TotalMetrics
	fmt.Printf("Total Decisions:    %s\n", formatNumber(total.Decisions))
	fmt.Printf("Compatible:         %s\n", formatNumber(total.Compatible))
	fmt.Printf("Installs:           %s\n", formatNumber(total.Installs))
	fmt.Printf("Outgoing Clicks:    %s\n", formatNumber(total.Outgoing))
	fmt.Printf("Compat Rate:        %.2f%%\n", total.CompatRate)
	if total.Compatible > 0 {
		fmt.Printf("Install Rate:       %.2f%%\n", total.InstallRate)
	}
	fmt.Printf("\n")

	// Daily Breakdown
	if len(insights.DailyMetrics) > 0 {
		fmt.Printf("📅 DAILY BREAKDOWN\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Date        | Decisions | Compatible |  Compat  | Installs | Install  | Outgoing\n")
		fmt.Printf("------------|-----------|------------|----------|----------|----------|----------\n")
		for _, dm := range insights.DailyMetrics {
			fmt.Printf("%-10s | %9s | %10s | %7.2f%% | %8s | %7.2f%% | %8s\n",
				dm.Date.Format("2006-01-02"),
				formatNumber(dm.Decisions),
				formatNumber(dm.Compatible),
				dm.CompatRate,
				formatNumber(dm.Installs),
				dm.InstallRate,
				formatNumber(dm.Outgoing),
			)
		}
		fmt.Printf("\n")
	}

	// Refusal Reasons
	if len(insights.RefusalReasons) > 0 {
		fmt.Printf("🚫 REFUSAL REASONS\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Reason               | Refusals |  Share  \n")
		fmt.Printf("---------------------|----------|----------\n")
		for _, rr := range insights.RefusalReasons {
			fmt.Printf("%-20s | %8s | %6.2f%%\n",
				rr.Reason,
				formatNumber(rr.Count),
				rr.Share,
			)
		}
		fmt.Printf("\n")
	}

	// Application Breakdown
	if len(insights.AppMetrics) > 0 {
		fmt.Printf("📱 APPLICATION BREAKDOWN\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Application | Decisions | Compatible |  Compat  | Installs\n")
		fmt.Printf("------------|-----------|------------|----------|----------\n")
		for _, am := range insights.AppMetrics {
			fmt.Printf("%-11s | %9s | %10s | %7.2f%% | %8s\n",
				am.App,
				formatNumber(am.Decisions),
				formatNumber(am.Compatible),
				am.CompatRate,
				formatNumber(am.Installs),
			)
		}
		fmt.Printf("\n")
	}

	// Insights
	fmt.Printf("💡 INSIGHTS & RECOMMENDATIONS\n")
	fmt.Printf("───────────────────────────────────────────────────────────────────────────────────\n")

	if total.Decisions == 0 {
		fmt.Printf("⚠️  No decisions recorded - check that clients are reaching the compat endpoint\n")
	} else if total.CompatRate < 50.0 {
		fmt.Printf("⚠️  Low compatibility rate (%.2f%%) - consider widening the supported version range\n", total.CompatRate)
	} else if total.CompatRate > 90.0 {
		fmt.Printf("✅ Excellent compatibility rate (%.2f%%) - nearly every client can install this add-on!\n", total.CompatRate)
	} else {
		fmt.Printf("✅ Good compatibility rate (%.2f%%) - within normal range\n", total.CompatRate)
	}

	if len(insights.RefusalReasons) > 0 {
		top := insights.RefusalReasons[0]
		if top.Share > 50 {
			fmt.Printf("📈 %s accounts for %.1f%% of all refusals\n", top.Reason, top.Share)
			switch top.Reason {
			case string(compat.ReasonOverMaxVersion):
				fmt.Printf("🔧 Bump the declared max version once the add-on is verified on current releases\n")
			case string(compat.ReasonUnderMinVersion):
				fmt.Printf("🔧 A large share of traffic runs releases older than the declared minimum\n")
			case string(compat.ReasonNotFirefox):
				fmt.Printf("🔍 Non-Firefox browsers dominate refusals - review where this listing is promoted\n")
			}
		}
	}

	// Per-app compatibility gaps
	if len(insights.AppMetrics) > 1 {
		best := insights.AppMetrics[0]
		worst := insights.AppMetrics[0]
		for _, am := range insights.AppMetrics {
			if am.CompatRate > best.CompatRate {
				best = am
			}
			if am.CompatRate < worst.CompatRate && am.Decisions > 0 {
				worst = am
			}
		}
		if best.App != worst.App && worst.CompatRate > 0 && best.CompatRate > worst.CompatRate*2 {
			fmt.Printf("📊 %s has %.1fx better compatibility (%.2f%%) than %s (%.2f%%)\n",
				best.App, best.CompatRate/worst.CompatRate, best.CompatRate, worst.App, worst.CompatRate)
		}
	}

	if total.Compatible > 0 && total.Installs == 0 {
		fmt.Printf("🔍 Compatible verdicts are not converting into installs - check the install flow\n")
	}

	fmt.Printf("═══════════════════════════════════════════════════════════════════════════════════\n")
}

// formatNumber formats large integers with comma separators for improved readability.
// Example: 1234567 becomes "1,234,567"
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	// Add commas for thousands separators
	result := ""
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}
	return result
}

// getEnv retrieves an environment variable value or returns a default value if not set.
// Used for configuration with fallback defaults.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
