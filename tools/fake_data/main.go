package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/config"
	"github.com/openaddons/addonserve/internal/db"
	"github.com/openaddons/addonserve/internal/models"
	"github.com/openaddons/addonserve/internal/observability"
)

var (
	addonCount  = flag.Int("addons", 40, "number of random add-ons")
	reportCount = flag.Int("reports", 5, "number of abuse reports")
	seed        = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	skipReload  = flag.Bool("skip-reload", false, "skip automatic reload after data insertion")
)

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	r := rand.New(rand.NewSource(*seed))

	// Check if the demo listings already exist
	var demoExists int
	if err := pg.DB.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM addons WHERE slug = 'dark-mode-magic'`).Scan(&demoExists); err != nil {
		logger.Fatal("check demo addons", zap.Error(err))
	}

	if demoExists == 0 {
		for _, a := range demoAddons() {
			addon := a
			if err := pg.InsertAddon(&addon); err != nil {
				logger.Fatal("insert demo addon", zap.Error(err), zap.String("slug", addon.Slug))
			}
		}
		fmt.Println("demo add-ons inserted")
	}

	for i := 0; i < *addonCount; i++ {
		a := randomAddon(r, i)
		if err := pg.InsertAddon(&a); err != nil {
			logger.Fatal("insert addon", zap.Error(err), zap.String("slug", a.Slug))
		}
	}

	for i := 0; i < *reportCount; i++ {
		if err := pg.InsertAbuseReport(randomReport(r)); err != nil {
			logger.Fatal("insert abuse report", zap.Error(err))
		}
	}

	fmt.Println("fake data inserted")

	if !*skipReload {
		if err := callReloadEndpoint(&cfg); err != nil {
			logger.Error("reload endpoint failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: failed to reload server data: %v\n", err)
		} else {
			fmt.Println("server data reloaded")
		}
	}
}

// demoAddons is a curated set covering every add-on type and the interesting
// compatibility shapes: dual-app ranges, strict language packs, a legacy
// search plugin and a pinned theme range.
func demoAddons() []models.Addon {
	return []models.Addon{
		{
			Slug:             "dark-mode-magic",
			GUID:             "dark-mode-magic@example.com",
			Name:             "Dark Mode Magic",
			Type:             models.AddonTypeExtension,
			Summary:          "Flips any site into a readable dark theme with per-site overrides.",
			HomepageURL:      "https://darkmode.example.com",
			SupportURL:       "https://darkmode.example.com/support",
			IconURL:          "https://cdn.example.com/icons/dark-mode-magic.png",
			PromotedCategory: "recommended",
			Active:           true,
			CurrentVersion: &models.AddonVersion{
				Version: "3.2.1",
				FileURL: "https://files.example.com/dark-mode-magic-3.2.1.xpi",
				Compatibility: models.Compatibility{
					models.ClientAppFirefox: {Min: "58.0", Max: "*"},
					models.ClientAppAndroid: {Min: "113.0", Max: "*"},
				},
			},
		},
		{
			Slug:        "tab-session-keeper",
			GUID:        "tab-session-keeper@example.com",
			Name:        "Tab Session Keeper",
			Type:        models.AddonTypeExtension,
			Summary:     "Saves and restores whole browsing sessions, windows included.",
			HomepageURL: "https://tabkeeper.example.org",
			Active:      true,
			CurrentVersion: &models.AddonVersion{
				Version: "1.8.0",
				FileURL: "https://files.example.com/tab-session-keeper-1.8.0.xpi",
				Compatibility: models.Compatibility{
					models.ClientAppFirefox: {Min: "60.0", Max: "*"},
				},
			},
		},
		{
			Slug:    "midnight-velvet",
			GUID:    "midnight-velvet@example.com",
			Name:    "Midnight Velvet",
			Type:    models.AddonTypeTheme,
			Summary: "A deep purple theme with high-contrast toolbar icons.",
			IconURL: "https://cdn.example.com/icons/midnight-velvet.png",
			Active:  true,
			CurrentVersion: &models.AddonVersion{
				Version: "2.0",
				FileURL: "https://files.example.com/midnight-velvet-2.0.xpi",
				Compatibility: models.Compatibility{
					models.ClientAppFirefox: {Min: "53.0", Max: "*"},
				},
			},
		},
		{
			Slug:    "english-au-dictionary",
			GUID:    "en-au@dictionaries.example.com",
			Name:    "English (Australian) Dictionary",
			Type:    models.AddonTypeDictionary,
			Summary: "Australian English spell checking dictionary.",
			Active:  true,
			CurrentVersion: &models.AddonVersion{
				Version: "4.1",
				FileURL: "https://files.example.com/english-au-dictionary-4.1.xpi",
				Compatibility: models.Compatibility{
					models.ClientAppFirefox: {Min: "42.0", Max: "*"},
				},
			},
		},
		{
			// Language packs ship pinned to one application release
			Slug:    "klingon-language-pack",
			GUID:    "tlh@langpacks.example.com",
			Name:    "Klingon Language Pack",
			Type:    models.AddonTypeLangPack,
			Summary: "Klingon translation of the browser interface.",
			Active:  true,
			CurrentVersion: &models.AddonVersion{
				Version:                      "115.0.1",
				IsStrictCompatibilityEnabled: true,
				FileURL:                      "https://files.example.com/klingon-language-pack-115.0.1.xpi",
				Compatibility: models.Compatibility{
					models.ClientAppFirefox: {Min: "115.0", Max: "115.*"},
				},
			},
		},
		{
			Slug:    "quick-wiki-search",
			GUID:    "quick-wiki-search@example.com",
			Name:    "Quick Wiki Search",
			Type:    models.AddonTypeOpenSearch,
			Summary: "Adds an encyclopedia search engine to the search bar.",
			Active:  true,
			CurrentVersion: &models.AddonVersion{
				Version: "1.2",
				FileURL: "https://files.example.com/quick-wiki-search-1.2.xml",
				Compatibility: models.Compatibility{
					models.ClientAppFirefox: {Min: "49.0", Max: "*"},
				},
			},
		},
	}
}

// random helpers

var slugAdjectives = []string{"quick", "smart", "tiny", "mighty", "silent", "bright", "fast", "clever"}
var slugNouns = []string{"tabs", "notes", "shield", "translate", "capture", "reader", "blocker", "themes"}

var summaryPhrases = []string{
	"Keeps your browsing tidy without getting in the way.",
	"One click, no configuration needed.",
	"Lightweight and respects your privacy.",
	"Built for people who live in their browser.",
	"The missing feature you did not know you needed.",
}

// minVersions are plausible minimum application versions for declared ranges.
var minVersions = []string{"48.0", "52.0", "57.0", "58.0", "60.0", "68.0", "78.0", "91.0", "102.0", "115.0"}

func randomSlug(r *rand.Rand, i int) string {
	return fmt.Sprintf("%s-%s-%d", slugAdjectives[r.Intn(len(slugAdjectives))], slugNouns[r.Intn(len(slugNouns))], i)
}

func titleCase(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func randomType(r *rand.Rand) models.AddonType {
	// Extensions dominate real catalogs, themes next, the rest are rare
	switch n := r.Intn(10); {
	case n < 6:
		return models.AddonTypeExtension
	case n < 8:
		return models.AddonTypeTheme
	case n < 9:
		return models.AddonTypeDictionary
	default:
		return models.AddonTypeOpenSearch
	}
}

func randomAddon(r *rand.Rand, i int) models.Addon {
	slug := randomSlug(r, i)
	name := titleCase(slug)
	version := fmt.Sprintf("%d.%d", r.Intn(4)+1, r.Intn(10))

	compat := models.Compatibility{
		models.ClientAppFirefox: {Min: minVersions[r.Intn(len(minVersions))], Max: "*"},
	}
	addonType := randomType(r)
	// A slice of extensions also support Firefox for Android
	if addonType == models.AddonTypeExtension && r.Intn(5) < 2 {
		compat[models.ClientAppAndroid] = models.VersionRange{Min: "113.0", Max: "*"}
	}

	a := models.Addon{
		Slug:    slug,
		GUID:    slug + "@example.com",
		Name:    name,
		Type:    addonType,
		Summary: summaryPhrases[r.Intn(len(summaryPhrases))],
		IconURL: fmt.Sprintf("https://cdn.example.com/icons/%s.png", slug),
		Active:  true,
		CurrentVersion: &models.AddonVersion{
			Version:       version,
			FileURL:       fmt.Sprintf("https://files.example.com/%s-%s.xpi", slug, version),
			Compatibility: compat,
		},
	}
	if r.Intn(2) == 0 {
		a.HomepageURL = fmt.Sprintf("https://%s.example.org", slug)
	}
	if r.Intn(4) == 0 {
		a.SupportURL = fmt.Sprintf("https://%s.example.org/support", slug)
	}
	if r.Intn(10) == 0 {
		a.PromotedCategory = "recommended"
	}
	// Occasionally pin the range the way legacy listings do
	if r.Intn(8) == 0 {
		fx := compat[models.ClientAppFirefox]
		fx.Max = "102.0"
		compat[models.ClientAppFirefox] = fx
		a.CurrentVersion.IsStrictCompatibilityEnabled = true
	}
	return a
}

var reportMessages = []string{
	"Redirects my search results to a different engine.",
	"Asks for permissions it should not need.",
	"Stopped working after the last browser update.",
	"Injects ads into pages I visit.",
	"",
}

func randomReport(r *rand.Rand) models.AbuseReport {
	slugs := []string{"dark-mode-magic", "tab-session-keeper", "quick-wiki-search"}
	reasons := models.AbuseReasons
	return models.AbuseReport{
		Slug:       slugs[r.Intn(len(slugs))],
		Reason:     reasons[r.Intn(len(reasons))].Code,
		Message:    reportMessages[r.Intn(len(reportMessages))],
		ReporterIP: fmt.Sprintf("203.0.113.%d", r.Intn(255)),
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64; rv:115.0) Gecko/20100101 Firefox/115.0",
		Status:     "pending",
	}
}

func callReloadEndpoint(cfg *config.Config) error {
	reloadURL := fmt.Sprintf("http://localhost:%s/reload", cfg.Port)
	req, err := http.NewRequest("POST", reloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
