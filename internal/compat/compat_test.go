package compat

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/openaddons/addonserve/internal/models"
)

// observedChecker returns a Checker whose log output is captured for
// assertions. The logging behavior around missing ranges and soft
// failures is part of the contract, not incidental.
func observedChecker() (*Checker, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewChecker(zap.New(core)), logs
}

type staticDetector bool

func (d staticDetector) CanRegisterSearchProvider(models.UserAgentInfo) bool { return bool(d) }

func strp(s string) *string { return &s }

func firefoxUA(version, os string) *models.UserAgentInfo {
	return &models.UserAgentInfo{
		Browser: models.Browser{Name: models.BrowserFirefox, Version: version},
		OS:      models.OS{Name: os},
	}
}

func chromeUA(version, os string) *models.UserAgentInfo {
	return &models.UserAgentInfo{
		Browser: models.Browser{Name: "Chrome", Version: version},
		OS:      models.OS{Name: os},
	}
}

// rangeAddon builds an addon of the given type declaring [min, max] for
// Firefox desktop.
func rangeAddon(typ models.AddonType, min, max string, strict bool) *models.Addon {
	a := models.NewTestAddon(1, "tab-tweaker", min, max)
	a.Type = typ
	a.CurrentVersion.IsStrictCompatibilityEnabled = strict
	return a
}

func TestCompatibleVersions(t *testing.T) {
	t.Run("declared range returned verbatim", func(t *testing.T) {
		checker, logs := observedChecker()
		addon := rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false)

		min, max := checker.CompatibleVersions(addon, models.ClientAppFirefox)
		if min == nil || *min != "48.0" {
			t.Errorf("min = %v, want 48.0", min)
		}
		if max == nil || *max != "115.*" {
			t.Errorf("max = %v, want 115.*", max)
		}
		if logs.Len() != 0 {
			t.Errorf("expected no logs, got %d", logs.Len())
		}
	})

	t.Run("no current version is silent", func(t *testing.T) {
		checker, logs := observedChecker()
		addon := rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false)
		addon.CurrentVersion = nil

		min, max := checker.CompatibleVersions(addon, models.ClientAppFirefox)
		if min != nil || max != nil {
			t.Errorf("expected nil bounds, got %v/%v", min, max)
		}
		if logs.Len() != 0 {
			t.Errorf("expected no logs for missing version, got %d", logs.Len())
		}
	})

	t.Run("nil compatibility map is silent", func(t *testing.T) {
		checker, logs := observedChecker()
		addon := rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false)
		addon.CurrentVersion.Compatibility = nil

		min, max := checker.CompatibleVersions(addon, models.ClientAppFirefox)
		if min != nil || max != nil {
			t.Errorf("expected nil bounds, got %v/%v", min, max)
		}
		if logs.Len() != 0 {
			t.Errorf("expected no logs for nil map, got %d", logs.Len())
		}
	})

	t.Run("missing app entry logs an error", func(t *testing.T) {
		checker, logs := observedChecker()
		addon := rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false)

		min, max := checker.CompatibleVersions(addon, models.ClientAppAndroid)
		if min != nil || max != nil {
			t.Errorf("expected nil bounds, got %v/%v", min, max)
		}
		if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
			t.Errorf("expected exactly one error log, got %d", n)
		}
	})

	t.Run("missing app entry for search tool logs info only", func(t *testing.T) {
		checker, logs := observedChecker()
		addon := rangeAddon(models.AddonTypeOpenSearch, "48.0", "115.*", false)

		min, max := checker.CompatibleVersions(addon, models.ClientAppAndroid)
		if min != nil || max != nil {
			t.Errorf("expected nil bounds, got %v/%v", min, max)
		}
		if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
			t.Errorf("expected no error logs for search tool, got %d", n)
		}
		if n := logs.FilterLevelExact(zapcore.InfoLevel).Len(); n != 1 {
			t.Errorf("expected one info log for search tool, got %d", n)
		}
	})
}

func TestIsCompatibleWithUserAgent(t *testing.T) {
	tests := []struct {
		name     string
		addon    *models.Addon
		min, max *string
		ua       *models.UserAgentInfo
		detector SearchProviderDetector
		want     Result
	}{
		{
			name:  "firefox for ios wins over a satisfied range",
			addon: rangeAddon(models.AddonTypeExtension, "48.0", "*", false),
			min:   strp("48.0"), max: strp("*"),
			ua:   firefoxUA("115.0.0", models.OSIOS),
			want: Result{Compatible: false, Reason: ReasonFirefoxForIOS},
		},
		{
			name:  "chrome is not firefox",
			addon: rangeAddon(models.AddonTypeExtension, "48.0", "*", false),
			min:   strp("48.0"), max: strp("*"),
			ua:   chromeUA("116.0.0", "Windows"),
			want: Result{Compatible: false, Reason: ReasonNotFirefox},
		},
		{
			name:  "chrome on ios is still not-firefox",
			addon: rangeAddon(models.AddonTypeExtension, "48.0", "*", false),
			min:   strp("48.0"), max: strp("*"),
			ua:   chromeUA("116.0.0", models.OSIOS),
			want: Result{Compatible: false, Reason: ReasonNotFirefox},
		},
		{
			name:  "inside the declared range",
			addon: rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false),
			min:   strp("48.0"), max: strp("115.*"),
			ua:   firefoxUA("100.0.0", "Windows"),
			want: Result{Compatible: true},
		},
		{
			name:  "over max without strict compatibility still installs",
			addon: rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false),
			min:   strp("48.0"), max: strp("115.*"),
			ua:   firefoxUA("120.0.0", "Windows"),
			want: Result{Compatible: true},
		},
		{
			name:  "over max with strict compatibility is refused",
			addon: rangeAddon(models.AddonTypeExtension, "48.0", "115.*", true),
			min:   strp("48.0"), max: strp("115.*"),
			ua:   firefoxUA("120.0.0", "Windows"),
			want: Result{Compatible: false, Reason: ReasonOverMaxVersion},
		},
		{
			name:  "under min is refused",
			addon: rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false),
			min:   strp("48.0"), max: strp("115.*"),
			ua:   firefoxUA("45.0.0", "Windows"),
			want: Result{Compatible: false, Reason: ReasonUnderMinVersion},
		},
		{
			name:  "under min is refused regardless of strict flag",
			addon: rangeAddon(models.AddonTypeExtension, "48.0", "115.*", true),
			min:   strp("48.0"), max: strp("115.*"),
			ua:   firefoxUA("45.0.0", "Windows"),
			want: Result{Compatible: false, Reason: ReasonUnderMinVersion},
		},
		{
			name:  "wildcard min refuses every release",
			addon: rangeAddon(models.AddonTypeExtension, "*", "*", false),
			min:   strp("*"), max: strp("*"),
			ua:   firefoxUA("120.0.0", "Windows"),
			want: Result{Compatible: false, Reason: ReasonUnderMinVersion},
		},
		{
			name:     "search tool without provider registration",
			addon:    rangeAddon(models.AddonTypeOpenSearch, "48.0", "*", false),
			min:      strp("48.0"),
			max:      strp("*"),
			ua:       firefoxUA("115.0.0", "Windows"),
			detector: staticDetector(false),
			want:     Result{Compatible: false, Reason: ReasonNoOpenSearch},
		},
		{
			name:     "search tool with provider registration",
			addon:    rangeAddon(models.AddonTypeOpenSearch, "48.0", "*", false),
			min:      strp("48.0"),
			max:      strp("*"),
			ua:       firefoxUA("115.0.0", "Windows"),
			detector: staticDetector(true),
			want:     Result{Compatible: true},
		},
		{
			name:  "nil bounds fall through to compatible",
			addon: rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false),
			ua:    firefoxUA("120.0.0", "Windows"),
			want:  Result{Compatible: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, _ := observer.New(zapcore.DebugLevel)
			detector := tt.detector
			if detector == nil {
				detector = DefaultSearchDetector{}
			}
			checker := NewCheckerWithDetector(zap.New(core), detector)

			got, err := checker.IsCompatibleWithUserAgent(tt.addon, tt.min, tt.max, tt.ua)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %+v, want %+v", got, tt.want)
			}
			// A reason is present exactly when the verdict is negative.
			if got.Compatible != (got.Reason == "") {
				t.Errorf("reason %q inconsistent with compatible=%v", got.Reason, got.Compatible)
			}
		})
	}
}

func TestOverMaxSoftFailureLogs(t *testing.T) {
	checker, logs := observedChecker()
	addon := rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false)

	got, err := checker.IsCompatibleWithUserAgent(addon, strp("48.0"), strp("115.*"), firefoxUA("120.0.0", "Windows"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Compatible {
		t.Errorf("expected compatible verdict, got %+v", got)
	}
	if n := logs.FilterMessage("browser version is over the declared maximum").Len(); n != 1 {
		t.Errorf("expected one soft failure log, got %d", n)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Errorf("expected no error logs, got %d", n)
	}
}

func TestWildcardMinLogsError(t *testing.T) {
	checker, logs := observedChecker()
	addon := rangeAddon(models.AddonTypeExtension, "*", "*", false)

	got, err := checker.IsCompatibleWithUserAgent(addon, strp("*"), strp("*"), firefoxUA("120.0.0", "Windows"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Reason != ReasonUnderMinVersion {
		t.Errorf("reason = %q, want %q", got.Reason, ReasonUnderMinVersion)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Errorf("expected one error log for wildcard min, got %d", n)
	}
}

func TestNilUserAgent(t *testing.T) {
	checker, _ := observedChecker()
	addon := rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false)

	got, err := checker.IsCompatibleWithUserAgent(addon, strp("48.0"), strp("115.*"), nil)
	if !errors.Is(err, ErrNoUserAgent) {
		t.Fatalf("err = %v, want ErrNoUserAgent", err)
	}
	if got != (Result{}) {
		t.Errorf("expected zero result on error, got %+v", got)
	}

	if _, err := checker.ClientCompatibility(addon, models.ClientAppFirefox, nil); !errors.Is(err, ErrNoUserAgent) {
		t.Fatalf("ClientCompatibility err = %v, want ErrNoUserAgent", err)
	}
}

func TestClientCompatibility(t *testing.T) {
	t.Run("compatible with populated bounds", func(t *testing.T) {
		checker, _ := observedChecker()
		addon := rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false)

		got, err := checker.ClientCompatibility(addon, models.ClientAppFirefox, firefoxUA("100.0.0", "Windows"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Compatible || got.Reason != "" {
			t.Errorf("verdict = %+v, want compatible", got)
		}
		if got.MinVersion == nil || *got.MinVersion != "48.0" {
			t.Errorf("min = %v, want 48.0", got.MinVersion)
		}
		if got.MaxVersion == nil || *got.MaxVersion != "115.*" {
			t.Errorf("max = %v, want 115.*", got.MaxVersion)
		}
	})

	t.Run("incompatible keeps the declared bounds", func(t *testing.T) {
		checker, _ := observedChecker()
		addon := rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false)

		got, err := checker.ClientCompatibility(addon, models.ClientAppFirefox, firefoxUA("45.0.0", "Windows"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Compatible || got.Reason != ReasonUnderMinVersion {
			t.Errorf("verdict = %+v, want under-min refusal", got)
		}
		if got.MinVersion == nil || got.MaxVersion == nil {
			t.Errorf("bounds should stay populated, got %v/%v", got.MinVersion, got.MaxVersion)
		}
	})

	t.Run("missing range decides with nil bounds", func(t *testing.T) {
		checker, _ := observedChecker()
		addon := rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false)
		addon.CurrentVersion = nil

		got, err := checker.ClientCompatibility(addon, models.ClientAppFirefox, firefoxUA("100.0.0", "Windows"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Compatible {
			t.Errorf("expected compatible with no declared range, got %+v", got)
		}
		if got.MinVersion != nil || got.MaxVersion != nil {
			t.Errorf("expected nil bounds, got %v/%v", got.MinVersion, got.MaxVersion)
		}
	})
}

func TestClientCompatibilityTrace(t *testing.T) {
	checker, _ := observedChecker()
	addon := rangeAddon(models.AddonTypeExtension, "48.0", "115.*", false)
	tr := &DecisionTrace{}

	got, err := checker.ClientCompatibilityWithTrace(addon, models.ClientAppFirefox, firefoxUA("120.0.0", "Windows"), tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Compatible {
		t.Fatalf("expected soft over-max to stay compatible, got %+v", got)
	}

	wantSteps := []struct {
		stage   string
		outcome string
	}{
		{"declared_range", "found"},
		{"firefox_ios", "pass"},
		{"browser_family", "pass"},
		{"over_max", "soft_fail"},
		{"under_min", "pass"},
		{"opensearch", "pass"},
		{"verdict", "compatible"},
	}
	if len(tr.Steps) != len(wantSteps) {
		t.Fatalf("trace has %d steps, want %d: %+v", len(tr.Steps), len(wantSteps), tr.Steps)
	}
	for i, want := range wantSteps {
		if tr.Steps[i].Stage != want.stage || tr.Steps[i].Outcome != want.outcome {
			t.Errorf("step %d = %s/%s, want %s/%s", i, tr.Steps[i].Stage, tr.Steps[i].Outcome, want.stage, want.outcome)
		}
	}

	soft := tr.Steps[3]
	if soft.Details["browser_version"] != "120.0.0" || soft.Details["max_version"] != "115.*" {
		t.Errorf("soft failure details = %v", soft.Details)
	}
}
