// Package compat decides whether an add-on can be installed by the client
// asking about it.
//
// Two collaborating pieces form the engine: CompatibleVersions reads the
// declared version range off the add-on record for one client application,
// and IsCompatibleWithUserAgent applies a fixed rule sequence to that range
// plus the parsed user agent. ClientCompatibility composes the two. Every
// call is a pure computation over its arguments; logging is the only side
// effect, so a single Checker is safe to share across any number of request
// goroutines.
package compat

import (
	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/models"
	"github.com/openaddons/addonserve/internal/vercmp"
)

// Reason says why a client cannot install an add-on. Empty means it can.
type Reason string

const (
	ReasonFirefoxForIOS   Reason = "FIREFOX_FOR_IOS"
	ReasonNotFirefox      Reason = "NOT_FIREFOX"
	ReasonOverMaxVersion  Reason = "OVER_MAX_VERSION"
	ReasonUnderMinVersion Reason = "UNDER_MIN_VERSION"
	ReasonNoOpenSearch    Reason = "NO_OPENSEARCH"
)

// Result is the verdict of the decider. Reason is non-empty exactly when
// Compatible is false.
type Result struct {
	Compatible bool
	Reason     Reason
}

// ClientCompatibility is the combined verdict handed to callers: the
// decision plus the range it was decided against. The bounds are nil when
// the add-on declares nothing for the client application.
type ClientCompatibility struct {
	Compatible bool
	MinVersion *string
	MaxVersion *string
	Reason     Reason
}

// Checker applies the compatibility rules. Construct with NewChecker; the
// logger and the search capability probe are injected so tests can observe
// the logging contract and force capability outcomes.
type Checker struct {
	log    *zap.Logger
	search SearchProviderDetector
}

// NewChecker builds a Checker with the default search provider detection.
func NewChecker(logger *zap.Logger) *Checker {
	return NewCheckerWithDetector(logger, DefaultSearchDetector{})
}

// NewCheckerWithDetector builds a Checker with an explicit capability
// probe. Nil arguments fall back to the process logger and the default
// detector.
func NewCheckerWithDetector(logger *zap.Logger, detector SearchProviderDetector) *Checker {
	if logger == nil {
		logger = zap.L()
	}
	if detector == nil {
		detector = DefaultSearchDetector{}
	}
	return &Checker{log: logger, search: detector}
}

// CompatibleVersions reads the declared range for app off the add-on's
// current version. Both bounds are nil when nothing is declared; absence is
// represented as nil, never as an error. A missing entry is expected for
// search tools (logged at info) and a catalog defect for everything else
// (logged as an error), but the result is the same either way.
func (c *Checker) CompatibleVersions(addon *models.Addon, app models.ClientApp) (minVersion, maxVersion *string) {
	if addon == nil || addon.CurrentVersion == nil || addon.CurrentVersion.Compatibility == nil {
		return nil, nil
	}
	if r, ok := addon.CurrentVersion.Compatibility[app]; ok {
		return &r.Min, &r.Max
	}
	if addon.Type == models.AddonTypeOpenSearch {
		c.log.Info("search tool declares no compatibility, as expected",
			zap.String("slug", addon.Slug),
			zap.String("app", string(app)))
		return nil, nil
	}
	c.log.Error("addon declares no compatibility for client app",
		zap.String("slug", addon.Slug),
		zap.String("guid", addon.GUID),
		zap.String("type", string(addon.Type)),
		zap.String("app", string(app)))
	return nil, nil
}

// IsCompatibleWithUserAgent applies the rule sequence to an extracted
// range. The only possible error is ErrNoUserAgent for a nil ua, which
// signals caller misuse; every data condition, however malformed, produces
// a verdict instead.
func (c *Checker) IsCompatibleWithUserAgent(addon *models.Addon, minVersion, maxVersion *string, ua *models.UserAgentInfo) (Result, error) {
	return c.decide(addon, minVersion, maxVersion, ua, nil)
}

// ClientCompatibility answers whether addon is installable by the client
// described by ua when running app. Pure composition of CompatibleVersions
// and IsCompatibleWithUserAgent; it adds no logic of its own.
func (c *Checker) ClientCompatibility(addon *models.Addon, app models.ClientApp, ua *models.UserAgentInfo) (ClientCompatibility, error) {
	return c.ClientCompatibilityWithTrace(addon, app, ua, nil)
}

// ClientCompatibilityWithTrace is ClientCompatibility with the rule walk
// recorded into tr for debug responses. A nil tr skips all recording.
func (c *Checker) ClientCompatibilityWithTrace(addon *models.Addon, app models.ClientApp, ua *models.UserAgentInfo, tr *DecisionTrace) (ClientCompatibility, error) {
	minVersion, maxVersion := c.CompatibleVersions(addon, app)
	if tr != nil {
		details := make(map[string]string)
		outcome := "none"
		if minVersion != nil {
			details["min"] = *minVersion
			outcome = "found"
		}
		if maxVersion != nil {
			details["max"] = *maxVersion
			outcome = "found"
		}
		tr.AddWithDetails("declared_range", outcome, details)
	}

	res, err := c.decide(addon, minVersion, maxVersion, ua, tr)
	if err != nil {
		return ClientCompatibility{}, err
	}
	return ClientCompatibility{
		Compatible: res.Compatible,
		MinVersion: minVersion,
		MaxVersion: maxVersion,
		Reason:     res.Reason,
	}, nil
}

// decide walks the rule sequence; first matching rule wins.
func (c *Checker) decide(addon *models.Addon, minVersion, maxVersion *string, ua *models.UserAgentInfo, tr *DecisionTrace) (Result, error) {
	if ua == nil {
		return Result{}, ErrNoUserAgent
	}
	browser, os := ua.Browser, ua.OS

	// Firefox for iOS ships without add-on support, whatever the declared
	// range says.
	if browser.Name == models.BrowserFirefox && os.Name == models.OSIOS {
		tr.Add("firefox_ios", "incompatible")
		return Result{Reason: ReasonFirefoxForIOS}, nil
	}
	tr.Add("firefox_ios", "pass")

	if browser.Name != models.BrowserFirefox {
		tr.Add("browser_family", "incompatible")
		return Result{Reason: ReasonNotFirefox}, nil
	}
	tr.Add("browser_family", "pass")

	if maxVersion != nil && vercmp.Compare(browser.Version, *maxVersion) == 1 {
		if addon != nil && addon.CurrentVersion != nil && addon.CurrentVersion.IsStrictCompatibilityEnabled {
			tr.Add("over_max", "incompatible")
			return Result{Reason: ReasonOverMaxVersion}, nil
		}
		// Exceeding the maximum is only a hard failure under strict
		// compatibility. Without the flag it is logged and evaluation
		// continues with the remaining rules.
		c.log.Info("browser version is over the declared maximum",
			zap.String("browser_version", browser.Version),
			zap.String("max_version", *maxVersion))
		tr.AddWithDetails("over_max", "soft_fail", map[string]string{
			"browser_version": browser.Version,
			"max_version":     *maxVersion,
		})
	} else {
		tr.Add("over_max", "pass")
	}

	if minVersion != nil && vercmp.Compare(browser.Version, *minVersion) == -1 {
		if *minVersion == "*" {
			c.log.Error("minVersion of \"*\" reached the decider, bad catalog data",
				zap.String("browser_version", browser.Version))
		}
		tr.AddWithDetails("under_min", "incompatible", map[string]string{
			"browser_version": browser.Version,
			"min_version":     *minVersion,
		})
		return Result{Reason: ReasonUnderMinVersion}, nil
	}
	tr.Add("under_min", "pass")

	if addon != nil && addon.Type == models.AddonTypeOpenSearch && !c.search.CanRegisterSearchProvider(*ua) {
		tr.Add("opensearch", "incompatible")
		return Result{Reason: ReasonNoOpenSearch}, nil
	}
	tr.Add("opensearch", "pass")

	tr.Add("verdict", "compatible")
	return Result{Compatible: true}, nil
}
