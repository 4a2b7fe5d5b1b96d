package models

import (
	"strings"
	"time"
)

// AddonType is the canonical add-on category. Catalog rows and API payloads
// arrive with a handful of historical type strings; ParseAddonType folds
// them into this enum.
type AddonType string

const (
	AddonTypeExtension  AddonType = "extension"
	AddonTypeTheme      AddonType = "statictheme"
	AddonTypeDictionary AddonType = "dictionary"
	AddonTypeLangPack   AddonType = "language"
	AddonTypeOpenSearch AddonType = "opensearch"
)

// addonTypeAliases maps every accepted type spelling to its canonical type.
var addonTypeAliases = map[string]AddonType{
	"extension":   AddonTypeExtension,
	"statictheme": AddonTypeTheme,
	"theme":       AddonTypeTheme,
	"persona":     AddonTypeTheme,
	"dictionary":  AddonTypeDictionary,
	"language":    AddonTypeLangPack,
	"langpack":    AddonTypeLangPack,
	"opensearch":  AddonTypeOpenSearch,
	"search":      AddonTypeOpenSearch,
}

// ParseAddonType resolves a raw type string to its canonical AddonType.
// Unknown strings report not-found instead of passing through.
func ParseAddonType(raw string) (AddonType, bool) {
	t, ok := addonTypeAliases[strings.ToLower(strings.TrimSpace(raw))]
	return t, ok
}

// AllAddonTypes lists the canonical add-on types in a stable order.
func AllAddonTypes() []AddonType {
	return []AddonType{
		AddonTypeExtension,
		AddonTypeTheme,
		AddonTypeDictionary,
		AddonTypeLangPack,
		AddonTypeOpenSearch,
	}
}

// VersionRange is the declared supported range of application versions for
// one client application. Min and Max are kept verbatim as version strings;
// "*" is a valid (unbounded) maximum.
type VersionRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// Compatibility maps a client application to the version range the add-on
// declares for it. Owned by the version record and immutable once loaded.
type Compatibility map[ClientApp]VersionRange

// AddonVersion is one released version of an add-on. The catalog keeps the
// full history but the service only ever serves the current version.
type AddonVersion struct {
	ID                           int           `json:"id"`
	Version                      string        `json:"version"`
	Compatibility                Compatibility `json:"compatibility,omitempty"`
	IsStrictCompatibilityEnabled bool          `json:"is_strict_compatibility_enabled"`
	FileURL                      string        `json:"file_url,omitempty"`
	CreatedAt                    time.Time     `json:"created_at,omitempty"`
}

// Addon is one listed add-on. CurrentVersion may be nil for listings that
// have no approved release yet.
type Addon struct {
	ID               int           `json:"id"`
	Slug             string        `json:"slug"`
	GUID             string        `json:"guid"`
	Name             string        `json:"name"`
	Type             AddonType     `json:"type"`
	Summary          string        `json:"summary,omitempty"`
	HomepageURL      string        `json:"homepage_url,omitempty"`
	SupportURL       string        `json:"support_url,omitempty"`
	IconURL          string        `json:"icon_url,omitempty"`
	PromotedCategory string        `json:"promoted_category,omitempty"`
	CurrentVersion   *AddonVersion `json:"current_version"`
	Active           bool          `json:"active"`
	CreatedAt        time.Time     `json:"created_at,omitempty"`
}

// CompatRange returns the declared range for app, with an explicit
// not-found result when the current version declares nothing for it.
func (a *Addon) CompatRange(app ClientApp) (VersionRange, bool) {
	if a == nil || a.CurrentVersion == nil || a.CurrentVersion.Compatibility == nil {
		return VersionRange{}, false
	}
	r, ok := a.CurrentVersion.Compatibility[app]
	return r, ok
}
