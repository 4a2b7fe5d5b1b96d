package compat

import (
	"fmt"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/openaddons/addonserve/internal/models"
)

// ResolveUserAgent parses a raw User-Agent string into the identity the
// compatibility rules match against, using the uasurfer library. Names are
// normalized to the canonical forms in models ("Firefox", "iOS", ...);
// anything uasurfer cannot place comes back as "Unknown", which the rules
// treat like any other non-Firefox browser. Firefox for iOS (FxiOS tokens)
// resolves to browser Firefox on OS iOS.
func ResolveUserAgent(uaString string) models.UserAgentInfo {
	u := uasurfer.Parse(uaString)

	bv := u.Browser.Version
	return models.UserAgentInfo{
		Browser: models.Browser{
			Name:    strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
			Version: fmt.Sprintf("%d.%d.%d", bv.Major, bv.Minor, bv.Patch),
		},
		OS: models.OS{
			Name: strings.TrimPrefix(u.OS.Name.String(), "OS"),
		},
	}
}

// InferClientApp picks the client application to evaluate when the caller
// does not name one: Android clients map to the android app, everything
// else to desktop firefox.
func InferClientApp(ua models.UserAgentInfo) models.ClientApp {
	if ua.OS.Name == models.OSAndroid {
		return models.ClientAppAndroid
	}
	return models.ClientAppFirefox
}

// SearchProviderDetector reports whether the requesting client can register
// an external search provider. The decider consults it only for search-tool
// add-ons; it stands in for the window.external capability probe a browser
// would run locally.
type SearchProviderDetector interface {
	CanRegisterSearchProvider(ua models.UserAgentInfo) bool
}

// DefaultSearchDetector derives the capability from the parsed identity:
// desktop Firefox exposes the registration hook, the mobile builds do not.
type DefaultSearchDetector struct{}

// CanRegisterSearchProvider implements SearchProviderDetector.
func (DefaultSearchDetector) CanRegisterSearchProvider(ua models.UserAgentInfo) bool {
	return ua.OS.Name != models.OSAndroid && ua.OS.Name != models.OSIOS
}
