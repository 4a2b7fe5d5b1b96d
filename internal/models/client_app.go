package models

import "strings"

// ClientApp identifies the application family a compatibility decision is
// made for. Compatibility maps are keyed by it.
type ClientApp string

const (
	ClientAppFirefox ClientApp = "firefox"
	ClientAppAndroid ClientApp = "android"
)

// ParseClientApp resolves a raw client application string with an explicit
// not-found result for anything outside the supported set.
func ParseClientApp(raw string) (ClientApp, bool) {
	switch app := ClientApp(strings.ToLower(strings.TrimSpace(raw))); app {
	case ClientAppFirefox, ClientAppAndroid:
		return app, true
	}
	return "", false
}

// AllClientApps lists the supported client applications in a stable order.
func AllClientApps() []ClientApp {
	return []ClientApp{ClientAppFirefox, ClientAppAndroid}
}
