package models

// Canonical identity names produced by user agent resolution and matched by
// the compatibility rules.
const (
	BrowserFirefox = "Firefox"
	OSIOS          = "iOS"
	OSAndroid      = "Android"
)

// Browser is the parsed browser identity of a checking client.
type Browser struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// OS is the parsed operating system identity of a checking client.
type OS struct {
	Name string `json:"name"`
}

// UserAgentInfo holds what the compatibility rules need to know about the
// requesting client. It is parsed once per request from the raw User-Agent
// string and treated as an immutable value for the whole decision.
type UserAgentInfo struct {
	Browser Browser `json:"browser"`
	OS      OS      `json:"os"`
}
