package compat

import (
	"testing"

	"github.com/openaddons/addonserve/internal/models"
)

func TestResolveUserAgent(t *testing.T) {
	tests := []struct {
		name        string
		ua          string
		wantBrowser string
		wantVersion string // empty means don't check
		wantOS      string
	}{
		{
			name:        "Firefox on Linux",
			ua:          "Mozilla/5.0 (X11; Linux x86_64; rv:115.0) Gecko/20100101 Firefox/115.0",
			wantBrowser: "Firefox",
			wantVersion: "115.0.0",
			wantOS:      "Linux",
		},
		{
			name:        "Firefox on Windows",
			ua:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/117.0",
			wantBrowser: "Firefox",
			wantVersion: "117.0.0",
			wantOS:      "Windows",
		},
		{
			name:        "Firefox for Android",
			ua:          "Mozilla/5.0 (Android 13; Mobile; rv:109.0) Gecko/115.0 Firefox/115.0",
			wantBrowser: "Firefox",
			wantVersion: "115.0.0",
			wantOS:      "Android",
		},
		{
			name:        "Firefox for iOS",
			ua:          "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) FxiOS/116.0 Mobile/15E148 Safari/605.1.15",
			wantBrowser: "Firefox",
			wantOS:      "iOS",
		},
		{
			name:        "Chrome on Windows",
			ua:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36",
			wantBrowser: "Chrome",
			wantOS:      "Windows",
		},
		{
			name:        "empty user agent",
			ua:          "",
			wantBrowser: "Unknown",
			wantVersion: "0.0.0",
			wantOS:      "Unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveUserAgent(tt.ua)
			if got.Browser.Name != tt.wantBrowser {
				t.Errorf("browser = %q, want %q", got.Browser.Name, tt.wantBrowser)
			}
			if tt.wantVersion != "" && got.Browser.Version != tt.wantVersion {
				t.Errorf("version = %q, want %q", got.Browser.Version, tt.wantVersion)
			}
			if got.OS.Name != tt.wantOS {
				t.Errorf("os = %q, want %q", got.OS.Name, tt.wantOS)
			}
		})
	}
}

func TestInferClientApp(t *testing.T) {
	android := models.UserAgentInfo{
		Browser: models.Browser{Name: models.BrowserFirefox, Version: "115.0.0"},
		OS:      models.OS{Name: models.OSAndroid},
	}
	if got := InferClientApp(android); got != models.ClientAppAndroid {
		t.Errorf("InferClientApp(android) = %q", got)
	}

	desktop := models.UserAgentInfo{
		Browser: models.Browser{Name: models.BrowserFirefox, Version: "115.0.0"},
		OS:      models.OS{Name: "Windows"},
	}
	if got := InferClientApp(desktop); got != models.ClientAppFirefox {
		t.Errorf("InferClientApp(desktop) = %q", got)
	}
}

func TestDefaultSearchDetector(t *testing.T) {
	det := DefaultSearchDetector{}
	tests := []struct {
		os   string
		want bool
	}{
		{"Windows", true},
		{"MacOSX", true},
		{"Linux", true},
		{models.OSAndroid, false},
		{models.OSIOS, false},
	}
	for _, tt := range tests {
		ua := models.UserAgentInfo{OS: models.OS{Name: tt.os}}
		if got := det.CanRegisterSearchProvider(ua); got != tt.want {
			t.Errorf("CanRegisterSearchProvider(os=%s) = %v, want %v", tt.os, got, tt.want)
		}
	}
}
