package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"
)

// VersionInfo is the build info served when no version file is present.
type VersionInfo struct {
	Source  string `json:"source"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Build   string `json:"build"`
}

// VersionHandler serves build information for deployment checks. The deploy
// pipeline writes a version file into the image root; when it is missing or
// malformed the response falls back to environment-derived values.
func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "version"
	const method = "GET"

	if raw, err := os.ReadFile(s.Config.VersionFile); err == nil && json.Valid(raw) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
		s.Metrics.IncrementRequests(endpoint, method, "200")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}

	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	info := VersionInfo{
		Source:  "https://github.com/openaddons/addonserve",
		Version: version,
		Commit:  os.Getenv("COMMIT"),
		Build:   os.Getenv("BUILD_URL"),
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, info)
}
