package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// HealthResponse summarizes the service's backing store health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler responds with a per-dependency ping summary. Stores that are
// not configured report as skipped instead of degrading the check, so a
// test or partial deployment still counts as healthy.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{
		"postgres":   "skipped",
		"redis":      "skipped",
		"clickhouse": "skipped",
	}
	healthy := true

	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			checks["postgres"] = "error"
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if s.Store != nil && s.Store.Client != nil {
		if err := s.Store.Client.Ping(ctx).Err(); err != nil {
			checks["redis"] = "error"
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}
	if s.ClickHouseDB != nil {
		if err := s.ClickHouseDB.PingContext(ctx); err != nil {
			checks["clickhouse"] = "error"
			healthy = false
		} else {
			checks["clickhouse"] = "ok"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
		s.Logger.Warn("health check degraded", zap.Any("checks", checks))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: status, Checks: checks})

	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(code))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
