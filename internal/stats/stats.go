// Package stats records and aggregates the per-addon counters the service
// keeps in Redis: daily compatibility verdicts and install clicks. Counters
// are best-effort; callers log recording failures and never block a response
// on them.
package stats

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openaddons/addonserve/internal/compat"
	"github.com/openaddons/addonserve/internal/db"
)

// ErrNilRedisStore is returned when a RedisStore pointer is nil or uninitialized.
var ErrNilRedisStore = errors.New("redis store is nil")

const (
	// VerdictCompatible is the counter label used when no refusal reason applies.
	VerdictCompatible = "compatible"

	// DefaultWindowDays is the stats window used when the caller names none.
	DefaultWindowDays = 30

	// MaxWindowDays caps the stats window a caller may request.
	MaxWindowDays = 90
)

// Verdict returns the counter label for a decision result.
func Verdict(res compat.Result) string {
	if res.Compatible {
		return VerdictCompatible
	}
	return strings.ToLower(string(res.Reason))
}

// Verdicts lists every counter label a decision can produce.
func Verdicts() []string {
	return []string{
		VerdictCompatible,
		strings.ToLower(string(compat.ReasonFirefoxForIOS)),
		strings.ToLower(string(compat.ReasonNotFirefox)),
		strings.ToLower(string(compat.ReasonOverMaxVersion)),
		strings.ToLower(string(compat.ReasonUnderMinVersion)),
		strings.ToLower(string(compat.ReasonNoOpenSearch)),
	}
}

// Service records decision and install counters and aggregates them into
// per-addon views.
type Service struct {
	store *db.RedisStore
	ttl   time.Duration
}

// New returns a Service writing counters with the given daily-key TTL.
func New(store *db.RedisStore, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl}
}

// RecordDecision bumps today's counter for (slug, verdict).
func (s *Service) RecordDecision(slug string, res compat.Result) error {
	if s == nil || s.store == nil || s.store.Client == nil {
		return ErrNilRedisStore
	}
	return s.store.IncrementDecision(slug, Verdict(res), s.ttl)
}

// RecordInstall bumps today's and the all-time install counters for slug.
func (s *Service) RecordInstall(slug string) error {
	if s == nil || s.store == nil || s.store.Client == nil {
		return ErrNilRedisStore
	}
	return s.store.IncrementInstall(slug, s.ttl)
}

// DailyCount is one day's install count.
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// AddonStats is the aggregated counter view for one addon. DailyInstalls is
// ordered most recent day first.
type AddonStats struct {
	Slug          string           `json:"slug"`
	WindowDays    int              `json:"window_days"`
	TotalInstalls int64            `json:"total_installs"`
	Decisions     map[string]int64 `json:"decisions"`
	DailyInstalls []DailyCount     `json:"daily_installs"`
}

// AddonStats sums the last windowDays of counters for slug. Missing keys
// count as zero; the window is clamped to [1, MaxWindowDays].
func (s *Service) AddonStats(slug string, windowDays int) (AddonStats, error) {
	if s == nil || s.store == nil || s.store.Client == nil {
		return AddonStats{}, ErrNilRedisStore
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if windowDays > MaxWindowDays {
		windowDays = MaxWindowDays
	}

	now := time.Now()
	days := make([]time.Time, windowDays)
	for i := range days {
		days[i] = now.AddDate(0, 0, -i)
	}
	verdicts := Verdicts()

	// Batch every counter read into one round trip.
	pipe := s.store.Client.Pipeline()
	decisionCmds := make(map[string][]*redis.StringCmd, len(verdicts))
	for _, v := range verdicts {
		cmds := make([]*redis.StringCmd, len(days))
		for i, day := range days {
			cmds[i] = pipe.Get(s.store.Ctx, db.DecisionKey(slug, v, day))
		}
		decisionCmds[v] = cmds
	}
	installCmds := make([]*redis.StringCmd, len(days))
	for i, day := range days {
		installCmds[i] = pipe.Get(s.store.Ctx, db.InstallKey(slug, day))
	}
	totalCmd := pipe.Get(s.store.Ctx, db.InstallTotalKey(slug))

	if _, err := pipe.Exec(s.store.Ctx); err != nil && err != redis.Nil {
		return AddonStats{}, fmt.Errorf("pipeline exec failed: %w", err)
	}

	out := AddonStats{
		Slug:       slug,
		WindowDays: windowDays,
		Decisions:  make(map[string]int64, len(verdicts)),
	}
	for _, v := range verdicts {
		var sum int64
		for _, cmd := range decisionCmds[v] {
			n, err := cmd.Int64()
			if err != nil {
				continue // missing day counts as zero
			}
			sum += n
		}
		out.Decisions[v] = sum
	}
	out.DailyInstalls = make([]DailyCount, len(days))
	for i, cmd := range installCmds {
		n, _ := cmd.Int64()
		out.DailyInstalls[i] = DailyCount{Date: days[i].Format("2006-01-02"), Count: n}
	}
	if n, err := totalCmd.Int64(); err == nil {
		out.TotalInstalls = n
	}
	return out, nil
}
