package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// DecisionKey is the daily counter key for one (slug, verdict) pair.
func DecisionKey(slug, verdict string, day time.Time) string {
	return fmt.Sprintf("compat:%s:%s:%s", slug, strings.ToLower(verdict), day.Format("2006-01-02"))
}

// InstallKey is the daily install counter key for a slug.
func InstallKey(slug string, day time.Time) string {
	return fmt.Sprintf("installs:addon:%s:%s", slug, day.Format("2006-01-02"))
}

// InstallTotalKey is the all-time install counter key for a slug.
func InstallTotalKey(slug string) string {
	return fmt.Sprintf("installs:addon:%s:total", slug)
}

// IncrementDecision increments today's counter for (slug, verdict).
// The ttl is applied on first set so stale slugs age out.
func (r *RedisStore) IncrementDecision(slug, verdict string, ttl time.Duration) error {
	key := DecisionKey(slug, verdict, time.Now())
	val, err := r.Client.Incr(r.Ctx, key).Result()
	if err != nil {
		return err
	}
	if val == 1 {
		r.Client.Expire(r.Ctx, key, ttl)
	}
	return nil
}

// IncrementInstall increments today's install counter and the all-time total
// for a slug. The ttl is applied to the daily key on first set.
func (r *RedisStore) IncrementInstall(slug string, ttl time.Duration) error {
	key := InstallKey(slug, time.Now())
	val, err := r.Client.Incr(r.Ctx, key).Result()
	if err != nil {
		return err
	}
	if val == 1 {
		r.Client.Expire(r.Ctx, key, ttl)
	}
	_, err = r.Client.Incr(r.Ctx, InstallTotalKey(slug)).Result()
	return err
}

// GetInstallCounts returns the all-time and today's install counts for a slug.
func (r *RedisStore) GetInstallCounts(slug string) (int64, int64) {
	total, _ := r.Client.Get(r.Ctx, InstallTotalKey(slug)).Int64()
	today, _ := r.Client.Get(r.Ctx, InstallKey(slug, time.Now())).Int64()
	return total, today
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
