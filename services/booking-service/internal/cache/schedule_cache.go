package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/servicebay/servicebay/services/booking-service/internal/metrics"
	"github.com/servicebay/servicebay/services/booking-service/internal/schedule"
)

// WeekStore is the authoritative working-hours store behind the cache.
type WeekStore interface {
	WorkingHours(ctx context.Context, providerID string) (schedule.Week, error)
	ReplaceWeek(ctx context.Context, providerID string, week schedule.Week) error
}

// ScheduleCache is a read-through redis cache of weekly working hours. Redis errors
// degrade to reading the store directly; they never fail a lookup on their own.
type ScheduleCache struct {
	rdb     redis.Cmdable
	store   WeekStore
	ttl     time.Duration
	prefix  string
	logger  *slog.Logger
	metrics *metrics.BookingMetrics
}

func NewScheduleCache(rdb redis.Cmdable, store WeekStore, ttl time.Duration, logger *slog.Logger, m *metrics.BookingMetrics) *ScheduleCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleCache{rdb: rdb, store: store, ttl: ttl, prefix: "working_hours", logger: logger, metrics: m}
}

func (c *ScheduleCache) key(providerID string) string {
	return c.prefix + ":" + providerID
}

func (c *ScheduleCache) WorkingHours(ctx context.Context, providerID string) (schedule.Week, error) {
	raw, err := c.rdb.Get(ctx, c.key(providerID)).Bytes()
	switch {
	case err == nil:
		var days []schedule.Day
		if jerr := json.Unmarshal(raw, &days); jerr == nil {
			c.metrics.ObserveScheduleCache("hit")
			return schedule.NewWeek(days...), nil
		}
		c.logger.Warn("discarding unreadable cached working hours", "provider_id", providerID)
	case errors.Is(err, redis.Nil):
		c.metrics.ObserveScheduleCache("miss")
	default:
		c.metrics.ObserveScheduleCache("error")
		c.logger.Warn("schedule cache read failed", "provider_id", providerID, "err", err)
	}

	week, err := c.store.WorkingHours(ctx, providerID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, providerID, week)
	return week, nil
}

// ReplaceWeek writes through to the store and drops the cached copy.
func (c *ScheduleCache) ReplaceWeek(ctx context.Context, providerID string, week schedule.Week) error {
	if err := c.store.ReplaceWeek(ctx, providerID, week); err != nil {
		return err
	}
	c.Invalidate(ctx, providerID)
	return nil
}

func (c *ScheduleCache) Invalidate(ctx context.Context, providerID string) {
	if err := c.rdb.Del(ctx, c.key(providerID)).Err(); err != nil {
		c.logger.Warn("schedule cache invalidation failed", "provider_id", providerID, "err", err)
	}
}

func (c *ScheduleCache) fill(ctx context.Context, providerID string, week schedule.Week) {
	body, err := json.Marshal(week.Days())
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(providerID), body, c.ttl).Err(); err != nil {
		c.logger.Warn("schedule cache write failed", "provider_id", providerID, "err", err)
	}
}

// ReadyCheck pings redis for /readyz.
func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
