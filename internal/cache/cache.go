package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

const genKey = "availability:gen"

// AvailabilityCache is an optional Redis read-side cache for resolved
// availability ranges. Every schedule write bumps a generation counter, which
// is part of every range key, so stale entries expire on their own instead of
// being deleted one by one.
//
// A nil *AvailabilityCache is valid and caches nothing.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func New(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl, logger: logger}
}

// GetRange returns the cached availability for [from, to] and whether it was
// present. Any Redis error is treated as a miss.
func (c *AvailabilityCache) GetRange(ctx context.Context, from, to time.Time) ([]models.DayAvailability, bool) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return nil, false
	}
	key, err := c.rangeKey(ctx, from, to)
	if err != nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var days []models.DayAvailability
	if err := json.Unmarshal([]byte(val), &days); err != nil {
		return nil, false
	}
	return days, true
}

// PutRange stores the resolved availability for [from, to]. Failures are
// logged and ignored; the cache is best effort.
func (c *AvailabilityCache) PutRange(ctx context.Context, from, to time.Time, days []models.DayAvailability) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return
	}
	key, err := c.rangeKey(ctx, from, to)
	if err != nil {
		return
	}
	data, err := json.Marshal(days)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn().Err(err).Msg("availability cache write failed")
	}
}

// Invalidate drops all cached ranges by bumping the generation counter.
// Called after any settings, template or override write.
func (c *AvailabilityCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, genKey).Err(); err != nil && c.logger != nil {
		c.logger.Warn().Err(err).Msg("availability cache invalidation failed")
	}
}

func (c *AvailabilityCache) rangeKey(ctx context.Context, from, to time.Time) (string, error) {
	gen, err := c.client.Get(ctx, genKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("availability:%d:%s:%s", gen, timeutil.FormatDate(from), timeutil.FormatDate(to)), nil
}
