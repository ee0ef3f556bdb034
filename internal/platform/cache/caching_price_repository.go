// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"marketdata_backend/internal/feature/prices/domain/entity"
	"marketdata_backend/internal/feature/prices/usecase"
)

// CachingPriceRepository decorates a PriceRepository with Redis caching of history reads.
// Watermark lookups always go to the underlying store so staleness decisions never see cached data.
type CachingPriceRepository struct {
	inner     usecase.PriceRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	now       func() time.Time
}

var _ usecase.PriceRepository = (*CachingPriceRepository)(nil)

// NewCachingPriceRepository decorates a PriceRepository with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "prices".
// A nil client disables caching.
func NewCachingPriceRepository(rdb *redis.Client, ttl time.Duration, inner usecase.PriceRepository, namespace string) *CachingPriceRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "prices"
	}
	return &CachingPriceRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		now:       time.Now,
	}
}

// GetWatermark is never cached.
func (c *CachingPriceRepository) GetWatermark(ctx context.Context, symbol string) (time.Time, bool, error) {
	return c.inner.GetWatermark(ctx, symbol)
}

// ListWatermarks is never cached.
func (c *CachingPriceRepository) ListWatermarks(ctx context.Context, symbols []string) (map[string]time.Time, error) {
	return c.inner.ListWatermarks(ctx, symbols)
}

// InsertIfAbsent inserts new price points and invalidates cached reads of the affected symbols.
func (c *CachingPriceRepository) InsertIfAbsent(ctx context.Context, points []entity.PricePoint) (int64, error) {
	n, err := c.inner.InsertIfAbsent(ctx, points)
	if err != nil {
		return n, err
	}
	// Nothing changed, nothing to invalidate
	if c.rdb == nil || n == 0 {
		return n, nil
	}

	seen := map[string]struct{}{}
	for _, p := range points {
		prefix := c.cacheKeyPrefix(p.Symbol)
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		_ = c.deleteByPattern(ctx, prefix+"*") // Best effort: don't fail if cache deletion fails
	}
	return n, nil
}

// FindPricePoints retrieves price points, checking cache first then falling back to the database.
func (c *CachingPriceRepository) FindPricePoints(ctx context.Context, symbol string, limit int, maxDate time.Time) ([]entity.PricePoint, error) {
	if c.rdb == nil {
		return c.inner.FindPricePoints(ctx, symbol, limit, maxDate)
	}

	key := c.cacheKey(symbol, limit, maxDate)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.PricePoint
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to database
	out, err := c.inner.FindPricePoints(ctx, symbol, limit, maxDate)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort). Empty results are not cached so a first sync shows up immediately.
	if len(out) > 0 {
		if b, err := json.Marshal(out); err == nil {
			_ = c.rdb.Set(ctx, key, b, c.expiry()).Err()
		}
	}

	return out, nil
}

// expiry caps the TTL at the next UTC day boundary.
func (c *CachingPriceRepository) expiry() time.Duration {
	if d := TimeUntilNextUTCDay(c.now()); d < c.ttl {
		return d
	}
	return c.ttl
}

// cacheKey generates a cache key for a specific query.
func (c *CachingPriceRepository) cacheKey(symbol string, limit int, maxDate time.Time) string {
	md := "-"
	if !maxDate.IsZero() {
		md = maxDate.UTC().Format(entity.DateLayout)
	}
	return fmt.Sprintf("%s:%s:%d:%s", c.namespace, safe(symbol), limit, md)
}

// cacheKeyPrefix generates a prefix for invalidating related cache entries.
func (c *CachingPriceRepository) cacheKeyPrefix(symbol string) string {
	return fmt.Sprintf("%s:%s:", c.namespace, safe(symbol))
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingPriceRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "*", "_")
	return s
}
