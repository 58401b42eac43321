package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultCachePrefix = "memeetf:mcap:"

// CachedSource caches market caps in redis. Redis failures degrade to the
// underlying source.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.SugaredLogger
}

// NewCachedSource wraps next with a redis cache.
func NewCachedSource(next Source, client *redis.Client, ttl time.Duration, prefix string, log *zap.SugaredLogger) *CachedSource {
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CachedSource{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: prefix,
		log:    log.With("component", "marketdata"),
	}
}

// MarketCap implements Source.
func (c *CachedSource) MarketCap(ctx context.Context, mint string) (decimal.Decimal, error) {
	key := c.prefix + mint

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if v, perr := decimal.NewFromString(cached); perr == nil {
			return v, nil
		}
		c.log.Warnw("discarding malformed cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.log.Warnw("cache read failed", "key", key, "error", err)
	}

	v, err := c.next.MarketCap(ctx, mint)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.client.Set(ctx, key, v.String(), c.ttl).Err(); err != nil {
		c.log.Warnw("cache write failed", "key", key, "error", err)
	}
	return v, nil
}
