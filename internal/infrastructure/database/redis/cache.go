package redis

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/kgeval/internal/domain/scoring"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

// DistanceCache stores triple distances keyed by model id and feature
// fingerprint.  It implements scoring.DistanceCache.
type DistanceCache struct {
	client *Client
	logger logging.Logger
	prefix string
	ttl    time.Duration
	jitter float64
	group  singleflight.Group
}

var _ scoring.DistanceCache = (*DistanceCache)(nil)

// CacheOption configures a DistanceCache.
type CacheOption func(*DistanceCache)

// WithPrefix namespaces keys; a ":" separator is appended.
func WithPrefix(prefix string) CacheOption {
	return func(c *DistanceCache) { c.prefix = prefix + ":" }
}

// WithTTL sets the entry lifetime.  0 keeps entries forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *DistanceCache) { c.ttl = ttl }
}

// WithJitter spreads expiry by ±fraction of the TTL.
func WithJitter(fraction float64) CacheOption {
	return func(c *DistanceCache) { c.jitter = fraction }
}

// NewDistanceCache builds a cache on client.
func NewDistanceCache(client *Client, log logging.Logger, opts ...CacheOption) *DistanceCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &DistanceCache{
		client: client,
		logger: log,
		prefix: "kgeval:",
		ttl:    24 * time.Hour,
		jitter: 0.1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *DistanceCache) fullKey(key string) string {
	return c.prefix + "dist:" + key
}

func (c *DistanceCache) expiry() time.Duration {
	if c.ttl <= 0 || c.jitter <= 0 {
		return c.ttl
	}
	return c.ttl + time.Duration(float64(c.ttl)*c.jitter*(rand.Float64()*2-1))
}

// GetDistance returns the cached distance.  Concurrent lookups of one key
// share a single round trip.
func (c *DistanceCache) GetDistance(ctx context.Context, key string) (float64, bool, error) {
	if c.client.isClosed() {
		return 0, false, ErrClientClosed
	}
	full := c.fullKey(key)
	v, err, _ := c.group.Do(full, func() (interface{}, error) {
		raw, err := c.client.rdb.Get(ctx, full).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to get distance").WithDetail(full)
		}
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "cached distance is not a number").WithDetail(full)
		}
		return d, nil
	})
	if err != nil {
		return 0, false, err
	}
	if v == nil {
		return 0, false, nil
	}
	return v.(float64), true, nil
}

// SetDistance stores d under key.  The value round-trips exactly.
func (c *DistanceCache) SetDistance(ctx context.Context, key string, d float64) error {
	if c.client.isClosed() {
		return ErrClientClosed
	}
	full := c.fullKey(key)
	val := strconv.FormatFloat(d, 'g', -1, 64)
	if err := c.client.rdb.Set(ctx, full, val, c.expiry()).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set distance").WithDetail(full)
	}
	return nil
}

// Purge deletes every distance cached for modelID and returns the count.
func (c *DistanceCache) Purge(ctx context.Context, modelID string) (int64, error) {
	var deleted int64
	var cursor uint64
	match := c.fullKey(modelID) + ":*"
	for {
		keys, next, err := c.client.rdb.Scan(ctx, cursor, match, 500).Result()
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan distances")
		}
		if len(keys) > 0 {
			if err := c.client.rdb.Del(ctx, keys...).Err(); err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete distances")
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info("purged cached distances", logging.String("model", modelID), logging.Int64("keys", deleted))
	return deleted, nil
}
