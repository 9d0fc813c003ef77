package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"picturecoupon/internal/pictures"
)

// HistoryCache reads user metadata through Redis. Writes go to the backing
// store first and then drop the cached copy. Redis errors never fail a call.
type HistoryCache struct {
	next   pictures.MetaStore
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewHistoryCache(next pictures.MetaStore, client *redis.Client, ttl time.Duration, log zerolog.Logger) *HistoryCache {
	return &HistoryCache{
		next:   next,
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func (c *HistoryCache) Load(ctx context.Context, userID int64, key string) ([]int64, error) {
	cacheKey := metaCacheKey(userID, key)

	raw, err := c.client.Get(ctx, cacheKey).Bytes()
	switch {
	case err == nil:
		var ids []int64
		if err := json.Unmarshal(raw, &ids); err == nil {
			return ids, nil
		}
		c.log.Warn().Str("key", cacheKey).Msg("dropping undecodable cache entry")
		_ = c.client.Del(ctx, cacheKey).Err()
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", cacheKey).Msg("history cache read failed")
	}

	ids, err := c.next.Load(ctx, userID, key)
	if err != nil {
		return nil, err
	}

	if ids == nil {
		ids = []int64{}
	}
	if payload, err := json.Marshal(ids); err == nil {
		if err := c.client.Set(ctx, cacheKey, payload, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("key", cacheKey).Msg("history cache write failed")
		}
	}

	return ids, nil
}

func (c *HistoryCache) Store(ctx context.Context, userID int64, key string, ids []int64) error {
	if err := c.next.Store(ctx, userID, key, ids); err != nil {
		return err
	}

	cacheKey := metaCacheKey(userID, key)
	if err := c.client.Del(ctx, cacheKey).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", cacheKey).Msg("history cache invalidation failed")
	}
	return nil
}

func metaCacheKey(userID int64, key string) string {
	return fmt.Sprintf("meta:%d:%s", userID, key)
}
