package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

var redisContextPrefix = "evtctx/"

// Event context cache in redis. Reads go through a small in-process LFU first, so a burst of
// posts to one event costs a single round-trip.
type RedisContextStore struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ ContextStore = (*RedisContextStore)(nil)

func NewRedisContextStore(redisURL string, ttl time.Duration) (*RedisContextStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	// local entries expire quickly, so purges on other instances are picked up soon
	return &RedisContextStore{
		Data: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(10_000, time.Minute),
		}),
		TTL: ttl,
	}, nil
}

func (s *RedisContextStore) GetContext(ctx context.Context, eventID string) (string, error) {
	var text string
	if err := s.Data.Get(ctx, redisContextPrefix+eventID, &text); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return "", nil
		}
		return "", err
	}
	return text, nil
}

func (s *RedisContextStore) SetContext(ctx context.Context, eventID, text string) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisContextPrefix + eventID,
		Value: clampContext(text),
		TTL:   s.TTL,
	})
}

func (s *RedisContextStore) PurgeContext(ctx context.Context, eventID string) error {
	err := s.Data.Delete(ctx, redisContextPrefix+eventID)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
