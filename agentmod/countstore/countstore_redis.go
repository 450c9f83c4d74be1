package countstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisCountPrefix string = "rl/"

// Counter store backed by redis INCR, consistent across instances.
type RedisCountStore struct {
	Client *redis.Client
	Now    func() time.Time
}

var _ CountStore = (*RedisCountStore)(nil)

func NewRedisCountStore(redisURL string) (*RedisCountStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	rcs := RedisCountStore{
		Client: rdb,
		Now:    time.Now,
	}
	return &rcs, nil
}

func (s *RedisCountStore) Increment(ctx context.Context, key string, window time.Duration) (Bucket, error) {
	if err := validWindow(window); err != nil {
		return Bucket{}, err
	}
	bkey, resetAt := windowBucket(key, s.Now(), window)
	rkey := redisCountPrefix + bkey

	// increment and expire in a single round-trip. the bucket key embeds the
	// window index, so refreshing the TTL never extends a window.
	multi := s.Client.TxPipeline()
	incr := multi.Incr(ctx, rkey)
	multi.Expire(ctx, rkey, window)
	if _, err := multi.Exec(ctx); err != nil {
		return Bucket{}, err
	}
	return Bucket{Count: int(incr.Val()), ResetAt: resetAt}, nil
}
