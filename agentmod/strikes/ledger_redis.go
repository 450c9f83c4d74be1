package strikes

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisLedgerPrefix string = "strikes/"

const (
	fieldStrikes = "n"
	fieldUntil   = "until"
)

// keeps the later of the stored and requested expiry (unix millis)
var throttleScript = redis.NewScript(`
local cur = tonumber(redis.call("HGET", KEYS[1], "until") or "0")
local req = tonumber(ARGV[1])
if req > cur then
  redis.call("HSET", KEYS[1], "until", ARGV[1])
end
return 0
`)

var decrScript = redis.NewScript(`
local n = tonumber(redis.call("HGET", KEYS[1], "n") or "0")
if n > 0 then
  redis.call("HINCRBY", KEYS[1], "n", -1)
end
return 0
`)

// Ledger shared by every instance, for horizontally scaled deployments. Each entry is a redis hash
// with no expiry: strikes persist until explicitly reset.
type RedisLedgerStore struct {
	Client *redis.Client
}

var _ LedgerStore = (*RedisLedgerStore)(nil)

func NewRedisLedgerStore(redisURL string) (*RedisLedgerStore, error) {
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
	return &RedisLedgerStore{Client: rdb}, nil
}

func (s *RedisLedgerStore) Incr(ctx context.Context, key string) (int, error) {
	n, err := s.Client.HIncrBy(ctx, redisLedgerPrefix+key, fieldStrikes, 1).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RedisLedgerStore) Decr(ctx context.Context, key string) error {
	return decrScript.Run(ctx, s.Client, []string{redisLedgerPrefix + key}).Err()
}

func (s *RedisLedgerStore) Throttle(ctx context.Context, key string, until time.Time) error {
	return throttleScript.Run(ctx, s.Client, []string{redisLedgerPrefix + key}, until.UnixMilli()).Err()
}

func (s *RedisLedgerStore) Get(ctx context.Context, key string) (Entry, error) {
	vals, err := s.Client.HGetAll(ctx, redisLedgerPrefix+key).Result()
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if v, ok := vals[fieldStrikes]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Entry{}, err
		}
		e.Strikes = n
	}
	if v, ok := vals[fieldUntil]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Entry{}, err
		}
		e.ThrottledUntil = time.UnixMilli(ms)
	}
	return e, nil
}

func (s *RedisLedgerStore) Delete(ctx context.Context, key string) error {
	return s.Client.Del(ctx, redisLedgerPrefix+key).Err()
}
