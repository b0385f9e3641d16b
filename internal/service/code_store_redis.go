package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCompareAndDeleteScript deletes KEYS[1] only while it still holds
// ARGV[1]. It backs OTP consumption and the purge lock release.
var redisCompareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCodeStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCodeStore(client redis.UniversalClient, prefix string) *RedisCodeStore {
	return &RedisCodeStore{client: client, prefix: prefix}
}

func (s *RedisCodeStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), value, ttl).Result()
}

func (s *RedisCodeStore) ForceSet(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *RedisCodeStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisCodeStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisCodeStore) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	result, err := redisCompareAndDeleteScript.Run(ctx, s.client, []string{s.key(key)}, value).Result()
	if err != nil {
		return false, err
	}
	n, err := parseRedisInt64(result)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisCodeStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.client.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, false, err
	}
	// -2 missing, -1 no expiry
	switch {
	case d == -2 || d == -2*time.Millisecond:
		return 0, false, nil
	case d < 0:
		return 0, true, nil
	default:
		return d, true, nil
	}
}

func (s *RedisCodeStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func parseRedisInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis response overflows int64")
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
