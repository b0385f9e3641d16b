package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/otp-account-service/internal/security"
)

// Bumps every key in KEYS and returns the longest resulting delay in ms.
var redisAttemptBumpScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local base_ms = tonumber(ARGV[2])
local multiplier = tonumber(ARGV[3])
local max_ms = tonumber(ARGV[4])
local reset_ms = tonumber(ARGV[5])
local free_attempts = tonumber(ARGV[6])

local longest = 0
for _, key in ipairs(KEYS) do
  local fail_count = tonumber(redis.call("HGET", key, "fail_count") or "0")
  local last_ms = tonumber(redis.call("HGET", key, "last_failure_ms") or "0")
  if last_ms == 0 or (now_ms - last_ms) > reset_ms then
    fail_count = 0
  end
  fail_count = fail_count + 1

  local delay = 0
  if fail_count > free_attempts then
    delay = math.floor(base_ms * (multiplier ^ (fail_count - free_attempts - 1)))
  end
  if delay > max_ms then
    delay = max_ms
  end

  redis.call("HSET", key, "fail_count", tostring(fail_count), "last_failure_ms", tostring(now_ms), "cooldown_until_ms", tostring(now_ms + delay))
  redis.call("PEXPIRE", key, reset_ms + delay + 60000)
  if delay > longest then
    longest = delay
  end
end
return longest
`)

type RedisAttemptGuard struct {
	client redis.UniversalClient
	prefix string
	policy AttemptPolicy
	now    func() time.Time
}

func NewRedisAttemptGuard(client redis.UniversalClient, prefix string, policy AttemptPolicy) *RedisAttemptGuard {
	if prefix == "" {
		prefix = "attempts"
	}
	return &RedisAttemptGuard{client: client, prefix: prefix, policy: policy.normalized(), now: time.Now}
}

func (g *RedisAttemptGuard) Cooldown(ctx context.Context, key AttemptKey) (time.Duration, error) {
	keys := g.keys(key)
	pipe := g.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HMGet(ctx, k, "last_failure_ms", "cooldown_until_ms")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, err
	}

	nowMS := g.now().UnixMilli()
	var longest time.Duration
	for _, cmd := range cmds {
		values, err := cmd.Result()
		if err != nil {
			return 0, err
		}
		if len(values) != 2 || values[0] == nil || values[1] == nil {
			continue
		}
		lastMS, err := parseRedisDecimal(values[0])
		if err != nil {
			return 0, err
		}
		untilMS, err := parseRedisDecimal(values[1])
		if err != nil {
			return 0, err
		}
		if nowMS-lastMS > g.policy.ResetWindow.Milliseconds() || untilMS <= nowMS {
			continue
		}
		longest = max(longest, time.Duration(untilMS-nowMS)*time.Millisecond)
	}
	return longest, nil
}

func (g *RedisAttemptGuard) RegisterFailure(ctx context.Context, key AttemptKey) (time.Duration, error) {
	keys := g.keys(key)
	result, err := redisAttemptBumpScript.Run(
		ctx,
		g.client,
		keys[:],
		g.now().UnixMilli(),
		g.policy.BaseDelay.Milliseconds(),
		g.policy.Multiplier,
		g.policy.MaxDelay.Milliseconds(),
		g.policy.ResetWindow.Milliseconds(),
		g.policy.FreeAttempts,
	).Result()
	if err != nil {
		return 0, err
	}
	delayMS, err := parseRedisInt64(result)
	if err != nil {
		return 0, err
	}
	return time.Duration(max(delayMS, 0)) * time.Millisecond, nil
}

func (g *RedisAttemptGuard) Reset(ctx context.Context, key AttemptKey) error {
	return g.client.Del(ctx, g.keys(key)[0]).Err()
}

// Identities are hashed so raw emails never appear in key names.
func (g *RedisAttemptGuard) keys(key AttemptKey) [2]string {
	dims := key.dimensions()
	return [2]string{
		fmt.Sprintf("%s:%s", g.prefix, security.SHA256Hex(dims[0])),
		fmt.Sprintf("%s:%s", g.prefix, security.SHA256Hex(dims[1])),
	}
}

func parseRedisDecimal(v interface{}) (int64, error) {
	switch n := v.(type) {
	case string:
		var out int64
		if _, err := fmt.Sscan(n, &out); err != nil {
			return 0, fmt.Errorf("parse redis decimal %q: %w", n, err)
		}
		return out, nil
	default:
		return parseRedisInt64(v)
	}
}
