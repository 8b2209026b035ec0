package lockout

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "vlo:"

// Hash fields: c = count, f = first attempt (unix ms), u = lockout until
// (unix ms, 0 when not locked). Times come from ARGV so the caller's clock
// is authoritative.
const loadScript = `
local c = tonumber(redis.call("HGET", KEYS[1], "c") or "0")
if c == 0 then
  return {0, 0, 0}
end
local f = tonumber(redis.call("HGET", KEYS[1], "f") or "0")
local u = tonumber(redis.call("HGET", KEYS[1], "u") or "0")
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if (u > 0 and now >= u) or (u == 0 and now - f >= window) then
  redis.call("DEL", KEYS[1])
  return {0, 0, 0}
end
return {c, f, u}
`

const recordFailureScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local duration = tonumber(ARGV[4])
local c = tonumber(redis.call("HGET", KEYS[1], "c") or "0")
local f = tonumber(redis.call("HGET", KEYS[1], "f") or "0")
local u = tonumber(redis.call("HGET", KEYS[1], "u") or "0")
if c > 0 and ((u > 0 and now >= u) or (u == 0 and now - f >= window)) then
  c = 0
  u = 0
end
if u > 0 then
  return {c, f, u}
end
if c == 0 then
  c = 1
  f = now
else
  c = c + 1
end
local expireAt = f + window
if c >= max then
  c = max
  u = now + duration
  expireAt = u
end
redis.call("HSET", KEYS[1], "c", c, "f", f, "u", u)
local ttl = expireAt - now
if ttl < 1 then
  ttl = 1
end
redis.call("PEXPIRE", KEYS[1], ttl)
return {c, f, u}
`

var (
	loadLua          = redis.NewScript(loadScript)
	recordFailureLua = redis.NewScript(recordFailureScript)
)

// RedisStore shares lockout state between processes through Redis.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. An empty prefix selects "vlo:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, key string, now time.Time, cfg Config) (State, error) {
	res, err := loadLua.Run(ctx, r.redis, []string{r.key(key)},
		now.UnixMilli(),
		cfg.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return State{}, err
	}
	return stateFromScript(res)
}

// RecordFailure implements Store.
func (r *RedisStore) RecordFailure(ctx context.Context, key string, now time.Time, cfg Config) (State, error) {
	res, err := recordFailureLua.Run(ctx, r.redis, []string{r.key(key)},
		now.UnixMilli(),
		cfg.Window.Milliseconds(),
		cfg.MaxAttempts,
		cfg.LockoutDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return State{}, err
	}
	return stateFromScript(res)
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.redis.Del(ctx, r.key(key)).Err()
}

func stateFromScript(res []int64) (State, error) {
	if len(res) != 3 {
		return State{}, fmt.Errorf("unexpected lockout script reply length %d", len(res))
	}
	if res[0] == 0 {
		return State{}, nil
	}

	s := State{
		Count:          int(res[0]),
		FirstAttemptAt: time.UnixMilli(res[1]),
	}
	if res[2] > 0 {
		s.LockoutUntil = time.UnixMilli(res[2])
	}
	return s, nil
}
