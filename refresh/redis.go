package refresh

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix    = "vrt:"
	defaultRedisRetention = 24 * time.Hour
)

// Record hash fields: u user, i issued (unix ns), e expires (unix ns),
// c consumed (unix ns, "" while live), s successor jti.

const putScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 3
end
redis.call("HSET", KEYS[1], "u", ARGV[2], "i", ARGV[3], "e", ARGV[4], "c", "", "s", "")
local ttl = tonumber(ARGV[5])
redis.call("PEXPIRE", KEYS[1], ttl)
redis.call("SADD", KEYS[2], ARGV[1])
if redis.call("PTTL", KEYS[2]) < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

const consumeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "c") ~= "" then
  return 2
end
redis.call("HSET", KEYS[1], "c", ARGV[1], "s", ARGV[2])
return 1
`

const rotateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "c") ~= "" then
  return 2
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 3
end
redis.call("HSET", KEYS[1], "c", ARGV[1], "s", ARGV[2])
redis.call("HSET", KEYS[2], "u", ARGV[3], "i", ARGV[4], "e", ARGV[5], "c", "", "s", "")
local ttl = tonumber(ARGV[6])
redis.call("PEXPIRE", KEYS[2], ttl)
redis.call("SADD", KEYS[3], ARGV[2])
if redis.call("PTTL", KEYS[3]) < ttl then
  redis.call("PEXPIRE", KEYS[3], ttl)
end
return 1
`

// KEYS[1] is the user's set, KEYS[2..] the records it held when the caller
// read it and ARGV[2..] their jtis. A set that changed since that read
// returns -1 so the caller can read it again.
const revokeUserScript = `
if redis.call("SCARD", KEYS[1]) ~= #KEYS - 1 then
  return -1
end
for i = 2, #KEYS do
  if redis.call("SISMEMBER", KEYS[1], ARGV[i]) == 0 then
    return -1
  end
end
local changed = 0
for i = 2, #KEYS do
  if redis.call("EXISTS", KEYS[i]) == 0 then
    redis.call("SREM", KEYS[1], ARGV[i])
  elseif redis.call("HGET", KEYS[i], "c") == "" then
    redis.call("HSET", KEYS[i], "c", ARGV[1])
    changed = changed + 1
  end
end
return changed
`

const (
	scriptNotFound   int64 = 0
	scriptOK         int64 = 1
	scriptConsumed   int64 = 2
	scriptDuplicate  int64 = 3
	scriptSetChanged int64 = -1
)

const revokeUserAttempts = 5

var (
	putLua        = redis.NewScript(putScript)
	consumeLua    = redis.NewScript(consumeScript)
	rotateLua     = redis.NewScript(rotateScript)
	revokeUserLua = redis.NewScript(revokeUserScript)
)

// RedisStoreConfig tunes RedisStore.
type RedisStoreConfig struct {
	// Prefix namespaces record keys. Default "vrt:". It is wrapped in a hash
	// tag ("vrt:" becomes "{vrt}:") unless it already holds one, so every key
	// of the store lands in one Redis Cluster slot.
	Prefix string
	// Retention keeps records this long past ExpiresAt so late reuse is still
	// recognised. Default 24h.
	Retention time.Duration
}

// RedisStore shares the ledger between processes through Redis. Records
// expire on their own after ExpiresAt plus Retention, so DeleteExpired has
// nothing to do.
//
// Every script names the keys it touches in KEYS and all keys share the
// prefix hash tag, so the store works against a Redis Cluster as well as a
// single node.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore returns a RedisStore.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultRedisPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRedisRetention
	}
	return &RedisStore{redis: client, prefix: hashTagged(cfg.Prefix), retention: cfg.Retention}
}

func hashTagged(prefix string) string {
	if open := strings.IndexByte(prefix, '{'); open >= 0 && strings.IndexByte(prefix[open:], '}') > 1 {
		return prefix
	}
	tag := strings.TrimRight(prefix, ":")
	return "{" + tag + "}" + prefix[len(tag):]
}

func (r *RedisStore) recordKey(jti string) string {
	return r.prefix + jti
}

func (r *RedisStore) userKey(userID string) string {
	return r.prefix + "user:" + userID
}

func (r *RedisStore) ttlMillis(rec Record) int64 {
	ttl := time.Until(rec.ExpiresAt)
	if ttl < 0 {
		ttl = 0
	}
	return (ttl + r.retention).Milliseconds()
}

// Put implements Store.
func (r *RedisStore) Put(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	status, err := putLua.Run(ctx, r.redis,
		[]string{r.recordKey(rec.JTI), r.userKey(rec.UserID)},
		rec.JTI, rec.UserID, rec.IssuedAt.UnixNano(), rec.ExpiresAt.UnixNano(), r.ttlMillis(rec),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return statusError(status)
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, jti string) (Record, error) {
	fields, err := r.redis.HGetAll(ctx, r.recordKey(jti)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}
	return recordFromHash(jti, fields)
}

// MarkConsumed implements Store.
func (r *RedisStore) MarkConsumed(ctx context.Context, jti, successor string, at time.Time) error {
	status, err := consumeLua.Run(ctx, r.redis, []string{r.recordKey(jti)}, at.UnixNano(), successor).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return statusError(status)
}

// Rotate implements Store.
func (r *RedisStore) Rotate(ctx context.Context, jti string, next Record, at time.Time) error {
	if err := next.validate(); err != nil {
		return err
	}

	status, err := rotateLua.Run(ctx, r.redis,
		[]string{r.recordKey(jti), r.recordKey(next.JTI), r.userKey(next.UserID)},
		at.UnixNano(), next.JTI, next.UserID, next.IssuedAt.UnixNano(), next.ExpiresAt.UnixNano(), r.ttlMillis(next),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return statusError(status)
}

// RevokeAllForUser implements Store.
func (r *RedisStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	userKey := r.userKey(userID)
	for range revokeUserAttempts {
		jtis, err := r.redis.SMembers(ctx, userKey).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(jtis) == 0 {
			return 0, nil
		}

		keys := make([]string, 0, len(jtis)+1)
		args := make([]any, 0, len(jtis)+1)
		keys = append(keys, userKey)
		args = append(args, at.UnixNano())
		for _, jti := range jtis {
			keys = append(keys, r.recordKey(jti))
			args = append(args, jti)
		}

		n, err := revokeUserLua.Run(ctx, r.redis, keys, args...).Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if n == scriptSetChanged {
			continue
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: token set of %s kept changing during revoke", ErrUnavailable, userID)
}

// DeleteExpired implements Store. Redis key expiry already removes old records.
func (r *RedisStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func statusError(status int64) error {
	switch status {
	case scriptOK:
		return nil
	case scriptNotFound:
		return ErrNotFound
	case scriptConsumed:
		return ErrAlreadyConsumed
	case scriptDuplicate:
		return ErrDuplicate
	default:
		return fmt.Errorf("%w: unexpected script status %d", ErrUnavailable, status)
	}
}

func recordFromHash(jti string, fields map[string]string) (Record, error) {
	issued, err := strconv.ParseInt(fields["i"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: corrupt issued_at for %s", ErrUnavailable, jti)
	}
	expires, err := strconv.ParseInt(fields["e"], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: corrupt expires_at for %s", ErrUnavailable, jti)
	}

	rec := Record{
		JTI:          jti,
		UserID:       fields["u"],
		IssuedAt:     time.Unix(0, issued),
		ExpiresAt:    time.Unix(0, expires),
		SupersededBy: fields["s"],
	}
	if c := fields["c"]; c != "" {
		consumed, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("%w: corrupt consumed_at for %s", ErrUnavailable, jti)
		}
		at := time.Unix(0, consumed)
		rec.ConsumedAt = &at
	}
	return rec, nil
}
