package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// gcraScript keeps one theoretical arrival time (TAT) per key, in
// milliseconds. A request of cost c is allowed while the TAT it would
// produce stays within burst emission intervals of now.
//
// KEYS[1] bucket key
// ARGV[1] emission interval in ms
// ARGV[2] burst
// ARGV[3] cost
// ARGV[4] now in ms
var gcraScript = redis.NewScript(`
local interval = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local tat = tonumber(redis.call("GET", KEYS[1]))
if not tat or tat < now then
    tat = now
end

local next_tat = tat + cost * interval
local allow_at = next_tat - burst * interval
if allow_at > now then
    return {0, math.ceil(allow_at - now)}
end

redis.call("SET", KEYS[1], next_tat, "PX", math.ceil(next_tat - now) + 1000)
return {1, 0}
`)

// RedisStore shares limits between engine replicas. Keys are
// "<prefix><key>".
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "path402:rl:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

// DialRedis opens a client for addr and fails unless it answers PING.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ratelimit: redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) Allow(ctx context.Context, key string, policy Policy, cost int) (bool, error) {
	interval := 1000 / policy.perSecond()
	vals, err := gcraScript.Run(ctx, s.rdb, []string{s.prefix + key},
		interval, policy.burst(), cost, s.now().UnixMilli()).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis gcra: %w", err)
	}
	if len(vals) != 2 {
		return false, fmt.Errorf("ratelimit: redis gcra returned %d values", len(vals))
	}
	return vals[0] == 1, nil
}
