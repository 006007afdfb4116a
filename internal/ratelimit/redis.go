package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts a hit and anchors the window expiry in one atomic
// step. A key found without an expiry gets one again.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter shares fixed windows between instances. The first hit in a
// window sets the key's expiry, so the window is anchored like MemoryLimiter's.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	rule   Rule
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, rule Rule) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "ratelimit:" + rule.Name + ":",
		rule:   rule,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Max() int { return l.rule.MaxRequests }

func (l *RedisLimiter) Limit(ctx context.Context, key string) (Result, error) {
	reply, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, l.rule.Window.Milliseconds()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit window: %w", err)
	}

	count, ttl, err := parseWindowReply(reply)
	if err != nil {
		return Result{}, err
	}
	return l.result(count, ttl), nil
}

func (l *RedisLimiter) result(count int64, ttl time.Duration) Result {
	n := int(count)
	return Result{
		Limited:   n > l.rule.MaxRequests,
		Limit:     l.rule.MaxRequests,
		Remaining: max(0, l.rule.MaxRequests-n),
		ResetTime: l.now().Add(ttl),
	}
}

// parseWindowReply reads the {count, ttl ms} pair returned by fixedWindowScript.
func parseWindowReply(reply any) (int64, time.Duration, error) {
	values, ok := reply.([]any)
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("rate limit window: unexpected reply %v", reply)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("rate limit window: unexpected count %v", values[0])
	}
	ttl, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("rate limit window: unexpected ttl %v", values[1])
	}
	return count, time.Duration(ttl) * time.Millisecond, nil
}
