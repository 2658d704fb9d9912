package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// statusScript prunes a bucket's expired failures and reports the seconds
// until its oldest surviving failure leaves the window, or 0 when the
// bucket is below the attempt ceiling. Running as a script keeps the
// read-prune-report cycle atomic per bucket.
var statusScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count < max then
  return 0
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local retry = math.floor(tonumber(oldest[2]) + window - now)
if retry < 0 then
  retry = 0
end
return retry
`)

// RedisLimiter stores each bucket as a sorted set of failure timestamps.
// Redis executes commands and scripts serially, which gives every bucket
// the read-prune-write exclusivity the sliding window needs without any
// client-side locking.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

// NewRedisLimiter creates a redis-backed limiter.
func NewRedisLimiter(client *redis.Client, cfg Config) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg.withDefaults(), now: time.Now}
}

func (l *RedisLimiter) Status(ctx context.Context, ip, email string) (Status, error) {
	now := l.now().Unix()
	var retryAfter int64
	for _, name := range bucketNames(ip, email) {
		res, err := statusScript.Run(ctx, l.client, []string{bucketKey(name)},
			now, int64(l.cfg.Window/time.Second), l.cfg.MaxAttempts).Int64()
		if err != nil {
			return Status{}, fmt.Errorf("rate limit status for bucket: %w", err)
		}
		if res > retryAfter {
			retryAfter = res
		}
	}
	return Status{
		Blocked:    retryAfter > 0,
		RetryAfter: time.Duration(retryAfter) * time.Second,
	}, nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, ip, email string) error {
	now := l.now().Unix()
	pipe := l.client.TxPipeline()
	for _, name := range bucketNames(ip, email) {
		key := bucketKey(name)
		// Unique member per failure so same-second attempts all count.
		member := fmt.Sprintf("%d:%s", now, uuid.NewString())
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: member})
		pipe.Expire(ctx, key, l.cfg.Window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit record failure: %w", err)
	}
	return nil
}

func (l *RedisLimiter) ClearFailures(ctx context.Context, ip, email string) error {
	keys := make([]string, 0, 2)
	for _, name := range bucketNames(ip, email) {
		keys = append(keys, bucketKey(name))
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("rate limit clear failures: %w", err)
	}
	return nil
}
