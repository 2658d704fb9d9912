package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps buckets in process memory. Used by tests and
// single-node dev runs; production uses the redis limiter.
type MemoryLimiter struct {
	cfg Config
	mu  sync.Mutex
	// attempts maps hashed bucket keys to ordered failure timestamps.
	attempts map[string][]int64
	now      func() time.Time
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:      cfg.withDefaults(),
		attempts: make(map[string][]int64),
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Status(_ context.Context, ip, email string) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().Unix()
	window := int64(l.cfg.Window / time.Second)
	var retryAfter int64
	for _, name := range bucketNames(ip, email) {
		key := bucketKey(name)
		surviving := prune(l.attempts[key], now, window)
		l.attempts[key] = surviving
		if len(surviving) >= l.cfg.MaxAttempts {
			if candidate := surviving[0] + window - now; candidate > retryAfter {
				retryAfter = candidate
			}
		}
	}
	return Status{
		Blocked:    retryAfter > 0,
		RetryAfter: time.Duration(retryAfter) * time.Second,
	}, nil
}

func (l *MemoryLimiter) RecordFailure(_ context.Context, ip, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().Unix()
	for _, name := range bucketNames(ip, email) {
		key := bucketKey(name)
		l.attempts[key] = append(l.attempts[key], now)
	}
	return nil
}

func (l *MemoryLimiter) ClearFailures(_ context.Context, ip, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, name := range bucketNames(ip, email) {
		delete(l.attempts, bucketKey(name))
	}
	return nil
}

// prune keeps timestamps strictly newer than the window boundary.
func prune(timestamps []int64, now, window int64) []int64 {
	surviving := timestamps[:0]
	for _, ts := range timestamps {
		if ts > now-window {
			surviving = append(surviving, ts)
		}
	}
	return surviving
}
