// Package ratelimit throttles login attempts with a sliding window over
// two bucket scopes: the client IP alone, and the IP paired with the
// normalized email. The IP bucket keeps an attacker rotating emails from
// one address throttled; the pair bucket keeps one account from being
// stuffed without locking out the whole address.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Defaults match the deployed configuration knobs.
const (
	DefaultWindow      = 900 * time.Second
	DefaultMaxAttempts = 6
)

// Config carries the window length and attempt ceiling.
type Config struct {
	Window      time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Status reports whether a login attempt should be rejected and how long
// until the oldest counted failure leaves the window.
type Status struct {
	Blocked    bool
	RetryAfter time.Duration
}

// Limiter tracks login failures per IP and per IP+email bucket.
type Limiter interface {
	// Status prunes expired failures as a side effect of reading.
	Status(ctx context.Context, ip, email string) (Status, error)
	// RecordFailure appends a failure timestamp to both buckets.
	RecordFailure(ctx context.Context, ip, email string) error
	// ClearFailures empties both buckets after a successful login.
	ClearFailures(ctx context.Context, ip, email string) error
}

// bucketNames builds the two bucket scopes for an attempt.
func bucketNames(ip, email string) []string {
	norm := strings.ToLower(strings.TrimSpace(email))
	return []string{
		"ip:" + ip,
		"ip_email:" + ip + ":" + norm,
	}
}

// bucketKey hashes a bucket name so raw emails never appear in the store.
func bucketKey(name string) string {
	sum := sha256.Sum256([]byte(name))
	return "ratelimit:" + hex.EncodeToString(sum[:])
}
