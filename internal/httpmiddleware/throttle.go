package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Throttle is a coarse in-memory per-IP token bucket in front of every
// route. The login-specific sliding window in internal/ratelimit is the
// real brute-force control; this only sheds pathological request floods.
type Throttle struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewThrottle creates a limiter with capacity tokens refilled at perMinute.
func NewThrottle(capacity, perMinute int) *Throttle {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &Throttle{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
	}
}

// GinMiddleware returns a gin handler enforcing per-IP limits.
func (t *Throttle) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !t.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (t *Throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.state[key]
	now := time.Now()
	if !ok {
		b = &bucket{tokens: t.capacity - 1, last: now}
		t.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(t.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > t.capacity {
			b.tokens = t.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
