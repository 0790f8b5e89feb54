package api

import (
	"sync"
	"time"
)

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	Enabled bool
	// SubmitsPerMin caps archive uploads per caller. Each upload queues a build.
	SubmitsPerMin int
	// WritesPerMin caps the other write endpoints (project updates, promote, scan, deploy).
	WritesPerMin int
}

// DefaultRateLimitConfig returns the default quotas.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:       true,
		SubmitsPerMin: 6,
		WritesPerMin:  60,
	}
}

type window struct {
	count     int
	expiresAt time.Time
}

// RateLimiter counts requests per key in fixed one-minute windows.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	config  RateLimitConfig
	stopCh  chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		config:  cfg,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether one more request for key fits under limit, and
// counts it if so. A zero limit means unlimited.
func (rl *RateLimiter) Allow(key string, limit int) bool {
	if !rl.config.Enabled || limit <= 0 {
		return true
	}

	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.windows[key]
	if !exists || now.After(w.expiresAt) {
		rl.windows[key] = &window{
			count:     1,
			expiresAt: now.Add(time.Minute),
		}
		return true
	}

	if w.count >= limit {
		return false
	}

	w.count++
	return true
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// sweep drops windows that expired before now
func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if now.After(w.expiresAt) {
			delete(rl.windows, key)
		}
	}
}

// Stop terminates the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}
