package httpapi

import (
	"sync"
	"time"
)

// window is the sliding window every limit is counted over
const window = time.Minute

// RateLimiter implements per-client rate limiting with a sliding window
type RateLimiter struct {
	limits          map[string][]time.Time
	maxPerWindow    int
	mu              sync.Mutex
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// NewRateLimiter creates a limiter allowing maxPerMinute requests per client
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		limits:          make(map[string][]time.Time),
		maxPerWindow:    maxPerMinute,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	go rl.startCleanup()

	return rl
}

// CheckLimit records a request from client and reports whether it is allowed
func (rl *RateLimiter) CheckLimit(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := prune(rl.limits[client], now)

	if len(recent) >= rl.maxPerWindow {
		rl.limits[client] = recent
		return false
	}

	rl.limits[client] = append(recent, now)
	return true
}

// RetryAfter returns the seconds until client may send again, rounded up
func (rl *RateLimiter) RetryAfter(client string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	reqs := rl.limits[client]
	if len(reqs) == 0 {
		return 0
	}

	wait := window - rl.now().Sub(reqs[0])
	if wait <= 0 {
		return 0
	}
	return int((wait + time.Second - 1) / time.Second)
}

// prune drops requests that left the window
func prune(reqs []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(reqs) && now.Sub(reqs[i]) >= window {
		i++
	}
	return reqs[i:]
}

func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup forgets clients without recent requests
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for client, reqs := range rl.limits {
		if recent := prune(reqs, now); len(recent) == 0 {
			delete(rl.limits, client)
		} else {
			rl.limits[client] = recent
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
