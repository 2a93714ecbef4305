package httpapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterCheckLimit(t *testing.T) {
	rl := NewRateLimiter(5)
	defer rl.Stop()

	ip := "192.168.1.1"

	for i := 0; i < 5; i++ {
		assert.True(t, rl.CheckLimit(ip), "Request %d should be allowed", i+1)
	}

	assert.False(t, rl.CheckLimit(ip), "6th request should be denied")
}

func TestRateLimiterMultipleIPs(t *testing.T) {
	rl := NewRateLimiter(3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.CheckLimit("192.168.1.1"))
		assert.True(t, rl.CheckLimit("192.168.1.2"))
	}

	assert.False(t, rl.CheckLimit("192.168.1.1"))
	assert.False(t, rl.CheckLimit("192.168.1.2"))
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(2)
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.CheckLimit("a"))
	now = now.Add(20 * time.Second)
	assert.True(t, rl.CheckLimit("a"))
	assert.False(t, rl.CheckLimit("a"))
	assert.Equal(t, 40, rl.RetryAfter("a"))

	now = now.Add(40 * time.Second)
	assert.True(t, rl.CheckLimit("a"))
}

func TestRateLimiterRetryAfterNoRequests(t *testing.T) {
	rl := NewRateLimiter(5)
	defer rl.Stop()

	assert.Equal(t, 0, rl.RetryAfter("unknown"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5)
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.CheckLimit("old")

	now = now.Add(2 * time.Minute)
	rl.CheckLimit("fresh")
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limits, "old")
	assert.Contains(t, rl.limits, "fresh")
}

func TestRateLimiterStopTwice(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
