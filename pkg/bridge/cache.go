package bridge

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/harun/sdkbridge/internal/observability"
)

// instanceCache holds one constructed owner per key. Concurrent misses for
// the same key share a single construction. Failures are not stored.
type instanceCache struct {
	mu    sync.RWMutex
	items map[string]any
	group singleflight.Group
}

func newInstanceCache() *instanceCache {
	return &instanceCache{items: make(map[string]any)}
}

// get returns the cached instance for key, building it with build on a
// miss. A waiter whose ctx ends stops waiting; the construction itself
// continues for the remaining waiters.
func (c *instanceCache) get(ctx context.Context, key string, build func() (any, error)) (any, error) {
	c.mu.RLock()
	inst, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		observability.RecordCacheLookup(true)
		return inst, nil
	}
	observability.RecordCacheLookup(false)

	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.RLock()
		inst, ok := c.items[key]
		c.mu.RUnlock()
		if ok {
			return inst, nil
		}

		inst, err := build()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.items[key] = inst
		size := len(c.items)
		c.mu.Unlock()
		observability.SetInstancesCached(size)
		return inst, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *instanceCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// reset drops every cached instance
func (c *instanceCache) reset() {
	c.mu.Lock()
	c.items = make(map[string]any)
	c.mu.Unlock()
	observability.SetInstancesCached(0)
}
