package cache

import (
	"context"
	"sync"
)

type call struct {
	done  chan struct{}
	value any
	err   error
}

// Coalescer merges concurrent fetches for the same key into a single
// in-flight call. At most one pending fetch exists per key at any instant;
// the entry is removed when the fetch settles, success or failure, so later
// callers may retry.
type Coalescer struct {
	mu      sync.Mutex
	pending map[string]*call
}

// NewCoalescer allocates an empty coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{pending: make(map[string]*call)}
}

// Do returns the result of factory for key. If another call for the same key
// is already in flight, Do waits for its outcome instead of invoking factory
// again; every waiter observes the identical result. shared reports whether
// the result came from another caller's fetch.
func (c *Coalescer) Do(ctx context.Context, key string, factory func() (any, error)) (value any, shared bool, err error) {
	c.mu.Lock()
	if cl, ok := c.pending[key]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.value, true, cl.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	cl := &call{done: make(chan struct{})}
	c.pending[key] = cl
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending[key] == cl {
			delete(c.pending, key)
		}
		c.mu.Unlock()
		close(cl.done)
	}()

	cl.value, cl.err = factory()
	return cl.value, false, cl.err
}

// Pending returns the number of in-flight fetches.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
