package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store holds serialized analytics responses. Implementations must be safe
// for concurrent use; misses and backend failures both read as "not cached".
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte)
	DeletePrefix(ctx context.Context, prefix string)
}

type Memory struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry
}

type entry struct {
	val []byte
	exp time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Memory{
		ttl: ttl,
		m:   make(map[string]entry),
	}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	now := time.Now()
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false
	}

	return e.val, true
}

func (c *Memory) Set(_ context.Context, key string, val []byte) {
	c.mu.Lock()
	c.m[key] = entry{val: val, exp: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Memory) DeletePrefix(_ context.Context, prefix string) {
	c.mu.Lock()
	for k := range c.m {
		if strings.HasPrefix(k, prefix) {
			delete(c.m, k)
		}
	}
	c.mu.Unlock()
}
