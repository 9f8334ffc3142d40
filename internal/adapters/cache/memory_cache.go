package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
)

type entry struct {
	verdict   core.Verdict
	expiresAt time.Time
}

// MemoryCache implements VerdictStore in process memory
type MemoryCache struct {
	entries     map[string]*entry
	mu          sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	logger      *zap.Logger
	now         func() time.Time
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCache creates a memory cache. A positive cleanupFreq starts a
// background sweep of expired entries until Close.
func NewMemoryCache(ttl, cleanupFreq time.Duration, logger *zap.Logger) *MemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &MemoryCache{
		entries:     make(map[string]*entry),
		ttl:         ttl,
		cleanupFreq: cleanupFreq,
		logger:      logger,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go c.startCleanupTask()
	}
	return c
}

// Get returns a copy of the verdict cached under key
func (c *MemoryCache) Get(ctx context.Context, key string) (*core.Verdict, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if c.now().After(e.expiresAt) {
		return nil, ErrExpired
	}
	v := e.verdict
	return &v, nil
}

// Set stores a copy of v under key
func (c *MemoryCache) Set(ctx context.Context, key string, v *core.Verdict) error {
	if key == "" || v == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{verdict: *v, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Len returns the number of entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			expired++
		}
	}
	c.logger.Debug("Cleaned up expired verdicts", zap.Int("expired_count", expired))
}

func (c *MemoryCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// Close stops the background cleanup task
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}
