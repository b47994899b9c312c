package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/use-agent/pesticrawl/models"
)

// Store caches finished crawl summaries by query.
type Store interface {
	// Get returns a summary stored less than maxAge ago. maxAge <= 0 never hits.
	Get(ctx context.Context, key string, maxAge time.Duration) (*models.CrawlSummary, bool)
	Set(ctx context.Context, key string, summary *models.CrawlSummary)
}

// Key generates a cache key from the normalized query and the crawl strategy.
func Key(query models.SearchQuery, strategy string) string {
	h := sha256.New()
	h.Write([]byte(query.Normalized()))
	h.Write([]byte("|"))
	h.Write([]byte(strategy))
	return hex.EncodeToString(h.Sum(nil))
}

// entry holds a cached summary with its creation timestamp.
type entry struct {
	summary   *models.CrawlSummary
	createdAt time.Time
}

// Memory is an in-memory Store. It is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory cache holding at most maxEntries summaries. A
// background goroutine evicts entries older than ttl every 5 minutes until
// ctx is done.
func NewMemory(ctx context.Context, maxEntries int, ttl time.Duration) *Memory {
	c := &Memory{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}

	go c.cleanupLoop(ctx)
	return c
}

func (c *Memory) Get(_ context.Context, key string, maxAge time.Duration) (*models.CrawlSummary, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}
	return e.summary, true
}

// Set stores a summary. If the cache is at capacity, a random entry is
// evicted to make room.
func (c *Memory) Set(_ context.Context, key string, summary *models.CrawlSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Map iteration order is random in Go.
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		summary:   summary,
		createdAt: c.now(),
	}
}

// Len returns the number of cached summaries.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *Memory) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}

func (c *Memory) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}
