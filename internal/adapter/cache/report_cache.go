package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"labelscan/internal/domain"
)

// ReportCache keeps recent analysis reports keyed by image digest and
// knowledge base fingerprint. Entries expire after ttl and the oldest entry
// is evicted when the cache is full.
type ReportCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	report    domain.Report
	timestamp time.Time
}

func NewReportCache(maxSize int, ttl time.Duration) *ReportCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ReportCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Digest returns the hex sha256 of an image.
func Digest(image []byte) string {
	hash := sha256.Sum256(image)
	return hex.EncodeToString(hash[:])
}

func cacheKey(digest, knowledge string) string {
	return digest + ":" + knowledge
}

func (c *ReportCache) Get(digest, knowledge string) (domain.Report, bool) {
	key := cacheKey(digest, knowledge)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return domain.Report{}, false
	}

	if c.now().Sub(entry.timestamp) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.mu.Unlock()
		return domain.Report{}, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	return entry.report, true
}

func (c *ReportCache) Put(digest, knowledge string, report domain.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(digest, knowledge)
	entry := &cacheEntry{
		report:    report,
		timestamp: c.now(),
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

func (c *ReportCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ReportCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *ReportCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *ReportCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
