package automation

import (
	"sync"
	"time"
)

// RulesCache caches the rule list between evaluations so a batch of a
// few hundred articles doesn't hit the backing store per article.
// Implementations must return copies; cached rules are shared between
// concurrent evaluation runs.
type RulesCache interface {
	// Get returns the cached rules, or nil on a miss or expiry.
	Get() []*Rule

	// Set stores a fresh rule list.
	Set(rules []*Rule)

	// Invalidate clears the cache, forcing a reload on the next Get.
	Invalidate()
}

// CacheConfig controls cache expiry. A zero TTL disables expiry;
// invalidation then only happens on rule mutations.
type CacheConfig struct {
	TTL time.Duration
}

// DefaultCacheConfig returns the default cache behavior: no TTL,
// invalidate on mutation only.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{}
}

// InMemoryRulesCache is the stock RulesCache implementation.
type InMemoryRulesCache struct {
	rules    []*Rule
	cachedAt time.Time
	valid    bool
	config   CacheConfig
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates a cache with the given config.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

// Get returns the cached rules, or nil when invalid or expired.
func (c *InMemoryRulesCache) Get() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Set stores a copy of the rule list.
func (c *InMemoryRulesCache) Set(rules []*Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make([]*Rule, len(rules))
	copy(c.rules, rules)
	c.cachedAt = time.Now()
	c.valid = true
}

// Invalidate clears the cache.
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.rules = nil
}
