package cache

import (
	"time"

	"github.com/maypok86/otter"

	"github.com/dmarins/hermes/internal/store"
)

// MemoryCache acts as the L1 caching layer for rule sets using a
// high-performance, contention-free algorithm (S3-FIFO) provided by the
// 'otter' library. Rule sets are the hottest read on the redirect path; the
// short TTL keeps them acceptably fresh without a Redis round trip.
type MemoryCache struct {
	store otter.Cache[string, []store.RuleMatch]
}

// NewMemoryCache initializes the in-memory cache with strict limits.
// capacity: max number of rule sets (hard cap to prevent OOM).
// ttl: time-to-live for items (safety net for eventual consistency).
func NewMemoryCache(capacity int, ttl time.Duration) (*MemoryCache, error) {
	builder := otter.MustBuilder[string, []store.RuleMatch](capacity).
		WithTTL(ttl)

	cache, err := builder.Build()
	if err != nil {
		return nil, err
	}

	return &MemoryCache{store: cache}, nil
}

// GetRuleSet retrieves one tier scope's rules from memory.
// This operation is virtually lock-free and extremely fast.
func (c *MemoryCache) GetRuleSet(tier string, scopeID int64) ([]store.RuleMatch, bool) {
	return c.store.Get(rulesKey(tier, scopeID))
}

// SetRuleSet adds or updates one tier scope's rules in memory.
// The TTL configured in NewMemoryCache is applied automatically.
func (c *MemoryCache) SetRuleSet(tier string, scopeID int64, matches []store.RuleMatch) {
	if matches == nil {
		matches = []store.RuleMatch{}
	}
	c.store.Set(rulesKey(tier, scopeID), matches)
}

// Del removes one tier scope's rules from memory.
func (c *MemoryCache) Del(tier string, scopeID int64) {
	c.store.Delete(rulesKey(tier, scopeID))
}

// Close gracefully shuts down the cache and its background cleanup goroutines.
func (c *MemoryCache) Close() {
	c.store.Close()
}
