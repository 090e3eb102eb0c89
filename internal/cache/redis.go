// Package cache provides the caching layer for the Hermes routing entities.
// Redis holds short-TTL JSON snapshots of domains, partners and eligible
// rule sets; an in-memory otter cache sits in front of the hottest keys.
// The syncer warms the Redis layer, the router reads through it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmarins/hermes/internal/store"
)

// Key prefixes namespace all routing snapshot keys.
// Examples: "route:domain:track.example.com", "route:rules:partner:42".
const (
	domainKeyPrefix  = "route:domain"
	partnerKeyPrefix = "route:partner"
	rulesKeyPrefix   = "route:rules"
)

// SnapshotCache is the L2 cache contract. The syncer writes through it, the
// read-through repository reads from it, and the observability server
// health-checks it.
type SnapshotCache interface {
	GetDomain(ctx context.Context, name string) (*store.Domain, bool, error)
	SetDomain(ctx context.Context, d *store.Domain) error

	GetPartner(ctx context.Context, affID string) (*store.Partner, bool, error)
	SetPartner(ctx context.Context, p *store.Partner) error

	// Rule sets are cached per tier+scope, including empty sets: a cached
	// empty slice means "looked up, nothing eligible", a miss means
	// "never looked up".
	GetRuleSet(ctx context.Context, tier string, scopeID int64) ([]store.RuleMatch, bool, error)
	SetRuleSet(ctx context.Context, tier string, scopeID int64, matches []store.RuleMatch) error

	// HealthCheck pings the redis server to ensure connectivity.
	HealthCheck(ctx context.Context) error

	// Close terminates the connection.
	Close() error
}

// Compile-time check that the Redis implementation satisfies the contract.
var _ SnapshotCache = (*RedisCache)(nil)

// RedisCache implements SnapshotCache using the go-redis library.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an already-connected client. ttl bounds the staleness
// of every snapshot entry.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &RedisCache{client: client, ttl: ttl}
}

// GetDomain fetches a domain snapshot by hostname.
func (c *RedisCache) GetDomain(ctx context.Context, name string) (*store.Domain, bool, error) {
	var d store.Domain
	ok, err := c.getJSON(ctx, domainKey(name), &d)
	if !ok || err != nil {
		return nil, false, err
	}
	return &d, true, nil
}

// SetDomain stores a domain snapshot.
func (c *RedisCache) SetDomain(ctx context.Context, d *store.Domain) error {
	return c.setJSON(ctx, domainKey(d.DomainName), d)
}

// GetPartner fetches a partner snapshot by affiliate id.
func (c *RedisCache) GetPartner(ctx context.Context, affID string) (*store.Partner, bool, error) {
	var p store.Partner
	ok, err := c.getJSON(ctx, partnerKey(affID), &p)
	if !ok || err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// SetPartner stores a partner snapshot.
func (c *RedisCache) SetPartner(ctx context.Context, p *store.Partner) error {
	return c.setJSON(ctx, partnerKey(p.AffID), p)
}

// GetRuleSet fetches the eligible rules of one tier scope.
func (c *RedisCache) GetRuleSet(ctx context.Context, tier string, scopeID int64) ([]store.RuleMatch, bool, error) {
	// Decode into a concrete slice so a cached "[]" round-trips as an
	// empty, non-nil outcome distinguishable from a miss.
	matches := []store.RuleMatch{}
	ok, err := c.getJSON(ctx, rulesKey(tier, scopeID), &matches)
	if !ok || err != nil {
		return nil, false, err
	}
	return matches, true, nil
}

// SetRuleSet stores the eligible rules of one tier scope.
func (c *RedisCache) SetRuleSet(ctx context.Context, tier string, scopeID int64, matches []store.RuleMatch) error {
	if matches == nil {
		matches = []store.RuleMatch{}
	}
	return c.setJSON(ctx, rulesKey(tier, scopeID), matches)
}

// HealthCheck verifies the connection to the Redis server.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// getJSON reads and decodes one key. A missing key is (false, nil).
func (c *RedisCache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %q from cache: %w", key, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached %q: %w", key, err)
	}

	return true, nil
}

// setJSON encodes and stores one key with the snapshot TTL.
func (c *RedisCache) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q for cache: %w", key, err)
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %q in cache: %w", key, err)
	}

	return nil
}

func domainKey(name string) string {
	return fmt.Sprintf("%s:%s", domainKeyPrefix, name)
}

func partnerKey(affID string) string {
	return fmt.Sprintf("%s:%s", partnerKeyPrefix, affID)
}

func rulesKey(tier string, scopeID int64) string {
	return fmt.Sprintf("%s:%s:%s", rulesKeyPrefix, tier, strconv.FormatInt(scopeID, 10))
}
