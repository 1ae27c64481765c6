package rates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeRatesKey = "rates:active"

// Cache keeps the active rate set in Redis so every closure step does not
// hit the rates table. A nil cache is a no-op.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a rate cache with the provided TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached rate set, reporting a miss with ok=false.
func (c *Cache) Get(ctx context.Context) (RateSet, bool) {
	if c == nil || c.client == nil {
		return RateSet{}, false
	}
	data, err := c.client.Get(ctx, activeRatesKey).Bytes()
	if err != nil {
		return RateSet{}, false
	}
	var set RateSet
	if err := json.Unmarshal(data, &set); err != nil {
		return RateSet{}, false
	}
	return set, true
}

// Put stores the rate set. Failures are ignored: the cache is advisory.
func (c *Cache) Put(ctx context.Context, set RateSet) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(set)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, activeRatesKey, data, c.ttl).Err()
}

// Invalidate drops the cached rate set, used when rates collaborators
// publish a new active row.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, activeRatesKey).Err()
}
