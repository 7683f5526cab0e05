package reference

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shipdraft/draft-service/internal/shipment"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how long a looked-up entity is reused.
const DefaultCacheTTL = time.Minute

// sweepThreshold is the entry count above which an insert also drops every
// expired entry.
const sweepThreshold = 1024

type cached struct {
	value any
	at    time.Time
}

// Cache wraps a shipment.Lookups. Concurrent lookups of the same id share one
// backend call, and results (including misses) are kept for ttl.
type Cache struct {
	next  shipment.Lookups
	ttl   time.Duration
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cached
	now     func() time.Time
}

func NewCache(next shipment.Lookups, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{next: next, ttl: ttl, entries: map[string]cached{}, now: time.Now}
}

func (c *Cache) get(ctx context.Context, kind, id string, load func(context.Context, string) (any, error)) (any, error) {
	key := kind + ":" + strings.ToLower(id)
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Sub(e.at) < c.ttl {
			c.mu.Unlock()
			return e.value, nil
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if len(c.entries) >= sweepThreshold {
			c.sweep()
		}
		c.entries[key] = cached{value: v, at: c.now()}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

// sweep drops expired entries. c.mu must be held.
func (c *Cache) sweep() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) Product(ctx context.Context, id string) (*shipment.Product, error) {
	v, err := c.get(ctx, "product", id, func(ctx context.Context, id string) (any, error) {
		return c.next.Product(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*shipment.Product)
	return p, nil
}

func (c *Cache) Broker(ctx context.Context, id string) (*shipment.Broker, error) {
	v, err := c.get(ctx, "broker", id, func(ctx context.Context, id string) (any, error) {
		return c.next.Broker(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	b, _ := v.(*shipment.Broker)
	return b, nil
}

func (c *Cache) Supplier(ctx context.Context, id string) (*shipment.Supplier, error) {
	v, err := c.get(ctx, "supplier", id, func(ctx context.Context, id string) (any, error) {
		return c.next.Supplier(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	s, _ := v.(*shipment.Supplier)
	return s, nil
}
