package tenant

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedDirectory is a read-through cache in front of a Directory.
// Only positive lookups are cached; misses always reach the backing directory
// so a newly granted membership is visible immediately. Entries expire after
// the configured TTL, which bounds how long a suspension can go unnoticed by
// other processes.
type CachedDirectory struct {
	next        Directory
	tenants     *expirable.LRU[uuid.UUID, Tenant]
	memberships *expirable.LRU[membershipKey, Membership]

	// generations holds a *atomic.Uint64 per tenant, bumped by Invalidate.
	// A lookup only caches its result when no invalidation ran during the fetch.
	generations sync.Map
}

// CacheConfig controls CachedDirectory sizing.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// NewCachedDirectory wraps next. A non-positive TTL or size disables caching
// and returns next unchanged.
func NewCachedDirectory(next Directory, cfg CacheConfig) Directory {
	if next == nil {
		panic("tenant cache: directory is required")
	}
	if cfg.TTL <= 0 || cfg.Size <= 0 {
		return next
	}
	return &CachedDirectory{
		next:        next,
		tenants:     expirable.NewLRU[uuid.UUID, Tenant](cfg.Size, nil, cfg.TTL),
		memberships: expirable.NewLRU[membershipKey, Membership](cfg.Size, nil, cfg.TTL),
	}
}

func (c *CachedDirectory) Tenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	if t, ok := c.tenants.Get(id); ok {
		return t, nil
	}
	gen := c.generation(id)
	before := gen.Load()
	t, err := c.next.Tenant(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if gen.Load() == before {
		c.tenants.Add(id, t)
		if gen.Load() != before {
			c.tenants.Remove(id)
		}
	}
	return t, nil
}

func (c *CachedDirectory) Membership(ctx context.Context, principalID string, tenantID uuid.UUID) (Membership, error) {
	key := membershipKey{tenantID: tenantID, principalID: principalID}
	if m, ok := c.memberships.Get(key); ok {
		return m, nil
	}
	gen := c.generation(tenantID)
	before := gen.Load()
	m, err := c.next.Membership(ctx, principalID, tenantID)
	if err != nil {
		return Membership{}, err
	}
	if gen.Load() == before {
		c.memberships.Add(key, m)
		if gen.Load() != before {
			c.memberships.Remove(key)
		}
	}
	return m, nil
}

// Invalidate drops the cached tenant record and every cached membership of that tenant.
// Lookups already in flight for the tenant do not repopulate the cache.
func (c *CachedDirectory) Invalidate(tenantID uuid.UUID) {
	c.generation(tenantID).Add(1)
	c.tenants.Remove(tenantID)
	for _, key := range c.memberships.Keys() {
		if key.tenantID == tenantID {
			c.memberships.Remove(key)
		}
	}
}

func (c *CachedDirectory) generation(tenantID uuid.UUID) *atomic.Uint64 {
	if v, ok := c.generations.Load(tenantID); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := c.generations.LoadOrStore(tenantID, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

// Invalidator is implemented by directories that cache lookups.
type Invalidator interface {
	Invalidate(tenantID uuid.UUID)
}
