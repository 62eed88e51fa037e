package auth

import (
	"context"
	"time"

	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/ports"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedDirectory decorates an IdentityDirectory with a bounded TTL cache.
// Only successful lookups are cached; misses always reach the backing directory.
type CachedDirectory struct {
	next  ports.IdentityDirectory
	cache *expirable.LRU[string, domain.ServiceIdentity]
}

var _ ports.IdentityDirectory = (*CachedDirectory)(nil)

// NewCachedDirectory caches up to size identities for ttl each.
func NewCachedDirectory(next ports.IdentityDirectory, size int, ttl time.Duration) *CachedDirectory {
	if size <= 0 {
		size = 1024
	}
	return &CachedDirectory{
		next:  next,
		cache: expirable.NewLRU[string, domain.ServiceIdentity](size, nil, ttl),
	}
}

// Lookup serves from cache or populates it from the backing directory.
func (c *CachedDirectory) Lookup(ctx context.Context, serviceUUID string) (domain.ServiceIdentity, error) {
	if id, ok := c.cache.Get(serviceUUID); ok {
		return id, nil
	}
	id, err := c.next.Lookup(ctx, serviceUUID)
	if err != nil {
		return domain.ServiceIdentity{}, err
	}
	c.cache.Add(serviceUUID, id)
	return id, nil
}

// Invalidate drops a single identity, e.g. after secret rotation.
func (c *CachedDirectory) Invalidate(serviceUUID string) {
	c.cache.Remove(serviceUUID)
}

// Len returns the number of cached identities.
func (c *CachedDirectory) Len() int {
	return c.cache.Len()
}
