package cache

import (
	"context"
	"time"
)

// DomainInfo is what the orchestrator needs to know about a domain to
// plan a Node edge onto it: its reachable address and the task
// capabilities it claims to support.
type DomainInfo struct {
	Name         string
	Address      string
	Capabilities []string
}

// RegistryLookup fetches a domain's current info from the Registry.
type RegistryLookup func(ctx context.Context, domain string) (DomainInfo, error)

// DomainRegistryCache is Domain Registry Cache: a TTL cache
// over RegistryLookup, keyed by domain name.
type DomainRegistryCache struct {
	ttl *TTLCache[DomainInfo]
}

// NewDomainRegistryCache wraps lookup behind a TTLCache with the given
// TTL (reasonable defaults land around 30s-5m; the exact figure is left
// to deployment configuration).
func NewDomainRegistryCache(ttl time.Duration, lookup RegistryLookup) *DomainRegistryCache {
	return &DomainRegistryCache{ttl: New(ttl, Fetcher[DomainInfo](lookup))}
}

func (d *DomainRegistryCache) Lookup(ctx context.Context, domain string) (DomainInfo, error) {
	return d.ttl.Get(ctx, domain)
}

func (d *DomainRegistryCache) Invalidate(domain string) {
	d.ttl.Invalidate(domain)
}
