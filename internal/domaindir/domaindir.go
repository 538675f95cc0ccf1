// Package domaindir adapts the static federation membership list carried
// in a node's config file (internal/config.DomainEntry) into the lookup
// shapes the rest of the system consumes: planner.DomainDirectory for the
// orchestrator's Planner, cache.RegistryLookup for a worker's Transferer,
// and a plain name-to-address resolver for internal/transport/workergrpc's
// Dialer. Domain discovery is out of scope here, so every node that
// needs to reach another domain is handed the same static list at
// deployment time rather than discovering it at runtime.
package domaindir

import (
	"context"
	"fmt"
	"sort"

	"github.com/brane-project/brane/internal/config"
	"github.com/brane-project/brane/pkg/cache"
)

// ErrUnknownDomain is returned by Lookup/ResolveWorkerAddr for a name not
// present in the configured entries.
var ErrUnknownDomain = fmt.Errorf("domaindir: unknown domain")

// Directory is a read-only view over a deployment's federated domains.
type Directory struct {
	entries map[string]config.DomainEntry
	names   []string
}

// New builds a Directory from a node config's static domain list.
func New(entries []config.DomainEntry) *Directory {
	d := &Directory{entries: make(map[string]config.DomainEntry, len(entries))}
	for _, e := range entries {
		d.entries[e.Name] = e
		d.names = append(d.names, e.Name)
	}
	sort.Strings(d.names)
	return d
}

// Domains lists every configured domain name, satisfying
// planner.DomainDirectory.
func (d *Directory) Domains(ctx context.Context) ([]string, error) {
	return d.names, nil
}

// Lookup resolves one domain's cache.DomainInfo, satisfying both
// planner.DomainDirectory and cache.RegistryLookup (the two interfaces
// share this exact method shape).
func (d *Directory) Lookup(ctx context.Context, domain string) (cache.DomainInfo, error) {
	e, ok := d.entries[domain]
	if !ok {
		return cache.DomainInfo{}, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	return cache.DomainInfo{Name: e.Name, Address: e.WorkerAddr, Capabilities: e.Capabilities}, nil
}

// ResolveWorkerAddr returns a domain's gRPC worker address, the shape
// internal/transport/workergrpc.NewDialer's resolve function needs.
func (d *Directory) ResolveWorkerAddr(domain string) (string, error) {
	e, ok := d.entries[domain]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	return e.WorkerAddr, nil
}

// RegistryURL returns a domain's advertised Registry base URL.
func (d *Directory) RegistryURL(domain string) (string, error) {
	e, ok := d.entries[domain]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	return e.RegistryURL, nil
}

// Entries returns every configured domain entry, for callers (like a
// registryclient.Locator) that need to build one client per domain.
func (d *Directory) Entries() []config.DomainEntry {
	out := make([]config.DomainEntry, 0, len(d.entries))
	for _, name := range d.names {
		out = append(out, d.entries[name])
	}
	return out
}
