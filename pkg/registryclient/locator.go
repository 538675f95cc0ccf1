package registryclient

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/brane-project/brane/pkg/ir"
)

// Locator implements pkg/planner.DataLocator by fanning a Has query out
// to every domain's Registry concurrently via golang.org/x/sync/errgroup,
// the same fan-out-and-collect shape a single logical lookup needs
// whenever it spans several independent network round trips. A domain
// whose Registry can't be
// reached is treated as "does not hold it" rather than failing the whole
// Locate call, since one unreachable domain shouldn't block planning
// around the domains that are still up.
type Locator struct {
	clients map[string]*Client
}

// NewLocator builds a Locator from one Client per domain, keyed by
// domain name.
func NewLocator(clients map[string]*Client) *Locator {
	return &Locator{clients: clients}
}

// Locate returns every domain whose Registry currently catalogs name.
// IntermediateResult names are never asked about — their location is
// tracked directly in the workflow's Table.Results by the Planner and
// the Worker Plugin's resultLocationIndex, not via a cross-domain
// catalog query — so Locate only queries the Registry for first-class
// Datasets.
func (l *Locator) Locate(ctx context.Context, name ir.DataName) ([]string, error) {
	if name.Kind != ir.DataNameDataset {
		return nil, nil
	}

	var mu sync.Mutex
	var found []string

	g, ctx := errgroup.WithContext(ctx)
	for domain, client := range l.clients {
		domain, client := domain, client
		g.Go(func() error {
			has, err := client.Has(ctx, name.Name)
			if err != nil {
				return nil
			}
			if has {
				mu.Lock()
				found = append(found, domain)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(found)
	return found, nil
}
