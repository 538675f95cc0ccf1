package cache

import (
	"context"
	"sync"
	"time"
)

// IndexSnapshot is one full listing of a Registry's packages or
// datasets, keyed by name, as of the last periodic refresh.
type IndexSnapshot[V any] struct {
	Entries   map[string]V
	FetchedAt time.Time
}

// IndexLoader loads a fresh full snapshot from the Registry.
type IndexLoader[V any] func(ctx context.Context) (map[string]V, error)

// RefreshingIndex periodically reloads a full package/data index in the
// background rather than per-key: lookups are always
// served from the last successful snapshot, trading strict consistency
// for availability (the index is eventually consistent with the
// Registry's actual contents).
type RefreshingIndex[V any] struct {
	mu       sync.RWMutex
	snapshot IndexSnapshot[V]
	load     IndexLoader[V]
}

// NewRefreshingIndex performs one synchronous load and returns the
// index; call Start to begin periodic background refreshes.
func NewRefreshingIndex[V any](ctx context.Context, load IndexLoader[V]) (*RefreshingIndex[V], error) {
	idx := &RefreshingIndex[V]{load: load}
	if err := idx.refresh(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *RefreshingIndex[V]) refresh(ctx context.Context) error {
	entries, err := idx.load(ctx)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	idx.snapshot = IndexSnapshot[V]{Entries: entries, FetchedAt: time.Now()}
	idx.mu.Unlock()
	return nil
}

// Start launches a background goroutine that refreshes the index every
// interval until ctx is cancelled. A failed refresh is logged by the
// caller via onError and the previous snapshot stays in effect.
func (idx *RefreshingIndex[V]) Start(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := idx.refresh(ctx); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()
}

// Get looks up name in the last successfully fetched snapshot.
func (idx *RefreshingIndex[V]) Get(name string) (V, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.snapshot.Entries[name]
	return v, ok
}

// SnapshotAge reports how long ago the current snapshot was fetched.
func (idx *RefreshingIndex[V]) SnapshotAge() time.Duration {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return time.Since(idx.snapshot.FetchedAt)
}
