package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/pkg/cache"
)

func TestTTLCache_MissTriggersFetch(t *testing.T) {
	var calls int32
	c := cache.New(time.Minute, cache.Fetcher[string](func(ctx context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "value-for-" + key, nil
	}))

	v, err := c.Get(t.Context(), "a")
	require.NoError(t, err)
	assert.Equal(t, "value-for-a", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTTLCache_HitDoesNotRefetch(t *testing.T) {
	var calls int32
	c := cache.New(time.Minute, cache.Fetcher[int](func(ctx context.Context, key string) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}))

	_, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	_, err = c.Get(t.Context(), "k")
	require.NoError(t, err)
	_, err = c.Get(t.Context(), "k")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTTLCache_ExpiryTriggersRefetch(t *testing.T) {
	var calls int32
	c := cache.New(20*time.Millisecond, cache.Fetcher[int](func(ctx context.Context, key string) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}))

	v1, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	time.Sleep(40 * time.Millisecond)

	v2, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v2)
}

func TestTTLCache_Invalidate(t *testing.T) {
	var calls int32
	c := cache.New(time.Minute, cache.Fetcher[int](func(ctx context.Context, key string) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}))

	v1, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	c.Invalidate("k")

	v2, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v2)
	assert.Equal(t, 1, c.Len())
}

func TestTTLCache_ConcurrentGetDedupesViaSingleflight(t *testing.T) {
	var calls int32
	start := make(chan struct{})
	c := cache.New(time.Minute, cache.Fetcher[string](func(ctx context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-start
		return "v", nil
	}))

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, err := c.Get(t.Context(), "shared")
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTTLCache_FetchErrorNotCached(t *testing.T) {
	var calls int32
	wantErr := errors.New("upstream unavailable")
	c := cache.New(time.Minute, cache.Fetcher[int](func(ctx context.Context, key string) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return 0, wantErr
		}
		return 7, nil
	}))

	_, err := c.Get(t.Context(), "k")
	assert.ErrorIs(t, err, wantErr)

	v, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDomainRegistryCache_LookupCachesAndInvalidates(t *testing.T) {
	var calls int32
	lookup := cache.RegistryLookup(func(ctx context.Context, domain string) (cache.DomainInfo, error) {
		atomic.AddInt32(&calls, 1)
		return cache.DomainInfo{Name: domain, Address: "10.0.0.1:50051", Capabilities: []string{"gpu"}}, nil
	})
	drc := cache.NewDomainRegistryCache(time.Minute, lookup)

	info, err := drc.Lookup(t.Context(), "worker-a")
	require.NoError(t, err)
	assert.Equal(t, "worker-a", info.Name)
	assert.Equal(t, []string{"gpu"}, info.Capabilities)

	_, err = drc.Lookup(t.Context(), "worker-a")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	drc.Invalidate("worker-a")
	_, err = drc.Lookup(t.Context(), "worker-a")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
