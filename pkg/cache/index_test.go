package cache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/pkg/cache"
)

func TestRefreshingIndex_InitialLoad(t *testing.T) {
	idx, err := cache.NewRefreshingIndex(t.Context(), cache.IndexLoader[string](func(ctx context.Context) (map[string]string, error) {
		return map[string]string{"pkg-a": "1.0.0", "pkg-b": "2.3.1"}, nil
	}))
	require.NoError(t, err)

	v, ok := idx.Get("pkg-a")
	assert.True(t, ok)
	assert.Equal(t, "1.0.0", v)

	_, ok = idx.Get("missing")
	assert.False(t, ok)
}

func TestRefreshingIndex_InitialLoadErrorPropagates(t *testing.T) {
	wantErr := errors.New("registry unreachable")
	_, err := cache.NewRefreshingIndex(t.Context(), cache.IndexLoader[string](func(ctx context.Context) (map[string]string, error) {
		return nil, wantErr
	}))
	assert.ErrorIs(t, err, wantErr)
}

func TestRefreshingIndex_PeriodicRefreshPicksUpChanges(t *testing.T) {
	var gen int32
	idx, err := cache.NewRefreshingIndex(t.Context(), cache.IndexLoader[int](func(ctx context.Context) (map[string]int, error) {
		g := atomic.AddInt32(&gen, 1)
		return map[string]int{"dataset": int(g)}, nil
	}))
	require.NoError(t, err)

	v, ok := idx.Get("dataset")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	idx.Start(ctx, 10*time.Millisecond, nil)

	require.Eventually(t, func() bool {
		v, ok := idx.Get("dataset")
		return ok && v >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestRefreshingIndex_FailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	var fail int32
	idx, err := cache.NewRefreshingIndex(t.Context(), cache.IndexLoader[string](func(ctx context.Context) (map[string]string, error) {
		if atomic.LoadInt32(&fail) == 1 {
			return nil, errors.New("boom")
		}
		return map[string]string{"k": "stable-value"}, nil
	}))
	require.NoError(t, err)

	atomic.StoreInt32(&fail, 1)

	var errCount int32
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	idx.Start(ctx, 10*time.Millisecond, func(err error) {
		atomic.AddInt32(&errCount, 1)
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&errCount) > 0
	}, time.Second, 5*time.Millisecond)

	v, ok := idx.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "stable-value", v)
}

func TestRefreshingIndex_SnapshotAge(t *testing.T) {
	idx, err := cache.NewRefreshingIndex(t.Context(), cache.IndexLoader[int](func(ctx context.Context) (map[string]int, error) {
		return map[string]int{}, nil
	}))
	require.NoError(t, err)

	assert.Less(t, idx.SnapshotAge(), time.Second)
}
