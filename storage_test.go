package fhe

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	_, ok, err := storage.GetItem(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, storage.SetItem(ctx, "key", "value"))
	got, ok, err := storage.GetItem(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", got)

	require.NoError(t, storage.SetItem(ctx, "key", "replaced"))
	got, _, err = storage.GetItem(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, "replaced", got)

	require.NoError(t, storage.RemoveItem(ctx, "key"))
	_, ok, err = storage.GetItem(ctx, "key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStorageConcurrentAccess(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, storage.SetItem(ctx, "shared", "v"))
			_, _, err := storage.GetItem(ctx, "shared")
			require.NoError(t, err)
		}()
	}
	wg.Wait()
}
