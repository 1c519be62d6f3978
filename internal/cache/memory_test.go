package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s, err := NewMemoryStore(10)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	// The stored value must not alias the caller's slice.
	got[0] = 'x'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), again)
}

func TestMemoryStoreMiss(t *testing.T) {
	s, err := NewMemoryStore(10)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "absent")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s, err := NewMemoryStore(3)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), []byte{byte(i)}))
	}

	// Touch k0 so k1 becomes the eviction candidate.
	_, err = s.Get(ctx, "k0")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "k3", []byte{3}))
	require.Equal(t, 3, s.Len())

	_, err = s.Get(ctx, "k1")
	require.ErrorIs(t, err, ErrCacheMiss)

	_, err = s.Get(ctx, "k0")
	require.NoError(t, err)
}

func TestMemoryStoreDeleteAndClear(t *testing.T) {
	s, err := NewMemoryStore(10)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Clear(ctx))
	require.Zero(t, s.Len())
}
