package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	b, err := NewBadgerStorage(t.TempDir())
	require.NoError(t, err)
	mem, err := Open(BackendMemory, "")
	require.NoError(t, err)
	return map[string]Storage{"badger": b, "memory": mem}
}

func TestStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			require.NoError(t, s.Set(ctx, "drbd-config/alice", []byte("<config/>"), 0))
			require.NoError(t, s.Set(ctx, "drbd-config/bob", []byte("<config></config>"), 0))
			require.NoError(t, s.Set(ctx, "layout/alice", []byte("{}"), 0))

			v, ok, err := s.Get(ctx, "drbd-config/alice")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "<config/>", string(v))

			_, ok, err = s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			keys, err := s.Keys(ctx, "drbd-config/*", 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"drbd-config/alice", "drbd-config/bob"}, keys)

			keys, err = s.Keys(ctx, "drbd-config/*", 1)
			require.NoError(t, err)
			assert.Len(t, keys, 1)

			n, err := s.Delete(ctx, "drbd-config/alice", "missing")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			_, ok, err = s.Get(ctx, "drbd-config/alice")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKV()
	defer s.Close()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Millisecond))
	assert.Eventually(t, func() bool {
		_, ok, _ := s.Get(ctx, "k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestClosedStorage(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Close())
			assert.ErrorIs(t, s.Close(), ErrClosed)
			assert.ErrorIs(t, s.Set(ctx, "k", nil, 0), ErrClosed)
			_, _, err := s.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("etcd", "")
	assert.Error(t, err)
}

func TestMatchesPattern(t *testing.T) {
	assert.True(t, matchesPattern("layout/alice", "layout/*"))
	assert.True(t, matchesPattern("layout/alice", "*alice"))
	assert.True(t, matchesPattern("anything", "*"))
	assert.False(t, matchesPattern("layout/alice", "layout/bob"))
}
