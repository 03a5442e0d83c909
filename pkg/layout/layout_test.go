package layout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clusterwatch/pkg/graph"
	"clusterwatch/storage"
)

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryKV()
	defer st.Close()
	s := NewStore(st)

	empty, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := map[string]graph.Position{"drbd:r0/0": {X: 10, Y: 20.5}}
	require.NoError(t, s.Save(ctx, "alice", want))
	got, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryKV()
	defer st.Close()
	require.NoError(t, st.Set(ctx, "layout/bob", []byte("{"), 0))

	_, err := NewStore(st).Load(ctx, "bob")
	assert.Error(t, err)
}
