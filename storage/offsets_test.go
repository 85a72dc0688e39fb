package storage

import (
	"testing"

	"github.com/CefBoud/kafkamux/types"
	"github.com/stretchr/testify/require"
)

func TestCommitAndFetch(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenOffsetStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Commit("g1", types.NewPartitionOffset("orders", 1, 100, 3, 2, "m1")))
	require.NoError(t, store.Commit("g1", types.NewPartitionOffset("orders", 0, 50, 3, 2, "")))
	require.NoError(t, store.Commit("g1", types.NewPartitionOffset("orders", 1, 120, 4, 2, "m2")))
	require.NoError(t, store.Commit("g1", types.NewPartitionOffset("ordersx", 0, 9, 1, 0, "")))
	require.NoError(t, store.Commit("g2", types.NewPartitionOffset("orders", 0, 7, 1, 0, "")))

	all, err := store.Fetch("g1", "orders", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, int32(0), all[0].PartitionID())
	require.Equal(t, int64(50), all[0].PartitionOffset())
	require.Equal(t, int64(120), all[1].PartitionOffset())
	require.Equal(t, int32(4), all[1].GenerationID())
	require.Equal(t, "m2", all[1].Metadata())

	some, err := store.Fetch("g1", "orders", []int32{1, 5})
	require.NoError(t, err)
	require.Len(t, some, 2)
	require.Equal(t, int64(120), some[0].PartitionOffset())
	require.Equal(t, NoOffset, some[1].PartitionOffset())

	none, err := store.Fetch("missing", "orders", nil)
	require.NoError(t, err)
	require.Empty(t, none)

	groups, err := store.Groups()
	require.NoError(t, err)
	require.ElementsMatch(t, []types.GroupID{"g1", "g2"}, groups)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	require.ErrorIs(t, store.Commit("g1", types.NewPartitionOffset("orders", 0, 1, 1, 0, "")), ErrClosed)

	reopened, err := OpenOffsetStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	again, err := reopened.Fetch("g2", "orders", []int32{0})
	require.NoError(t, err)
	require.Equal(t, int64(7), again[0].PartitionOffset())
}
