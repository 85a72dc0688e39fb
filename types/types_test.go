package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartitionOffsetDefaultsToNoCorrelation(t *testing.T) {
	o := NewPartitionOffset("orders", 3, 42, 7, 2, "meta")
	require.Equal(t, NoCorrelationID, o.CorrelationID())
	require.Equal(t, "orders", o.Topic())
	require.Equal(t, int32(3), o.PartitionID())
	require.Equal(t, int64(42), o.PartitionOffset())
	require.Equal(t, int32(7), o.GenerationID())
	require.Equal(t, int32(2), o.LeaderEpoch())
	require.Equal(t, "meta", o.Metadata())

	c := o.WithCorrelationID(99)
	require.Equal(t, int64(99), c.CorrelationID())
	require.Equal(t, NoCorrelationID, o.CorrelationID(), "original is unchanged")
	require.Equal(t, TopicPartition{Topic: "orders", Partition: 3}, c.TopicPartition())
}

func TestKinds(t *testing.T) {
	require.Len(t, Kinds, 9)
	for _, k := range Kinds {
		require.True(t, k.Known())
		require.NotContains(t, k.String(), "UNKNOWN")
	}
	require.False(t, Kind(2).Known())
	require.Equal(t, "UNKNOWN(2)", Kind(2).String())
}

func TestFrameFlags(t *testing.T) {
	f := Frame{Type: FrameData, StreamID: 5, Flags: FlagInit | FlagFin}
	require.True(t, f.Init())
	require.True(t, f.Fin())
	require.False(t, f.Reply())
	require.Equal(t, int64(4), ReplyStreamID(5))
	require.True(t, Frame{StreamID: 4}.Reply())
}
