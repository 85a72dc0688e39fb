package cache

import (
	"testing"

	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
	"github.com/stretchr/testify/require"
)

func (fx *fixture) merged(t *testing.T, routeID, streamID int64, partitions ...int32) (*mergedStream, *recorder) {
	t.Helper()
	r := &recorder{}
	s := fx.handlers.Merged.NewStream(beginFrame(routeID, streamID, types.KindMerged,
		serde.EncodeMergedBeginEx(types.MergedBeginEx{Topic: "orders", Partitions: partitions})), r)
	require.NotNil(t, s)
	return s.(*mergedStream), r
}

func TestMergedFollowsMetadata(t *testing.T) {
	fx := newFixture(t, nil)
	fx.loopback.SetPartitions("orders", []types.PartitionLeader{
		{PartitionID: 0, LeaderID: 1},
		{PartitionID: 1, LeaderID: 1},
	})

	m, r := fx.merged(t, 1, 1)
	require.Equal(t, []int32{0, 1}, m.Partitions())
	require.Equal(t, 2, fx.handlers.Fetch.Fanouts(1))
	require.Equal(t, 1, fx.handlers.Meta.Fanouts(1))
	require.Equal(t, []types.FrameType{types.FrameBegin}, r.frameTypes())

	p, _ := fx.produce(t, 1, 3, "orders", 1)
	send(p, validMessage("one")...)
	require.Len(t, r.data(), 1)
	ex, err := serde.DecodeFetchDataEx(r.data()[0].Extension)
	require.NoError(t, err)
	require.Equal(t, types.FetchDataEx{PartitionID: 1, Offset: 0}, ex)

	fx.loopback.SetPartitions("orders", []types.PartitionLeader{{PartitionID: 0, LeaderID: 1}})
	require.Equal(t, []int32{0}, m.Partitions())
	require.Equal(t, 1, fx.handlers.Fetch.Fanouts(1))

	fx.loopback.SetPartitions("orders", []types.PartitionLeader{
		{PartitionID: 0, LeaderID: 1},
		{PartitionID: 2, LeaderID: 1},
	})
	require.Equal(t, []int32{0, 2}, m.Partitions())

	m.OnEnd(endFrame(1))
	require.True(t, m.Lifecycle().Closed())
	require.Zero(t, fx.handlers.Fetch.Fanouts(1))
	require.Zero(t, fx.handlers.Meta.Fanouts(1))
}

func TestMergedSharesFetchFanouts(t *testing.T) {
	fx := newFixture(t, nil)
	_, fetched := fx.fetch(t, 1, 1, "orders", 0, OffsetLatest)
	_, r := fx.merged(t, 1, 3, 0, 1)
	require.Equal(t, 2, fx.handlers.Fetch.Fanouts(1))
	require.Equal(t, 1, fx.loopback.Subscriptions(1, "orders", 0))

	p, _ := fx.produce(t, 1, 5, "orders", 0)
	send(p, validMessage("x")...)
	require.Len(t, fetched.data(), 1)
	require.Len(t, r.data(), 1)
}

func TestMergedRejoinsOnLeaderChange(t *testing.T) {
	fx := newFixture(t, nil)
	m, r := fx.merged(t, 1, 1, 0)

	fx.loopback.Fail(1, "orders", protocol.ErrNotLeaderOrFollower)
	require.Equal(t, []types.FrameType{types.FrameBegin}, r.frameTypes())
	require.Equal(t, []int32{0}, m.Partitions())
	require.Equal(t, 1, fx.loopback.Subscriptions(1, "orders", 0))

	p, _ := fx.produce(t, 1, 3, "orders", 0)
	send(p, validMessage("after")...)
	require.Len(t, r.data(), 1)
}

func TestMergedFailsOnOtherErrors(t *testing.T) {
	fx := newFixture(t, nil)
	m, r := fx.merged(t, 1, 1, 0, 1)

	fx.loopback.Fail(1, "orders", protocol.ErrUnknownTopicOrPartition)
	require.Equal(t, []types.FrameType{types.FrameBegin, types.FrameAbort, types.FrameReset}, r.frameTypes())
	require.True(t, m.Lifecycle().Closed())
	require.Empty(t, m.Partitions())
	require.Zero(t, fx.handlers.Fetch.Fanouts(1))
}
