package serde

import (
	"bytes"
	"testing"

	"github.com/CefBoud/kafkamux/types"
	"github.com/stretchr/testify/require"
)

func TestEncoderGrowsPastIncrement(t *testing.T) {
	e := NewEncoder()
	big := bytes.Repeat([]byte{0xAB}, 5*BufferIncrement+3)
	e.PutInt32(7)
	e.PutCompactBytes(big)

	d := NewDecoder(e.Bytes())
	require.Equal(t, uint32(7), d.UInt32())
	require.Equal(t, big, d.CompactBytes())
	require.NoError(t, d.Err())
	require.Zero(t, d.Remaining())
}

func TestDecoderReportsShortBuffer(t *testing.T) {
	d := NewDecoder([]byte{0, 0, 1})
	require.Zero(t, d.UInt32())
	require.ErrorIs(t, d.Err(), ErrShortBuffer)
	require.Zero(t, d.UInt8(), "reads after an error return zero")
	require.Zero(t, d.Remaining())

	// compact string claiming more bytes than present
	d = NewDecoder([]byte{10, 'a'})
	require.Empty(t, d.CompactString())
	require.ErrorIs(t, d.Err(), ErrShortBuffer)

	d = NewDecoder([]byte{200, 1})
	require.Zero(t, d.CompactArrayLen())
	require.ErrorIs(t, d.Err(), ErrShortBuffer)
}

func TestPutLenPrefixesLength(t *testing.T) {
	e := NewEncoder()
	e.PutInt16(1)
	e.PutLen()
	require.Equal(t, []byte{0, 0, 0, 2, 0, 1}, e.Bytes())
}

func TestFrameRoundTrip(t *testing.T) {
	f := types.Frame{
		Type:          types.FrameBegin,
		RouteID:       0x0102030405060708,
		StreamID:      17,
		TraceID:       -3,
		Authorization: 9,
		Flags:         types.FlagInit,
		Payload:       []byte("hello"),
		Extension:     []byte{1, 2, 3},
	}
	got, err := DecodeFrame(EncodeFrame(f))
	require.NoError(t, err)
	require.Equal(t, f, got)

	f.Extension = nil
	f.Payload = nil
	got, err = DecodeFrame(EncodeFrame(f))
	require.NoError(t, err)
	require.Nil(t, got.Extension)
	require.Nil(t, got.Payload)
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	_, err := DecodeFrame([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrShortBuffer)

	raw := EncodeFrame(types.Frame{Type: types.FrameData})
	raw[0] = 42
	_, err = DecodeFrame(raw)
	require.ErrorIs(t, err, ErrUnknownFrameType)
}

func TestBeginExCarriesKindPayload(t *testing.T) {
	fetch := types.FetchBeginEx{Topic: "orders", PartitionID: 4, PartitionOffset: -2}
	raw := EncodeBeginEx(types.BeginEx{TypeID: 77, Kind: types.KindFetch, Payload: EncodeFetchBeginEx(fetch)})

	typeID, err := BeginExTypeID(raw)
	require.NoError(t, err)
	require.Equal(t, int32(77), typeID)

	ex, err := DecodeBeginEx(raw)
	require.NoError(t, err)
	require.Equal(t, types.KindFetch, ex.Kind)

	got, err := DecodeFetchBeginEx(ex.Payload)
	require.NoError(t, err)
	require.Equal(t, fetch, got)

	_, err = DecodeBeginEx(nil)
	require.ErrorIs(t, err, ErrEmptyExtension)
	_, err = DecodeBeginEx([]byte{0, 0})
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestKindPayloads(t *testing.T) {
	consumer := types.ConsumerBeginEx{GroupID: "g", Topic: "t", Partitions: []int32{0, 2}}
	gotConsumer, err := DecodeConsumerBeginEx(EncodeConsumerBeginEx(consumer))
	require.NoError(t, err)
	require.Equal(t, consumer, gotConsumer)

	describe := types.DescribeBeginEx{Topic: "t", Configs: []string{"cleanup.policy", "retention.ms"}}
	gotDescribe, err := DecodeDescribeBeginEx(EncodeDescribeBeginEx(describe))
	require.NoError(t, err)
	require.Equal(t, describe, gotDescribe)

	group := types.GroupBeginEx{GroupID: "g", Protocol: "highlander", TimeoutMs: 30000}
	gotGroup, err := DecodeGroupBeginEx(EncodeGroupBeginEx(group))
	require.NoError(t, err)
	require.Equal(t, group, gotGroup)

	meta := types.MetaDataEx{Partitions: []types.PartitionLeader{{PartitionID: 0, LeaderID: 1}, {PartitionID: 1, LeaderID: 2}}}
	gotMeta, err := DecodeMetaDataEx(EncodeMetaDataEx(meta))
	require.NoError(t, err)
	require.Equal(t, meta, gotMeta)

	configs := types.DescribeDataEx{Configs: []types.ConfigEntry{{Name: "retention.ms", Value: "1000"}}}
	gotConfigs, err := DecodeDescribeDataEx(EncodeDescribeDataEx(configs))
	require.NoError(t, err)
	require.Equal(t, configs, gotConfigs)

	generation := types.GroupDataEx{GenerationID: 2, LeaderID: 5, Members: []int64{5, 7}}
	gotGeneration, err := DecodeGroupDataEx(EncodeGroupDataEx(generation))
	require.NoError(t, err)
	require.Equal(t, generation, gotGeneration)

	_, err = DecodeProduceDataEx([]byte{1})
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestPartitionOffsets(t *testing.T) {
	offsets := []types.PartitionOffset{
		types.NewPartitionOffset("t", 0, 10, 1, 0, ""),
		types.NewPartitionOffset("t", 1, 20, 1, 3, "m").WithCorrelationID(5),
	}
	got, err := DecodePartitionOffsets(EncodePartitionOffsets(offsets))
	require.NoError(t, err)
	require.Equal(t, offsets, got)
	require.Equal(t, types.NoCorrelationID, got[0].CorrelationID())

	single, err := DecodePartitionOffset(EncodePartitionOffset(offsets[1]))
	require.NoError(t, err)
	require.Equal(t, offsets[1], single)
}
