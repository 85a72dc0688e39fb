package cache

import (
	"testing"

	"github.com/CefBoud/kafkamux/checksum"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/route"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/storage"
	"github.com/CefBoud/kafkamux/types"
	"github.com/stretchr/testify/require"
)

const testTypeID int32 = 7

// recorder collects the frames a stream sends downstream.
type recorder struct {
	frames []types.Frame
}

func (r *recorder) Send(f types.Frame) {
	r.frames = append(r.frames, f)
}

func (r *recorder) frameTypes() []types.FrameType {
	var res []types.FrameType
	for _, f := range r.frames {
		res = append(res, f.Type)
	}
	return res
}

func (r *recorder) data() []types.Frame {
	var res []types.Frame
	for _, f := range r.frames {
		if f.Type == types.FrameData {
			res = append(res, f)
		}
	}
	return res
}

func (r *recorder) last() types.Frame {
	return r.frames[len(r.frames)-1]
}

func (r *recorder) reset() {
	r.frames = nil
}

func errorCode(t *testing.T, f types.Frame) int16 {
	t.Helper()
	ex, err := serde.DecodeResetEx(f.Extension)
	require.NoError(t, err)
	return ex.ErrorCode
}

func beginFrame(routeID, streamID int64, kind types.Kind, payload []byte) []byte {
	return serde.EncodeFrame(types.Frame{
		Type:      types.FrameBegin,
		RouteID:   routeID,
		StreamID:  streamID,
		Extension: serde.EncodeBeginEx(types.BeginEx{TypeID: testTypeID, Kind: kind, Payload: payload}),
	})
}

func endFrame(streamID int64) types.Frame {
	return types.Frame{Type: types.FrameEnd, StreamID: streamID}
}

// message builds the DATA frames of one produced message split into segments.
func message(crc uint32, segments ...string) []types.Frame {
	var length int64
	for _, s := range segments {
		length += int64(len(s))
	}
	frames := make([]types.Frame, 0, len(segments))
	for i, s := range segments {
		f := types.Frame{Type: types.FrameData, Payload: []byte(s)}
		if i == 0 {
			f.Flags |= types.FlagInit
			f.Extension = serde.EncodeProduceDataEx(types.ProduceDataEx{CRC32C: crc, Length: length})
		}
		if i == len(segments)-1 {
			f.Flags |= types.FlagFin
		}
		frames = append(frames, f)
	}
	return frames
}

func validMessage(segments ...string) []types.Frame {
	var whole []byte
	for _, s := range segments {
		whole = append(whole, s...)
	}
	return message(checksum.CRC32C(whole), segments...)
}

type fixture struct {
	loopback *Loopback
	indexes  *route.Indexes
	offsets  *storage.OffsetStore
	handlers *Handlers
}

func newFixture(t *testing.T, bindings protocol.BindingLookup) *fixture {
	t.Helper()
	offsets, err := storage.OpenOffsetStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = offsets.Close() })

	fx := &fixture{
		loopback: NewLoopback(),
		indexes:  route.NewIndexes(nil),
		offsets:  offsets,
	}
	fx.handlers = New(Config{
		Bindings: bindings,
		Indexes:  fx.indexes,
		Upstream: fx.loopback,
		Offsets:  offsets,
	})
	return fx
}

func (fx *fixture) fetch(t *testing.T, routeID, streamID int64, topic string, partition int32, offset int64) (protocol.Stream, *recorder) {
	t.Helper()
	r := &recorder{}
	s := fx.handlers.Fetch.NewStream(beginFrame(routeID, streamID, types.KindFetch,
		serde.EncodeFetchBeginEx(types.FetchBeginEx{Topic: topic, PartitionID: partition, PartitionOffset: offset})), r)
	require.NotNil(t, s)
	return s, r
}

func (fx *fixture) produce(t *testing.T, routeID, streamID int64, topic string, partition int32) (protocol.Stream, *recorder) {
	t.Helper()
	r := &recorder{}
	s := fx.handlers.Produce.NewStream(beginFrame(routeID, streamID, types.KindProduce,
		serde.EncodeProduceBeginEx(types.ProduceBeginEx{Topic: topic, PartitionID: partition})), r)
	require.NotNil(t, s)
	return s, r
}

func (fx *fixture) meta(t *testing.T, routeID, streamID int64, topic string) (protocol.Stream, *recorder) {
	t.Helper()
	r := &recorder{}
	s := fx.handlers.Meta.NewStream(beginFrame(routeID, streamID, types.KindMeta,
		serde.EncodeMetaBeginEx(types.MetaBeginEx{Topic: topic})), r)
	require.NotNil(t, s)
	return s, r
}

func send(s protocol.Stream, frames ...types.Frame) {
	for _, f := range frames {
		s.OnData(f)
	}
}
