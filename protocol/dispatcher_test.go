package protocol

import (
	"testing"
	"time"

	"github.com/CefBoud/kafkamux/metrics"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/state"
	"github.com/CefBoud/kafkamux/types"
	"github.com/stretchr/testify/require"
)

const testTypeID int32 = 7

type fakeStream struct {
	kind types.Kind
}

func (s *fakeStream) StreamID() int64            { return 1 }
func (s *fakeStream) RouteID() int64             { return 1 }
func (s *fakeStream) Kind() types.Kind           { return s.kind }
func (s *fakeStream) Lifecycle() state.Lifecycle { return state.Lifecycle{}.OpenInitial() }
func (s *fakeStream) OnData(types.Frame)         {}
func (s *fakeStream) OnEnd(types.Frame)          {}
func (s *fakeStream) OnAbort(types.Frame)        {}
func (s *fakeStream) OnReset(types.Frame)        {}

type fakeHandler struct {
	kind   types.Kind
	refuse bool
	raws   [][]byte
	sender Sender
}

func (h *fakeHandler) NewStream(raw []byte, sender Sender) Stream {
	h.raws = append(h.raws, raw)
	h.sender = sender
	if h.refuse {
		return nil
	}
	return &fakeStream{kind: h.kind}
}

type fakeGroupHandler struct {
	fakeHandler
	attached []*Binding
	detached []int64
}

func (h *fakeGroupHandler) OnAttached(b *Binding)      { h.attached = append(h.attached, b) }
func (h *fakeGroupHandler) OnDetached(bindingID int64) { h.detached = append(h.detached, bindingID) }

type fakeHandlers struct {
	byKind map[types.Kind]*fakeHandler
	group  *fakeGroupHandler
}

func newFakeHandlers() (Handlers, fakeHandlers) {
	fakes := fakeHandlers{
		byKind: make(map[types.Kind]*fakeHandler),
		group:  &fakeGroupHandler{fakeHandler: fakeHandler{kind: types.KindGroup}},
	}
	for _, kind := range types.Kinds {
		fakes.byKind[kind] = &fakeHandler{kind: kind}
	}
	fakes.byKind[types.KindGroup] = &fakes.group.fakeHandler
	return Handlers{
		Meta:        fakes.byKind[types.KindMeta],
		Describe:    fakes.byKind[types.KindDescribe],
		Group:       fakes.group,
		Consumer:    fakes.byKind[types.KindConsumer],
		OffsetFetch: fakes.byKind[types.KindOffsetFetch],
		Fetch:       fakes.byKind[types.KindFetch],
		Produce:     fakes.byKind[types.KindProduce],
		Merged:      fakes.byKind[types.KindMerged],
		Bootstrap:   fakes.byKind[types.KindBootstrap],
	}, fakes
}

func newTestDispatcher(t *testing.T) (*Dispatcher, fakeHandlers) {
	t.Helper()
	h, fakes := newFakeHandlers()
	d, err := NewDispatcher(testTypeID, h)
	require.NoError(t, err)
	return d, fakes
}

func begin(typeID int32, kind types.Kind) []byte {
	return serde.EncodeFrame(types.Frame{
		Type:      types.FrameBegin,
		RouteID:   1,
		StreamID:  1,
		Extension: serde.EncodeBeginEx(types.BeginEx{TypeID: typeID, Kind: kind, Payload: []byte("payload")}),
	})
}

func TestNewDispatcherRequiresEveryHandler(t *testing.T) {
	h, _ := newFakeHandlers()
	h.Fetch = nil
	h.Group = nil
	_, err := NewDispatcher(testTypeID, h)
	require.ErrorIs(t, err, ErrMissingHandler)
	require.Contains(t, err.Error(), "FETCH")
	require.Contains(t, err.Error(), "GROUP")
}

func TestDispatchRoutesByKind(t *testing.T) {
	d, fakes := newTestDispatcher(t)
	sender := SenderFunc(func(types.Frame) {})

	for _, kind := range types.Kinds {
		raw := begin(testTypeID, kind)
		s := d.Dispatch(raw, sender)
		require.NotNil(t, s, kind.String())
		require.Equal(t, kind, s.Kind())

		h := fakes.byKind[kind]
		require.Len(t, h.raws, 1, kind.String())
		require.Equal(t, raw, h.raws[0], "raw frame is passed through unchanged")
		require.NotNil(t, h.sender)
	}
}

func TestDispatchFetchOnlyReachesFetchHandler(t *testing.T) {
	d, fakes := newTestDispatcher(t)
	require.NotNil(t, d.Dispatch(begin(testTypeID, types.KindFetch), SenderFunc(func(types.Frame) {})))
	for kind, h := range fakes.byKind {
		if kind == types.KindFetch {
			require.Len(t, h.raws, 1)
		} else {
			require.Empty(t, h.raws, kind.String())
		}
	}
}

func TestDispatchRefusals(t *testing.T) {
	d, fakes := newTestDispatcher(t)
	sender := SenderFunc(func(types.Frame) {})

	noExtension := serde.EncodeFrame(types.Frame{Type: types.FrameBegin, RouteID: 1, StreamID: 1})
	notBegin := serde.EncodeFrame(types.Frame{Type: types.FrameData, StreamID: 1,
		Extension: serde.EncodeBeginEx(types.BeginEx{TypeID: testTypeID, Kind: types.KindFetch})})
	truncated := serde.EncodeFrame(types.Frame{Type: types.FrameBegin, StreamID: 1, Extension: []byte{0, 0, 0, 7}})

	cases := map[string][]byte{
		"no extension":       noExtension,
		"mismatched type id": begin(testTypeID+1, types.KindFetch),
		"unparseable":        truncated,
		"unregistered kind":  begin(testTypeID, types.Kind(2)),
		"forward kind":       begin(testTypeID, types.Kind(200)),
		"not a begin frame":  notBegin,
		"garbage":            {0xff, 0x01},
	}
	for name, raw := range cases {
		require.Nil(t, d.Dispatch(raw, sender), name)
	}
	for kind, h := range fakes.byKind {
		require.Empty(t, h.raws, kind.String())
	}

	fakes.byKind[types.KindMeta].refuse = true
	require.Nil(t, d.Dispatch(begin(testTypeID, types.KindMeta), sender))
}

func TestAttachDetachNotifyGroupHandler(t *testing.T) {
	d, fakes := newTestDispatcher(t)

	require.NoError(t, d.Attach(types.BindingConfig{ID: 5, Name: "first"}))
	require.NoError(t, d.Attach(types.BindingConfig{ID: 5, Name: "second"}))
	b, ok := d.Binding(5)
	require.True(t, ok)
	require.Equal(t, "second", b.Name, "last write wins")
	require.Equal(t, 1, d.Bindings())
	require.Len(t, fakes.group.attached, 2)

	d.Detach(5)
	_, ok = d.Binding(5)
	require.False(t, ok)
	require.Equal(t, []int64{5}, fakes.group.detached)

	d.Detach(5)
	d.Detach(42)
	require.Equal(t, []int64{5}, fakes.group.detached, "detach of an unknown id is a no-op")
	require.Zero(t, d.Bindings())
}

func TestAttachRejectsBadBinding(t *testing.T) {
	d, fakes := newTestDispatcher(t)
	err := d.Attach(types.BindingConfig{
		ID:     5,
		Routes: []types.RouteConfig{{ID: 1, Topics: []string{"[bad"}}},
		Topics: []types.TopicConfig{{Name: "orders", Compression: "brotli"}},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "[bad")
	require.Contains(t, err.Error(), "brotli")
	require.Empty(t, fakes.group.attached)
	_, ok := d.Binding(5)
	require.False(t, ok)
}

func TestDispatchCountsOutcomes(t *testing.T) {
	sink, err := metrics.Setup("kafkamux", time.Minute)
	require.NoError(t, err)
	d, _ := newTestDispatcher(t)
	sender := SenderFunc(func(types.Frame) {})

	d.Dispatch(begin(testTypeID, types.KindProduce), sender)
	d.Dispatch(begin(testTypeID, types.Kind(2)), sender)
	d.Dispatch(begin(testTypeID+1, types.KindProduce), sender)

	require.Equal(t, float64(1), metrics.Counter(sink, "kafkamux.dispatch.accepted;kind=PRODUCE"))
	require.Equal(t, float64(1), metrics.Counter(sink, "kafkamux.dispatch.refused;reason=unknown_kind"))
	require.Equal(t, float64(1), metrics.Counter(sink, "kafkamux.dispatch.refused;reason=type_mismatch"))
}
