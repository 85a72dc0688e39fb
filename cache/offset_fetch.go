package cache

import (
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/storage"
	"github.com/CefBoud/kafkamux/types"
)

// OffsetFetchHandler serves OFFSET_FETCH streams: one reply with the
// committed offsets, then the reply ends.
type OffsetFetchHandler struct {
	bindings protocol.BindingLookup
	offsets  *storage.OffsetStore
}

// NewOffsetFetchHandler creates an OFFSET_FETCH handler. Without an offset store every stream is refused.
func NewOffsetFetchHandler(bindings protocol.BindingLookup, offsets *storage.OffsetStore) *OffsetFetchHandler {
	return &OffsetFetchHandler{bindings: bindings, offsets: offsets}
}

func (h *OffsetFetchHandler) NewStream(raw []byte, sender protocol.Sender) protocol.Stream {
	if h.offsets == nil {
		return nil
	}
	o, ok := open(raw, types.KindOffsetFetch, h.bindings)
	if !ok {
		return nil
	}
	ex, err := serde.DecodeOffsetFetchBeginEx(o.payload)
	if err != nil || ex.GroupID == "" || ex.Topic == "" {
		return nil
	}
	if _, ok := o.resolve(ex.Topic); !ok {
		return nil
	}

	s := &offsetFetchStream{stream: newStream(o, sender)}
	offsets, err := h.offsets.Fetch(ex.GroupID, ex.Topic, ex.Partitions)
	s.doReplyBegin(nil)
	if err != nil {
		logger.Error("offset fetch failed", "group", ex.GroupID, "topic", ex.Topic, "error", err)
		s.doReplyAbort(protocol.ErrCoordinatorNotAvailable)
		return s
	}
	s.doReplyData(types.FlagInit|types.FlagFin, serde.EncodePartitionOffsets(offsets), nil)
	s.doReplyEnd()
	return s
}

type offsetFetchStream struct {
	stream
}

func (s *offsetFetchStream) OnData(f types.Frame) {}

func (s *offsetFetchStream) OnEnd(f types.Frame) {
	s.onInitialEnd()
	s.doReplyEnd()
}

func (s *offsetFetchStream) OnAbort(f types.Frame) {
	s.onInitialEnd()
}

func (s *offsetFetchStream) OnReset(f types.Frame) {
	s.onReplyReset()
	s.doInitialReset(protocol.ErrNone)
}
